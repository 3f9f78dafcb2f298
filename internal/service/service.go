// Package service reads and writes the on-disk layout of a cloud service:
// its definition, per-environment configuration and deployment settings.
package service

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// File names under the service root.
const (
	DefinitionFile  = "ServiceDefinition.yaml"
	CloudConfigFile = "ServiceConfiguration.Cloud.yaml"
	LocalConfigFile = "ServiceConfiguration.Local.yaml"
	SettingsFile    = "deploymentSettings.json"
	PackageFile     = "cloud_package.zip"
)

// Role types.
const (
	WebRole    = "web"
	WorkerRole = "worker"
)

// Well-known setting and plugin names.
const (
	StorageConnectionSetting = "StorageConnectionString"
	CacheConnectionSetting   = "Caching.ConfigStoreConnectionString"
	CachePlugin              = "Caching"
	RuntimeURLVariable       = "RUNTIMEURL"
)

// Definition is the service model: its name and ordered roles.
type Definition struct {
	Name  string           `yaml:"name"`
	Roles []RoleDefinition `yaml:"roles"`
}

// RoleDefinition describes one role of the service.
type RoleDefinition struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	EntryPoint string `yaml:"entryPoint,omitempty"`
	// Plugins are imported modules, e.g. "Caching".
	Plugins     []string          `yaml:"plugins,omitempty"`
	Runtime     *Runtime          `yaml:"runtime,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
}

// Runtime pins the runtime a role is started with. URL, when set, wins over
// Name and Version.
type Runtime struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version,omitempty"`
	URL     string `yaml:"url,omitempty"`
}

// HasPlugin reports whether the role imports the named plugin.
func (r *RoleDefinition) HasPlugin(name string) bool {
	for _, p := range r.Plugins {
		if p == name {
			return true
		}
	}
	return false
}

// Configuration is one environment's settings for every role.
type Configuration struct {
	Name  string              `yaml:"name"`
	Roles []RoleConfiguration `yaml:"roles"`
}

// RoleConfiguration holds the instance count, settings and certificate
// references of one role.
type RoleConfiguration struct {
	Name         string            `yaml:"name"`
	Instances    int               `yaml:"instances"`
	Settings     map[string]string `yaml:"settings,omitempty"`
	Certificates []CertificateRef  `yaml:"certificates,omitempty"`
}

// CertificateRef names a certificate that must be present on the hosted
// service before the role can be deployed.
type CertificateRef struct {
	Name       string `yaml:"name"`
	Thumbprint string `yaml:"thumbprint"`
	Algorithm  string `yaml:"algorithm,omitempty"`
}

// Role returns the configuration of the named role, or nil.
func (c *Configuration) Role(name string) *RoleConfiguration {
	if c == nil {
		return nil
	}
	for i := range c.Roles {
		if c.Roles[i].Name == name {
			return &c.Roles[i]
		}
	}
	return nil
}

// SetSetting sets a setting on the named role, adding the role entry if
// needed.
func (c *Configuration) SetSetting(role, key, value string) {
	rc := c.Role(role)
	if rc == nil {
		c.Roles = append(c.Roles, RoleConfiguration{Name: role, Instances: 1})
		rc = &c.Roles[len(c.Roles)-1]
	}
	if rc.Settings == nil {
		rc.Settings = make(map[string]string)
	}
	rc.Settings[key] = value
}

// Thumbprints returns the distinct certificate thumbprints referenced by any
// role, in order of first appearance.
func (c *Configuration) Thumbprints() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, r := range c.Roles {
		for _, cert := range r.Certificates {
			if cert.Thumbprint == "" || seen[cert.Thumbprint] {
				continue
			}
			seen[cert.Thumbprint] = true
			out = append(out, cert.Thumbprint)
		}
	}
	return out
}

// Service is a service loaded from its root directory.
type Service struct {
	Root       string
	Definition *Definition
	Cloud      *Configuration
	// Local is nil when the service has no local configuration.
	Local *Configuration
}

// Name returns the service name from the definition.
func (s *Service) Name() string { return s.Definition.Name }

// Path returns the absolute path of a file under the service root.
func (s *Service) Path(name string) string { return filepath.Join(s.Root, name) }

// RoleDir returns the content directory of a role.
func (s *Service) RoleDir(role string) string { return filepath.Join(s.Root, role) }

// Load reads the service rooted at dir.
func Load(dir string) (*Service, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	s := &Service{Root: root, Definition: &Definition{}, Cloud: &Configuration{}}
	if err := readYAML(s.Path(DefinitionFile), s.Definition); err != nil {
		return nil, fmt.Errorf("loading service definition: %w", err)
	}
	if s.Definition.Name == "" {
		return nil, fmt.Errorf("%s has no service name", s.Path(DefinitionFile))
	}
	if err := readYAML(s.Path(CloudConfigFile), s.Cloud); err != nil {
		return nil, fmt.Errorf("loading cloud configuration: %w", err)
	}
	local := &Configuration{}
	switch err := readYAML(s.Path(LocalConfigFile), local); {
	case err == nil:
		s.Local = local
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("loading local configuration: %w", err)
	}
	return s, nil
}

// Save writes the definition and configurations back to disk.
func (s *Service) Save() error {
	if err := writeYAML(s.Path(DefinitionFile), s.Definition); err != nil {
		return err
	}
	if err := s.SaveCloudConfig(); err != nil {
		return err
	}
	if s.Local != nil {
		return writeYAML(s.Path(LocalConfigFile), s.Local)
	}
	return nil
}

// SaveCloudConfig writes only the cloud configuration.
func (s *Service) SaveCloudConfig() error {
	return writeYAML(s.Path(CloudConfigFile), s.Cloud)
}

// Rename changes the service name in the definition and every configuration.
// It reports whether anything changed.
func (s *Service) Rename(name string) bool {
	if name == "" || name == s.Definition.Name {
		return false
	}
	s.Definition.Name = name
	s.Cloud.Name = name
	if s.Local != nil {
		s.Local.Name = name
	}
	return true
}

// AddRole appends a role to the definition and every configuration.
func (s *Service) AddRole(def RoleDefinition, instances int) error {
	for _, r := range s.Definition.Roles {
		if r.Name == def.Name {
			return fmt.Errorf("role %q already exists", def.Name)
		}
	}
	s.Definition.Roles = append(s.Definition.Roles, def)
	rc := RoleConfiguration{Name: def.Name, Instances: instances}
	s.Cloud.Roles = append(s.Cloud.Roles, rc)
	if s.Local != nil {
		s.Local.Roles = append(s.Local.Roles, rc)
	}
	return nil
}

// SetStorageConnection writes the storage connection string into every role
// of the cloud configuration. Roles importing the cache plugin also get the
// cache config-store setting.
func (s *Service) SetStorageConnection(account, key string) {
	conn := ConnectionString(account, key)
	for _, r := range s.Definition.Roles {
		s.Cloud.SetSetting(r.Name, StorageConnectionSetting, conn)
		if r.HasPlugin(CachePlugin) {
			s.Cloud.SetSetting(r.Name, CacheConnectionSetting, conn)
		}
	}
}

// ConnectionString formats a storage connection string.
func ConnectionString(account, key string) string {
	return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s", account, key)
}

// ResolveRuntimes stores the runtime package URL of every role that pins a
// runtime in its RUNTIMEURL environment variable. It reports whether any
// role changed.
func (s *Service) ResolveRuntimes(baseURL string) bool {
	changed := false
	for i := range s.Definition.Roles {
		r := &s.Definition.Roles[i]
		u := r.Runtime.PackageURL(baseURL)
		if u == "" || r.Environment[RuntimeURLVariable] == u {
			continue
		}
		if r.Environment == nil {
			r.Environment = make(map[string]string)
		}
		r.Environment[RuntimeURLVariable] = u
		changed = true
	}
	return changed
}

// PackageURL returns where the runtime installer is downloaded from, or ""
// when nothing is pinned.
func (rt *Runtime) PackageURL(baseURL string) string {
	if rt == nil {
		return ""
	}
	if rt.URL != "" {
		return rt.URL
	}
	if rt.Name == "" || baseURL == "" {
		return ""
	}
	version := rt.Version
	if version == "" {
		version = "default"
	}
	return fmt.Sprintf("%s/%s/%s.exe", trimSlash(baseURL), rt.Name, version)
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// ConfigurationBytes returns the serialized cloud configuration sent with a
// deployment request.
func (s *Service) ConfigurationBytes() ([]byte, error) {
	return yaml.Marshal(s.Cloud)
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
