// Package scaffold creates new services and roles from embedded templates.
package scaffold

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/DevExpGBB/azsvc/internal/service"
)

//go:embed templates
var templateFS embed.FS

// Entry points written for each role type.
var entryPoints = map[string]string{
	service.WebRole:    "server.js",
	service.WorkerRole: "worker.js",
}

// NewService creates the definition and configuration files of an empty
// service in dir. It fails if dir already holds a service.
func NewService(dir, name string) (*service.Service, error) {
	if name == "" {
		return nil, fmt.Errorf("service name is required")
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(root, service.DefinitionFile)); err == nil {
		return nil, fmt.Errorf("%s already contains a service", root)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}

	svc := &service.Service{
		Root:       root,
		Definition: &service.Definition{Name: name},
		Cloud:      &service.Configuration{Name: name},
		Local:      &service.Configuration{Name: name},
	}
	if err := svc.Save(); err != nil {
		return nil, err
	}
	return svc, nil
}

// AddRole writes the template content of a web or worker role into the
// service and registers it in the definition and configurations. An empty
// name picks the next free WebRoleN or WorkerRoleN.
func AddRole(svc *service.Service, kind, name string, instances int, plugins ...string) error {
	entry, ok := entryPoints[kind]
	if !ok {
		return fmt.Errorf("unknown role type %q (want %s or %s)", kind, service.WebRole, service.WorkerRole)
	}
	if name == "" {
		name = defaultRoleName(svc, kind)
	}
	if instances <= 0 {
		instances = 1
	}
	dir := svc.RoleDir(name)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("role directory %s already exists", dir)
	}
	def := service.RoleDefinition{Name: name, Type: kind, EntryPoint: entry, Plugins: plugins}
	if err := svc.AddRole(def, instances); err != nil {
		return err
	}
	if err := writeTemplates(kind, dir, templateData{Role: name, Lower: strings.ToLower(name)}); err != nil {
		return err
	}
	return svc.Save()
}

type templateData struct {
	Role  string
	Lower string
}

// writeTemplates renders every templates/<kind>/*.tmpl file into dir.
func writeTemplates(kind, dir string, data templateData) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	root := path.Join("templates", kind)
	return fs.WalkDir(templateFS, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		raw, err := templateFS.ReadFile(p)
		if err != nil {
			return fmt.Errorf("embedded template %q not found: %w", p, err)
		}
		tmpl, err := template.New(path.Base(p)).Parse(string(raw))
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return err
		}
		rel := strings.TrimSuffix(strings.TrimPrefix(p, root+"/"), ".tmpl")
		out := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return err
		}
		return os.WriteFile(out, buf.Bytes(), 0644)
	})
}

// defaultRoleName picks WebRole1, WebRole2, ... or WorkerRole1, ... skipping
// names already taken.
func defaultRoleName(svc *service.Service, kind string) string {
	prefix := "WebRole"
	if kind == service.WorkerRole {
		prefix = "WorkerRole"
	}
	taken := make(map[string]bool)
	for _, r := range svc.Definition.Roles {
		taken[r.Name] = true
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s%d", prefix, i)
		if !taken[name] {
			return name
		}
	}
}
