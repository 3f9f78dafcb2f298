package service

import (
	"encoding/json"
	"fmt"
	"os"
)

// DeploymentSettings records the context of the last publish so later
// commands can default to it.
type DeploymentSettings struct {
	Subscription   string `json:"subscription,omitempty"`
	ServiceName    string `json:"serviceName,omitempty"`
	Slot           string `json:"slot,omitempty"`
	Location       string `json:"location,omitempty"`
	AffinityGroup  string `json:"affinityGroup,omitempty"`
	StorageAccount string `json:"storageAccountName,omitempty"`
	DeploymentName string `json:"deploymentName,omitempty"`
	DeploymentURL  string `json:"deploymentUrl,omitempty"`
	PublishedAt    string `json:"publishedAt,omitempty"`
}

// LoadSettings reads a settings file from disk. Returns nil if not found.
func LoadSettings(path string) (*DeploymentSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var s DeploymentSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

// SaveSettings writes settings to disk, keeping any fields already in the
// file that DeploymentSettings doesn't model.
func SaveSettings(path string, s *DeploymentSettings) error {
	existing := make(map[string]any)
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &existing)
	}

	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	for k, v := range fields {
		existing[k] = v
	}

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
