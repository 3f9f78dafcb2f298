package config

import (
	"bufio"
	"os"
	"strings"
)

// EnvFile is an optional per-service file of AZSVC_* variables.
const EnvFile = ".azsvc.env"

// ApplyEnvFile exports the AZSVC_* entries of a KEY=VALUE file into the
// process environment. Variables already set are left alone, so the real
// environment always wins. A missing file is not an error. It returns the
// names of the variables it set.
func ApplyEnvFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var set []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		if !ok || !strings.HasPrefix(key, EnvPrefix+"_") {
			continue
		}
		value = unquote(strings.TrimSpace(value))
		if _, exists := os.LookupEnv(key); exists || value == "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return set, err
		}
		set = append(set, key)
	}
	return set, scanner.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}
