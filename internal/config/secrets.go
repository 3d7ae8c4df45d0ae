package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SecretsDir is where docker secrets are mounted. Tests point it at a temp dir.
var SecretsDir = "/run/secrets"

// ReadSecret returns the trimmed contents of a mounted secret.
func ReadSecret(name string) (string, error) {
	path := filepath.Join(SecretsDir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", name, err)
	}
	if v := strings.TrimSpace(string(raw)); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("secret %s is empty", name)
}
