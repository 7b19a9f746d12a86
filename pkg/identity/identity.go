// Package identity produces the stable per-install device identifier.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const fileName = "device_id"

// DeviceID returns the install's device identifier, generating and
// persisting a random one on first access. The identifier is required for
// every outbound request, so a storage failure here is fatal to SDK
// initialization rather than a recoverable condition.
func DeviceID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, fileName)

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading device id: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating data dir: %w", err)
	}

	id := uuid.New().String()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persisting device id: %w", err)
	}
	return id, nil
}
