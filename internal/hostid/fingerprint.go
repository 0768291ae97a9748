package hostid

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/endlessm/eos-metrics-go/internal/obslog"
)

// readOrCreateFingerprint loads a UUID string from path, generating and
// persisting a new one if the file is missing, empty, or unreadable.
// Mirrors original_source/eosmetrics/emtr-uuid.c + the fingerprint-file
// half of emtr-connection.c: a write failure is logged critically but
// never prevents the generated value from being returned.
func readOrCreateFingerprint(path string) string {
	if data, err := os.ReadFile(path); err == nil {
		if s := strings.TrimSpace(string(data)); s != "" {
			if _, parseErr := uuid.Parse(s); parseErr == nil {
				return s
			}
		}
	}

	generated := uuid.New().String()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		obslog.Default().Critical("failed to create fingerprint directory",
			"path", path, "error", err)
		return generated
	}
	if err := os.WriteFile(path, []byte(generated), 0o644); err != nil {
		obslog.Default().Critical("failed to write fingerprint file",
			"path", path, "error", fmt.Errorf("write fingerprint: %w", err))
	}

	return generated
}
