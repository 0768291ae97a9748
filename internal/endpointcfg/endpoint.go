// Package endpointcfg resolves the collection endpoint URL from a JSON
// config file, falling back to a hardcoded default when the file is
// missing or unparseable.
package endpointcfg

import (
	"encoding/json"
	"os"

	"github.com/endlessm/eos-metrics-go/internal/obslog"
)

// DefaultEndpoint is used whenever the config file is absent or invalid.
const DefaultEndpoint = "http://localhost:3000"

type fileContents struct {
	Endpoint string `json:"endpoint"`
}

// Resolve reads the EndpointConfig JSON file at path and returns its
// "endpoint" member. Any failure (missing file, malformed JSON, missing or
// empty member) is treated identically: return DefaultEndpoint. Matches
// spec.md §4.2 — this is a tolerant "never fails" read, not a configuration
// error.
func Resolve(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultEndpoint
	}

	var contents fileContents
	if err := json.Unmarshal(data, &contents); err != nil {
		obslog.Default().Debug("endpoint config is not valid JSON, using default",
			"path", path, "error", err)
		return DefaultEndpoint
	}

	if contents.Endpoint == "" {
		return DefaultEndpoint
	}
	return contents.Endpoint
}
