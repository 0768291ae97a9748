package sender

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/endlessm/eos-metrics-go/internal/obslog"
	"github.com/endlessm/eos-metrics-go/payload"
)

// readQueue reads the QueueFile at path and returns its payloads. Per
// spec.md §3, a missing file, an empty file, or any content that isn't a
// syntactically valid JSON array is treated as an empty queue. A warning
// is logged only for the last case, since it indicates prior corruption
// rather than a fresh install.
func readQueue(path string) []payload.Payload {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var items []payload.Payload
	if err := json.Unmarshal(data, &items); err != nil {
		obslog.Default().Warn("queue file is not a valid JSON array, treating as empty",
			"path", path, "error", err)
		return nil
	}
	return items
}

// writeQueue atomically overwrites the QueueFile at path with items,
// writing to a temp file in the same directory and renaming over the
// destination so a crash mid-write never leaves a partially-written queue
// file. Grounded on internal/artifacts/store.go's mutex-guarded
// filesystem writes, extended with the temp-then-rename step spec.md's
// "atomic overwrite" requirement needs.
func writeQueue(path string, items []payload.Payload) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create queue directory: %w", err)
	}

	if items == nil {
		items = []payload.Payload{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".queue-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp queue file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp queue file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace queue file: %w", err)
	}
	return nil
}

// appendToQueue reads, appends, and atomically rewrites the QueueFile,
// preserving insertion order.
func appendToQueue(path string, p payload.Payload) error {
	items := readQueue(path)
	items = append(items, p)
	return writeQueue(path, items)
}
