// Package envelope wraps a caller-supplied payload with the host
// fingerprint and machine identifier, under a configurable form-param
// name, and serializes the result to JSON. Grounded on
// internal/worker/telemetry_shipper.go's telemetryBatchRequest pattern of
// wrapping a caller's data in a small outer JSON envelope.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/endlessm/eos-metrics-go/payload"
)

// Build renders { formParamName: { ...payload fields..., "fingerprint":
// fingerprint, "machine": machine } } as JSON, per spec.md §4.4. The
// output is write-only; the system never reads an envelope back.
func Build(p payload.Payload, formParamName, fingerprint string, machine int64) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("envelope: payload must not be nil")
	}

	inner := make(map[string]payload.Value, len(p)+2)
	for k, v := range p {
		inner[k] = v
	}
	inner["fingerprint"] = payload.String(fingerprint)
	inner["machine"] = payload.Int(machine)

	outer := map[string]map[string]payload.Value{
		formParamName: inner,
	}

	data, err := json.Marshal(outer)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal: %w", err)
	}
	return data, nil
}
