// Package hostid produces the two stable values that identify this
// installation to the collection server: a persisted UUID fingerprint and a
// MAC-derived machine identifier. Both are memoized once per process (or,
// here, once per HostIdentity instance) per spec.md §4.1.
package hostid

import "sync"

// HostIdentity computes and memoizes the fingerprint and machine ID for one
// Connection. It is safe for concurrent use: each value is computed at most
// once via sync.Once, matching spec.md's "idempotent memoized getter" class
// of operation.
type HostIdentity struct {
	fingerprintPath string

	fingerprintOnce sync.Once
	fingerprint     string

	machineIDOnce sync.Once
	machineID     int64
}

// New returns a HostIdentity backed by a fingerprint file at fingerprintPath.
func New(fingerprintPath string) *HostIdentity {
	return &HostIdentity{fingerprintPath: fingerprintPath}
}

// Fingerprint returns this installation's UUID, generating and persisting
// one on first call if fingerprintPath doesn't yet hold a valid UUID.
// Stable across calls on the same HostIdentity; stable across process
// restarts as long as the fingerprint file survives.
func (h *HostIdentity) Fingerprint() string {
	h.fingerprintOnce.Do(func() {
		h.fingerprint = readOrCreateFingerprint(h.fingerprintPath)
	})
	return h.fingerprint
}

// MachineID returns the 48-bit MAC-derived machine identifier, or
// SentinelMachineID if no identifying hardware MAC could be found.
func (h *HostIdentity) MachineID() int64 {
	h.machineIDOnce.Do(func() {
		h.machineID = computeMachineID()
	})
	return h.machineID
}
