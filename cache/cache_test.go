package cache

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/endlessm/eos-metrics-go/payload"
)

func newTestCache(t *testing.T, maxSize uint64) *Cache {
	t.Helper()
	c := New(Config{Directory: t.TempDir(), MaxSize: maxSize})
	if err := c.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return c
}

func TestStoreDrainRoundTrip(t *testing.T) {
	c := newTestCache(t, defaultMaxCacheSize)

	id := uuid.New()
	records := []IndividualRecord{
		{EventID: id, Relative: 1},
		{EventID: id, Relative: 2},
		{EventID: id, Relative: 3},
	}

	if _, _, err := c.Store(records, nil, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	individual, aggregate, sequence, err := c.Drain()
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(aggregate) != 0 || len(sequence) != 0 {
		t.Fatalf("expected empty aggregate/sequence, got %d/%d", len(aggregate), len(sequence))
	}
	if len(individual) != 3 {
		t.Fatalf("expected 3 individual records, got %d", len(individual))
	}
	for i, rec := range individual {
		if rec.EventID != id || rec.Relative != records[i].Relative {
			t.Errorf("record %d mismatch: got %+v want %+v", i, rec, records[i])
		}
	}
}

func TestStoreDrainRoundTripWithPayload(t *testing.T) {
	c := newTestCache(t, defaultMaxCacheSize)

	id := uuid.New()
	p := payload.Payload{"clicks": payload.Int(5)}
	records := []AggregateRecord{
		{EventID: id, Relative: 10, Count: 4, Payload: &p},
	}

	if _, _, err := c.Store(nil, records, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	_, aggregate, _, err := c.Drain()
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(aggregate) != 1 {
		t.Fatalf("expected 1 aggregate record, got %d", len(aggregate))
	}
	got := aggregate[0]
	if got.EventID != id || got.Relative != 10 || got.Count != 4 {
		t.Fatalf("mismatch: %+v", got)
	}
	if got.Payload == nil || (*got.Payload)["clicks"].Int64 != 5 {
		t.Fatalf("payload not round-tripped: %+v", got.Payload)
	}
}

func TestStoreDrainSequenceRecord(t *testing.T) {
	c := newTestCache(t, defaultMaxCacheSize)

	id := uuid.New()
	records := []SequenceRecord{
		{
			EventID: id,
			Events: []SequenceEvent{
				{Relative: 1},
				{Relative: 2},
				{Relative: 3},
			},
		},
	}

	if _, _, err := c.Store(nil, nil, records); err != nil {
		t.Fatalf("Store: %v", err)
	}

	_, _, sequence, err := c.Drain()
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(sequence) != 1 || len(sequence[0].Events) != 3 {
		t.Fatalf("mismatch: %+v", sequence)
	}
}

func TestDrainPurgesAndResetsCapacity(t *testing.T) {
	c := newTestCache(t, defaultMaxCacheSize)

	if _, _, err := c.Store([]IndividualRecord{{EventID: uuid.New(), Relative: 1}}, nil, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, _, _, err := c.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := c.CapacityState(); got != Low {
		t.Fatalf("expected Low after drain, got %v", got)
	}

	individual, _, _, err := c.Drain()
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if len(individual) != 0 {
		t.Fatalf("expected empty cache after purge, got %d records", len(individual))
	}
}

// recordByteSize computes the on-disk size of one framed individual
// record with no payload: a 16-byte UUID, an 8-byte relative timestamp and
// a 1-byte absent-payload marker, length-prefixed by an 8-byte length field.
func recordByteSize() uint64 {
	return lengthPrefixSize + 16 + 8 + 1
}

func TestCapacityTransitionsToHighThenMax(t *testing.T) {
	size := recordByteSize()
	// Pick MaxSize so that one record stays under the 75% threshold, two
	// records reach exactly 100% (still High, not yet over budget), and a
	// third would exceed MaxSize outright.
	maxSize := size * 2
	c := newTestCache(t, maxSize)

	cap1, dropped1, err := c.Store([]IndividualRecord{{EventID: uuid.New(), Relative: 1}}, nil, nil)
	if err != nil {
		t.Fatalf("store 1: %v", err)
	}
	if cap1 != Low {
		t.Fatalf("after 1 record, expected Low, got %v (size=%d max=%d)", cap1, size, maxSize)
	}
	if dropped1 != 0 {
		t.Fatalf("expected no drops for record 1, got %d", dropped1)
	}

	cap2, dropped2, err := c.Store([]IndividualRecord{{EventID: uuid.New(), Relative: 2}}, nil, nil)
	if err != nil {
		t.Fatalf("store 2: %v", err)
	}
	if cap2 != High {
		t.Fatalf("after 2 records (%.0f%% full), expected High, got %v", 100*float64(2*size)/float64(maxSize), cap2)
	}
	if dropped2 != 0 {
		t.Fatalf("expected no drops for record 2, got %d", dropped2)
	}

	cap3, dropped3, err := c.Store([]IndividualRecord{{EventID: uuid.New(), Relative: 3}}, nil, nil)
	if err != nil {
		t.Fatalf("store 3: %v", err)
	}
	if cap3 != Max {
		t.Fatalf("after exceeding MaxSize, expected Max, got %v", cap3)
	}
	if dropped3 != 1 {
		t.Fatalf("expected the 3rd record to be reported dropped, got %d", dropped3)
	}

	individual, _, _, err := c.Drain()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(individual) != 2 {
		t.Fatalf("expected the 2 previously-stored records to survive, got %d", len(individual))
	}
}

func TestVersionMismatchPurgesOnInit(t *testing.T) {
	dir := t.TempDir()
	c := New(Config{Directory: dir, MaxSize: defaultMaxCacheSize})
	if err := c.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, _, err := c.Store([]IndividualRecord{{EventID: uuid.New(), Relative: 1}}, nil, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	// Simulate a stale on-disk version by writing an old version number,
	// the way CURRENT_VERSION being bumped in a future release would.
	if err := os.WriteFile(filepath.Join(dir, metafileFilename), []byte("1"), cacheFileMode); err != nil {
		t.Fatal(err)
	}

	c2 := New(Config{Directory: dir, MaxSize: defaultMaxCacheSize, CurrentVersion: 2})
	if err := c2.Init(); err != nil {
		t.Fatalf("re-Init: %v", err)
	}

	individual, aggregate, sequence, err := c2.Drain()
	if err != nil {
		t.Fatalf("drain after version purge: %v", err)
	}
	if len(individual) != 0 || len(aggregate) != 0 || len(sequence) != 0 {
		t.Fatalf("expected all families empty after version purge, got %d/%d/%d",
			len(individual), len(aggregate), len(sequence))
	}

	data, err := os.ReadFile(filepath.Join(dir, metafileFilename))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "2" {
		t.Fatalf("expected metafile to read new version, got %q", data)
	}
}

func TestEndianNormalizationOnDisk(t *testing.T) {
	c := newTestCache(t, defaultMaxCacheSize)

	id := uuid.New()
	relative := int64(0x0102030405060708)
	if _, _, err := c.Store([]IndividualRecord{{EventID: id, Relative: relative}}, nil, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(c.cfg.Directory, individualFilename))
	if err != nil {
		t.Fatal(err)
	}

	// [8-byte little-endian length][16-byte UUID][8-byte little-endian
	// relative timestamp][1-byte absent-payload marker]
	wantLen := uint64(16 + 8 + 1)
	gotLen := binary.LittleEndian.Uint64(data[0:8])
	if gotLen != wantLen {
		t.Fatalf("frame length = %d, want %d", gotLen, wantLen)
	}

	relativeBytes := data[8+16 : 8+16+8]
	wantBytes := []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}
	for i := range wantBytes {
		if relativeBytes[i] != wantBytes[i] {
			t.Fatalf("relative timestamp bytes = % x, want % x", relativeBytes, wantBytes)
		}
	}
}

func TestDrainLeavesDiskUntouchedOnFailure(t *testing.T) {
	dir := t.TempDir()
	c := New(Config{Directory: dir, MaxSize: defaultMaxCacheSize})
	if err := c.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, _, err := c.Store([]IndividualRecord{{EventID: uuid.New(), Relative: 1}}, nil, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	// Corrupt the individual family file with a truncated trailing
	// record: a length prefix claiming more bytes than actually follow.
	path := filepath.Join(dir, individualFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var badLen [8]byte
	binary.LittleEndian.PutUint64(badLen[:], 9999)
	corrupted := append(data, badLen[:]...)
	if err := os.WriteFile(path, corrupted, cacheFileMode); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, _, err := c.Drain(); err == nil {
		t.Fatal("expected drain to fail on a truncated trailing record")
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatal("on-disk state changed despite a failed drain")
	}
}
