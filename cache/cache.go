// Package cache implements the PersistentCache: a bounded, versioned,
// byte-framed store across three event families (individual, aggregate,
// sequence), intended as the durable staging area for a daemon that
// aggregates many processes' events. It is independent of sender.Sender;
// both share the shape of "durable staging before network," but the
// cache is a lower-level, higher-throughput sink with its own on-disk
// format. Grounded on internal/artifacts/store.go's mutex-guarded
// filesystem store, generalized to the exact byte framing and capacity
// state machine of original_source/eosmetrics/emtr-persistent-cache.c.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Capacity reports how full the cache is.
type Capacity int

const (
	Low Capacity = iota
	High
	Max
)

func (c Capacity) String() string {
	switch c {
	case Low:
		return "low"
	case High:
		return "high"
	case Max:
		return "max"
	default:
		return "unknown"
	}
}

const (
	defaultMaxCacheSize    = 100 * 1024
	defaultHighThreshold   = 0.75
	defaultCurrentVersion  = 2
	defaultCacheDirectory  = "/var/cache/metrics/"
	individualFilename     = "cache_individual.metrics"
	aggregateFilename      = "cache_aggregate.metrics"
	sequenceFilename       = "cache_sequence.metrics"
	metafileFilename       = "cache_version.metrics"
	cacheDirMode           = 0o777
	cacheFileMode          = 0o600
)

// Config configures a Cache. The zero value is filled in by withDefaults
// to the original daemon's compile-time constants; spec.md §9 calls out
// MAX_CACHE_SIZE/CACHE_DIRECTORY as mutable test globals that a
// reimplementation should replace with explicit configuration, which is
// what this struct is.
type Config struct {
	// Directory is where the metafile and the three family files live.
	Directory string
	// MaxSize is the total on-disk byte budget across all three family
	// files before the cache reports Max capacity.
	MaxSize uint64
	// HighThreshold is the fraction of MaxSize at which capacity reports
	// High instead of Low.
	HighThreshold float64
	// CurrentVersion is written to the metafile; a mismatch on Init
	// triggers a silent purge of all cached records.
	CurrentVersion int
}

func (c Config) withDefaults() Config {
	if c.Directory == "" {
		c.Directory = defaultCacheDirectory
	}
	if c.MaxSize == 0 {
		c.MaxSize = defaultMaxCacheSize
	}
	if c.HighThreshold == 0 {
		c.HighThreshold = defaultHighThreshold
	}
	if c.CurrentVersion == 0 {
		c.CurrentVersion = defaultCurrentVersion
	}
	return c
}

// Cache is the PersistentCache. Every method holds mu for its whole
// duration, so concurrent calls on the same instance run one at a time.
type Cache struct {
	cfg Config

	mu        sync.Mutex
	cacheSize uint64
	capacity  Capacity
}

// New constructs a Cache. Init must be called before Store/Drain.
func New(cfg Config) *Cache {
	return &Cache{cfg: cfg.withDefaults()}
}

var (
	sharedOnce  sync.Once
	sharedCache *Cache
	sharedErr   error
)

// Shared returns a process-wide Cache using the default Config,
// initialized exactly once. This is the "singleton" spec.md §9 wants
// kept as an application-level convenience rather than hidden mutable
// globals.
func Shared() (*Cache, error) {
	sharedOnce.Do(func() {
		sharedCache = New(Config{})
		sharedErr = sharedCache.Init()
	})
	return sharedCache, sharedErr
}

func (c *Cache) path(name string) string {
	return filepath.Join(c.cfg.Directory, name)
}

// Init ensures the cache directory exists, resolves the on-disk format
// version (purging all family files on any mismatch or unreadable
// metafile), and measures the resulting on-disk size to seed the
// capacity state machine.
func (c *Cache) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.cfg.Directory, cacheDirMode); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	version, ok := c.readVersion()
	if !ok || version != c.cfg.CurrentVersion {
		if err := c.purgeLocked(); err != nil {
			return fmt.Errorf("purge stale cache: %w", err)
		}
		if err := c.writeVersion(); err != nil {
			return fmt.Errorf("write cache version: %w", err)
		}
	}

	size, err := c.measureLocked()
	if err != nil {
		return fmt.Errorf("measure cache size: %w", err)
	}
	c.cacheSize = size
	c.capacity = capacityFor(size, c.cfg.MaxSize, c.cfg.HighThreshold)
	return nil
}

func (c *Cache) readVersion() (int, bool) {
	data, err := os.ReadFile(c.path(metafileFilename))
	if err != nil {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return v, true
}

func (c *Cache) writeVersion() error {
	data := []byte(strconv.Itoa(c.cfg.CurrentVersion))
	return os.WriteFile(c.path(metafileFilename), data, cacheFileMode)
}

func (c *Cache) purgeLocked() error {
	for _, name := range []string{individualFilename, aggregateFilename, sequenceFilename} {
		if err := os.WriteFile(c.path(name), nil, cacheFileMode); err != nil {
			return fmt.Errorf("truncate %s: %w", name, err)
		}
	}
	return nil
}

func (c *Cache) measureLocked() (uint64, error) {
	var total uint64
	for _, name := range []string{individualFilename, aggregateFilename, sequenceFilename} {
		info, err := os.Stat(c.path(name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += uint64(info.Size())
	}
	return total, nil
}

func capacityFor(size, max uint64, highThreshold float64) Capacity {
	if float64(size) >= highThreshold*float64(max) {
		return High
	}
	return Low
}

// Store appends each of individual, aggregate, and sequence to its
// family's cache file, in order, stopping a list (and all subsequent
// lists) as soon as the cache would exceed MaxSize. Intentional drops
// due to capacity are not errors; only I/O failures are. The returned
// Capacity reflects state after the call, and dropped is the number of
// records across all three families that were not written: the record
// that would have exceeded MaxSize, and every record after it.
func (c *Cache) Store(individual []IndividualRecord, aggregate []AggregateRecord, sequence []SequenceRecord) (capacity Capacity, dropped int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := appendFamily(c, individualFilename, individual, encodeIndividual)
	dropped += n
	if err != nil {
		return c.capacity, dropped, err
	}
	n, err = appendFamily(c, aggregateFilename, aggregate, encodeAggregate)
	dropped += n
	if err != nil {
		return c.capacity, dropped, err
	}
	n, err = appendFamily(c, sequenceFilename, sequence, encodeSequence)
	dropped += n
	if err != nil {
		return c.capacity, dropped, err
	}
	return c.capacity, dropped, nil
}

// appendFamily encodes and appends each record in records to filename,
// stopping as soon as the cache reports Max capacity. It returns the
// number of records left unwritten, counting the one that set Max.
func appendFamily[T any](c *Cache, filename string, records []T, encode func(T) ([]byte, error)) (dropped int, err error) {
	for i, rec := range records {
		if c.capacity == Max {
			return len(records) - i, nil
		}
		data, err := encode(rec)
		if err != nil {
			return 0, fmt.Errorf("encode record for %s: %w", filename, err)
		}
		if err := c.appendFramedLocked(filename, data); err != nil {
			return 0, err
		}
		if c.capacity == Max {
			// appendFramedLocked set Max without writing rec: it, and
			// every record after it, was dropped.
			return len(records) - i, nil
		}
	}
	return 0, nil
}

// appendFramedLocked appends one [len][bytes] frame to filename, unless
// doing so would exceed MaxSize, in which case it sets capacity to Max
// (sticky) and returns without writing. Caller holds c.mu.
func (c *Cache) appendFramedLocked(filename string, data []byte) error {
	recordSize := uint64(lengthPrefixSize + len(data))
	if c.cacheSize+recordSize > c.cfg.MaxSize {
		c.capacity = Max
		return nil
	}

	f, err := os.OpenFile(c.path(filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, cacheFileMode)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", filename, err)
	}
	defer f.Close()

	if err := writeFramedRecord(f, data); err != nil {
		return fmt.Errorf("append to %s: %w", filename, err)
	}

	c.cacheSize += recordSize
	c.capacity = capacityFor(c.cacheSize, c.cfg.MaxSize, c.cfg.HighThreshold)
	return nil
}

// Drain reads and returns every record from all three family files, then
// purges them and resets capacity to Low — but only if all three families
// were read successfully; a failure anywhere leaves on-disk state
// untouched, per spec.md §4.7.
func (c *Cache) Drain() ([]IndividualRecord, []AggregateRecord, []SequenceRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	individual, err := readFamily(c.path(individualFilename), decodeIndividual)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("drain individual cache: %w", err)
	}
	aggregate, err := readFamily(c.path(aggregateFilename), decodeAggregate)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("drain aggregate cache: %w", err)
	}
	sequence, err := readFamily(c.path(sequenceFilename), decodeSequence)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("drain sequence cache: %w", err)
	}

	if err := c.purgeLocked(); err != nil {
		return nil, nil, nil, fmt.Errorf("purge after drain: %w", err)
	}
	c.cacheSize = 0
	c.capacity = Low

	return individual, aggregate, sequence, nil
}

func readFamily[T any](path string, decode func([]byte) (T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var out []T
	for {
		data, ok, err := readFramedRecord(f)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		rec, err := decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// CapacityState returns the cache's current capacity without mutating it.
func (c *Cache) CapacityState() Capacity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}
