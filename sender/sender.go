// Package sender wraps a connection.Connection with a durable fallback
// queue: a direct send that fails is persisted to a JSON array file
// instead of being dropped, and a later drain operation replays the queue
// through the network. Grounded on internal/worker/telemetry_shipper.go
// for the shipping half and internal/retention/manager.go for the
// background ticker this package's auto-drain adds (see SPEC_FULL.md §4).
package sender

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/endlessm/eos-metrics-go/internal/obslog"
	"github.com/endlessm/eos-metrics-go/internal/obsmetrics"
	"github.com/endlessm/eos-metrics-go/payload"
)

// Conn is the subset of *connection.Connection a Sender needs, so tests
// can substitute a stub without a real network.
type Conn interface {
	SendSync(ctx context.Context, p payload.Payload) error
	SendAsync(ctx context.Context, p payload.Payload, completion func(error))
}

// Sender combines a Conn with a QueueFile fallback.
type Sender struct {
	conn      Conn
	queuePath string
	metrics   *obsmetrics.Metrics

	autoDrainMu  sync.Mutex
	autoDrainRun bool
	stopCh       chan struct{}
	stoppedCh    chan struct{}
}

// Option configures optional Sender behavior beyond the required conn and
// queuePath arguments to New.
type Option func(*Sender)

// WithMetrics attaches an obsmetrics.Metrics instance so SendDataSync,
// SendDataAsync, and DrainQueueSync record send latency/outcome and queue
// depth. Without this option the Sender uses a no-op Metrics, so callers
// that don't care about observability pay nothing for it.
func WithMetrics(m *obsmetrics.Metrics) Option {
	return func(s *Sender) {
		s.metrics = m
	}
}

// defaultStorageSubdir mirrors spec.md §4.6: non-absolute storage paths
// resolve against $XDG_DATA_HOME/eosmetrics/storage.
const defaultStorageSubdir = "eosmetrics/storage"

// New returns a Sender. If queuePath is not absolute, it is resolved
// against $XDG_DATA_HOME/eosmetrics/storage (falling back to
// ~/.local/share when XDG_DATA_HOME is unset).
func New(conn Conn, queuePath string, opts ...Option) *Sender {
	s := &Sender{
		conn:      conn,
		queuePath: resolveStoragePath(queuePath),
		metrics:   obsmetrics.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func resolveStoragePath(queuePath string) string {
	if filepath.IsAbs(queuePath) {
		return queuePath
	}

	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, defaultStorageSubdir, queuePath)
}

// QueuePath returns the resolved path of the backing QueueFile.
func (s *Sender) QueuePath() string {
	return s.queuePath
}

// SendDataSync attempts a direct synchronous send; on failure it queues
// the payload for later replay. Returns an error only if both the send
// and the enqueue fail, per spec.md §4.6.
func (s *Sender) SendDataSync(ctx context.Context, p payload.Payload) error {
	start := time.Now()
	sendErr := s.conn.SendSync(ctx, p)
	s.metrics.RecordSend(ctx, float64(time.Since(start).Milliseconds()), sendErr == nil)
	if sendErr == nil {
		return nil
	}
	obslog.Default().Debug("direct send failed, queueing", "error", sendErr)

	if err := appendToQueue(s.queuePath, p); err != nil {
		return fmt.Errorf("metrics data could neither be sent nor queued: %w", err)
	}
	s.metrics.RecordEnqueue(ctx)
	s.metrics.SetQueueDepth(len(readQueue(s.queuePath)))
	return nil
}

// SendDataAsync is the non-blocking form of SendDataSync. completion is
// invoked exactly once.
func (s *Sender) SendDataAsync(ctx context.Context, p payload.Payload, completion func(error)) {
	start := time.Now()
	s.conn.SendAsync(ctx, p, func(sendErr error) {
		s.metrics.RecordSend(ctx, float64(time.Since(start).Milliseconds()), sendErr == nil)
		if sendErr == nil {
			if completion != nil {
				completion(nil)
			}
			return
		}
		obslog.Default().Debug("direct send failed, queueing", "error", sendErr)

		err := appendToQueue(s.queuePath, p)
		if err != nil {
			err = fmt.Errorf("metrics data could neither be sent nor queued: %w", err)
		} else {
			s.metrics.RecordEnqueue(ctx)
			s.metrics.SetQueueDepth(len(readQueue(s.queuePath)))
		}
		if completion != nil {
			completion(err)
		}
	})
}

// DrainQueueSync snapshots the current queue, clears it, and replays each
// entry through SendDataSync in insertion order, so a replayed entry that
// fails to send again is re-enqueued rather than dropped. Per spec.md
// §4.6 this is a deliberate trade-off: the queue is cleared *before*
// replay starts, so entries are lost if the process crashes mid-drain
// (already-replayed entries are gone because the file was cleared up
// front; not-yet-replayed entries are gone for the same reason). Replay
// continues across individual send failures — SendDataSync only returns
// an error when an entry can neither be sent nor re-queued — and stops at
// the first such failure, which is returned.
func (s *Sender) DrainQueueSync(ctx context.Context) error {
	items := readQueue(s.queuePath)
	if err := writeQueue(s.queuePath, nil); err != nil {
		return fmt.Errorf("clearing queue before drain: %w", err)
	}
	s.metrics.SetQueueDepth(0)

	for _, item := range items {
		if err := s.SendDataSync(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// DrainQueueAsync runs DrainQueueSync on its own goroutine, matching
// spec.md §4.6/§5's worker-thread strategy for a flush that is many
// blocking I/O operations.
func (s *Sender) DrainQueueAsync(ctx context.Context, completion func(error)) {
	go func() {
		err := s.DrainQueueSync(ctx)
		if completion != nil {
			completion(err)
		}
	}()
}

// StartAutoDrain begins a background goroutine that calls DrainQueueSync
// every interval, retrying queued payloads without requiring an explicit
// caller-initiated drain. This recovers a real-world behavior of the
// original daemon (see SPEC_FULL.md §4) that spec.md's distillation
// dropped; it is not part of the core spec's required surface, but is
// additive and off by default. Grounded on internal/retention/manager.go's
// ticker + mutex-guarded running-flag + stop/stopped channel handshake.
func (s *Sender) StartAutoDrain(ctx context.Context, interval time.Duration) {
	s.autoDrainMu.Lock()
	defer s.autoDrainMu.Unlock()
	if s.autoDrainRun {
		return
	}
	s.autoDrainRun = true
	s.stopCh = make(chan struct{})
	s.stoppedCh = make(chan struct{})

	go s.runAutoDrain(ctx, interval, s.stopCh, s.stoppedCh)
}

func (s *Sender) runAutoDrain(ctx context.Context, interval time.Duration, stopCh, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.DrainQueueSync(ctx); err != nil {
				obslog.Default().Debug("auto-drain attempt failed, will retry", "error", err)
			}
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// StopAutoDrain stops the background auto-drain goroutine started by
// StartAutoDrain and waits for it to exit. A no-op if auto-drain isn't
// running.
func (s *Sender) StopAutoDrain() {
	s.autoDrainMu.Lock()
	running := s.autoDrainRun
	stopCh := s.stopCh
	stoppedCh := s.stoppedCh
	s.autoDrainRun = false
	s.autoDrainMu.Unlock()

	if !running {
		return
	}
	close(stopCh)
	<-stoppedCh
}
