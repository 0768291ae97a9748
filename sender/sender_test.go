package sender

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/endlessm/eos-metrics-go/internal/obsmetrics"
	"github.com/endlessm/eos-metrics-go/payload"
)

type stubConn struct {
	mu       sync.Mutex
	fail     bool
	sent     []payload.Payload
}

func (s *stubConn) SendSync(ctx context.Context, p payload.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errTestFailure
	}
	s.sent = append(s.sent, p)
	return nil
}

func (s *stubConn) SendAsync(ctx context.Context, p payload.Payload, completion func(error)) {
	err := s.SendSync(ctx, p)
	if completion != nil {
		completion(err)
	}
}

var errTestFailure = &testFailure{}

type testFailure struct{}

func (*testFailure) Error() string { return "stub send failure" }

func TestSendDataSyncSuccessLeavesQueueUntouched(t *testing.T) {
	dir := t.TempDir()
	queuePath := filepath.Join(dir, "queue.json")
	conn := &stubConn{}
	s := New(conn, queuePath)

	if err := s.SendDataSync(context.Background(), payload.Payload{"a": payload.Int(1)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(queuePath); !os.IsNotExist(err) {
		t.Fatalf("expected no queue file to be created, stat err: %v", err)
	}
}

func TestSendDataSyncFallsBackToQueue(t *testing.T) {
	dir := t.TempDir()
	queuePath := filepath.Join(dir, "queue.json")
	conn := &stubConn{fail: true}
	s := New(conn, queuePath)

	p := payload.Payload{"a": payload.Int(1)}
	if err := s.SendDataSync(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(queuePath)
	if err != nil {
		t.Fatalf("expected queue file to exist: %v", err)
	}
	var items []payload.Payload
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unmarshal queue: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 queued item, got %d", len(items))
	}
}

func TestDrainQueueSyncRoundTrip(t *testing.T) {
	dir := t.TempDir()
	queuePath := filepath.Join(dir, "queue.json")
	conn := &stubConn{fail: true}
	s := New(conn, queuePath)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.SendDataSync(ctx, payload.Payload{"i": payload.Int(int64(i))}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	conn.fail = false
	if err := s.DrainQueueSync(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if len(conn.sent) != 3 {
		t.Fatalf("expected 3 sends, got %d", len(conn.sent))
	}
	for i, p := range conn.sent {
		if p["i"].Int64 != int64(i) {
			t.Errorf("send order mismatch at %d: got %v", i, p)
		}
	}

	data, err := os.ReadFile(queuePath)
	if err != nil {
		t.Fatalf("read queue after drain: %v", err)
	}
	if string(data) != "[]" {
		t.Fatalf("expected queue file == []  after drain, got %q", string(data))
	}
}

func TestDrainQueueSyncReenqueuesOnRepeatedFailure(t *testing.T) {
	dir := t.TempDir()
	queuePath := filepath.Join(dir, "queue.json")
	conn := &stubConn{fail: true}
	s := New(conn, queuePath)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := s.SendDataSync(ctx, payload.Payload{"i": payload.Int(int64(i))}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	// conn still fails every send: each replayed entry should be
	// re-queued rather than dropped, so DrainQueueSync reports no error.
	if err := s.DrainQueueSync(ctx); err != nil {
		t.Fatalf("expected drain to succeed by re-queueing, got: %v", err)
	}

	data, err := os.ReadFile(queuePath)
	if err != nil {
		t.Fatalf("read queue: %v", err)
	}
	var items []payload.Payload
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unmarshal queue: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 re-queued items, got %d", len(items))
	}
	for i, p := range items {
		if p["i"].Int64 != int64(i) {
			t.Errorf("re-queue order mismatch at %d: got %v", i, p)
		}
	}
}

func TestWithMetricsRecordsSendAndQueueDepth(t *testing.T) {
	dir := t.TempDir()
	queuePath := filepath.Join(dir, "queue.json")
	conn := &stubConn{fail: true}
	m, err := obsmetrics.New(context.Background(), obsmetrics.Config{
		Enabled: true, ExporterType: obsmetrics.ExporterStdout,
	})
	if err != nil {
		t.Fatalf("obsmetrics.New: %v", err)
	}
	defer m.Shutdown(context.Background())

	s := New(conn, queuePath, WithMetrics(m))
	if err := s.SendDataSync(context.Background(), payload.Payload{"a": payload.Int(1)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conn.fail = false
	if err := s.DrainQueueSync(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

func TestNonAbsoluteQueuePathResolvesUnderXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)

	conn := &stubConn{}
	s := New(conn, "queue.json")
	want := filepath.Join(dir, "eosmetrics", "storage", "queue.json")
	if s.QueuePath() != want {
		t.Fatalf("got %q want %q", s.QueuePath(), want)
	}
}
