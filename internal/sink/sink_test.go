package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tickwatch/tickwatch/internal/models"
)

type fakeWriter struct {
	mu     sync.Mutex
	alerts []models.Alert
	err    error
}

func (w *fakeWriter) InsertAlert(alert *models.Alert) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.alerts = append(w.alerts, *alert)
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.alerts)
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (b *fakeBroadcaster) Broadcast(alert models.Alert) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts = append(b.alerts, alert)
}

func (b *fakeBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.alerts)
}

func testAlert(symbol string) models.Alert {
	return models.Alert{ID: "id-" + symbol, Symbol: symbol, Price: 101, FiredAt: time.Now()}
}

func runSink(t *testing.T, s *Sink) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return cancel
}

func TestDispatchFansOut(t *testing.T) {
	writer := &fakeWriter{}
	broadcaster := &fakeBroadcaster{}
	s := New(writer, broadcaster)
	cancel := runSink(t, s)

	s.Dispatch(testAlert("RELIANCE"))
	s.Dispatch(testAlert("TCS"))

	cancel()
	<-s.Done()

	if writer.count() != 2 {
		t.Errorf("persisted %d alerts, want 2", writer.count())
	}
	if broadcaster.count() != 2 {
		t.Errorf("broadcast %d alerts, want 2", broadcaster.count())
	}
}

func TestStorageFailureDoesNotSuppressBroadcast(t *testing.T) {
	writer := &fakeWriter{err: errors.New("disk full")}
	broadcaster := &fakeBroadcaster{}
	s := New(writer, broadcaster)
	cancel := runSink(t, s)

	s.Dispatch(testAlert("RELIANCE"))

	cancel()
	<-s.Done()

	if broadcaster.count() != 1 {
		t.Errorf("broadcast %d alerts despite storage failure, want 1", broadcaster.count())
	}
}

func TestDispatchNeverBlocks(t *testing.T) {
	writer := &fakeWriter{}
	broadcaster := &fakeBroadcaster{}
	s := New(writer, broadcaster, WithQueueSize(1))
	// Dispatcher deliberately not running: the queue fills at 1 and
	// further dispatches must drop instead of blocking.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			s.Dispatch(testAlert("RELIANCE"))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}
}

type fakeNotifier struct {
	mu    sync.Mutex
	count int
	err   error
}

func (n *fakeNotifier) Notify(models.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
	return n.err
}

func TestNotifierFailureIsBestEffort(t *testing.T) {
	writer := &fakeWriter{}
	broadcaster := &fakeBroadcaster{}
	notifier := &fakeNotifier{err: errors.New("chat unreachable")}
	s := New(writer, broadcaster, WithNotifier(notifier))
	cancel := runSink(t, s)

	s.Dispatch(testAlert("RELIANCE"))
	s.Dispatch(testAlert("TCS"))

	cancel()
	<-s.Done()

	if writer.count() != 2 || broadcaster.count() != 2 {
		t.Errorf("persist/broadcast = %d/%d, want 2/2 despite notifier failure",
			writer.count(), broadcaster.count())
	}
}
