package feed

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tickwatch/tickwatch/internal/engine"
	"github.com/tickwatch/tickwatch/internal/logger"
	"github.com/tickwatch/tickwatch/internal/models"
)

// State names the supervisor's position in the connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSubscribing  State = "subscribing"
	StateStreaming    State = "streaming"
)

// subscribeRequest names every watched token; modeRequest asks the feed
// for full-depth tick payloads on those tokens.
type subscribeRequest struct {
	Action string   `json:"a"`
	Tokens []string `json:"v"`
}

type modeRequest struct {
	Action string `json:"a"`
	Params []any  `json:"v"`
}

// tickFrame is one inbound message. Frames that fail to decode or carry
// no ticks container are discarded; they never terminate the connection.
type tickFrame struct {
	Type  string        `json:"type"`
	Ticks []models.Tick `json:"ticks"`
}

// AlertSink receives fired alerts. Dispatch must not block tick
// processing; implementations hand off and return.
type AlertSink interface {
	Dispatch(alert models.Alert)
}

// Stats is a snapshot of supervisor counters for the health surface.
type Stats struct {
	State         State  `json:"state"`
	Connects      uint64 `json:"connects"`
	Disconnects   uint64 `json:"disconnects"`
	TicksSeen     uint64 `json:"ticks_seen"`
	FramesDropped uint64 `json:"frames_dropped"`
	AlertsFired   uint64 `json:"alerts_fired"`
}

// Supervisor owns the upstream connection lifecycle: connect, subscribe,
// stream, and reconnect after a fixed delay on any failure. It never
// gives up; cancellation of the Run context is the only exit. Per-symbol
// state lives in the store and survives reconnects.
type Supervisor struct {
	dialer    Dialer
	directory *models.Directory
	store     *engine.Store
	rules     engine.Rules
	sink      AlertSink

	reconnectDelay time.Duration

	mu    sync.Mutex
	state State

	connects      atomic.Uint64
	disconnects   atomic.Uint64
	ticksSeen     atomic.Uint64
	framesDropped atomic.Uint64
	alertsFired   atomic.Uint64
}

// NewSupervisor wires the feed pipeline together.
func NewSupervisor(dialer Dialer, directory *models.Directory, store *engine.Store, rules engine.Rules, sink AlertSink, reconnectDelay time.Duration) *Supervisor {
	return &Supervisor{
		dialer:         dialer,
		directory:      directory,
		store:          store,
		rules:          rules,
		sink:           sink,
		reconnectDelay: reconnectDelay,
		state:          StateDisconnected,
	}
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Stats returns a snapshot of the supervisor counters.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	return Stats{
		State:         state,
		Connects:      s.connects.Load(),
		Disconnects:   s.disconnects.Load(),
		TicksSeen:     s.ticksSeen.Load(),
		FramesDropped: s.framesDropped.Load(),
		AlertsFired:   s.alertsFired.Load(),
	}
}

// Run drives the connection loop until ctx is cancelled. Every exit from
// streaming schedules exactly one reconnect attempt after the fixed
// delay; reconnection is unconditional and unlimited.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return
		}

		s.setState(StateConnecting)
		conn, err := s.dialer.Dial(ctx)
		if err != nil {
			logger.Error("Feed connect failed: %v", err)
			if !s.sleep(ctx) {
				s.setState(StateDisconnected)
				return
			}
			continue
		}
		s.connects.Add(1)
		logger.Info("Feed connected")

		s.setState(StateSubscribing)
		if err := s.subscribe(conn); err != nil {
			logger.Error("Feed subscribe failed: %v", err)
			_ = conn.Close()
			s.disconnects.Add(1)
			if !s.sleep(ctx) {
				s.setState(StateDisconnected)
				return
			}
			continue
		}
		logger.Info("Subscribed %d instruments in full mode", s.directory.Len())

		s.setState(StateStreaming)
		s.stream(ctx, conn)
		_ = conn.Close()
		s.disconnects.Add(1)

		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return
		}
		logger.Warn("Feed disconnected, reconnecting in %v", s.reconnectDelay)
		if !s.sleep(ctx) {
			s.setState(StateDisconnected)
			return
		}
	}
}

// sleep waits out the reconnect delay; false means ctx was cancelled.
func (s *Supervisor) sleep(ctx context.Context) bool {
	timer := time.NewTimer(s.reconnectDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Supervisor) subscribe(conn Conn) error {
	tokens := s.directory.Tokens()
	if err := conn.WriteJSON(subscribeRequest{Action: "subscribe", Tokens: tokens}); err != nil {
		return err
	}
	return conn.WriteJSON(modeRequest{Action: "mode", Params: []any{"full", tokens}})
}

// stream reads frames until the connection fails or ctx is cancelled.
func (s *Supervisor) stream(ctx context.Context, conn Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close() // unblocks the pending read
		case <-done:
		}
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("Feed read failed: %v", err)
			}
			return
		}
		s.handleFrame(data)
	}
}

// handleFrame decodes one inbound frame and pushes its ticks through the
// store and evaluator in arrival order.
func (s *Supervisor) handleFrame(data []byte) {
	var frame tickFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.framesDropped.Add(1)
		logger.Debug("Discarding undecodable frame: %v", err)
		return
	}
	if frame.Ticks == nil {
		s.framesDropped.Add(1)
		logger.Debug("Discarding frame without ticks container (type=%q)", frame.Type)
		return
	}

	for _, tick := range frame.Ticks {
		s.processTick(tick)
	}
}

func (s *Supervisor) processTick(tick models.Tick) {
	// Upstream feeds routinely carry extraneous tokens; drop quietly.
	symbol, ok := s.directory.Resolve(tick.Token)
	if !ok {
		return
	}
	s.ticksSeen.Add(1)

	state, initialized, release := s.store.GetOrInit(symbol, tick)
	if initialized {
		// Baseline sample: no previous price to compare against yet.
		release()
		return
	}

	alert := engine.Evaluate(state, tick, s.rules, time.Now())
	release()

	if alert != nil {
		s.alertsFired.Add(1)
		logger.Info("Alert fired for %s at %.2f: %s", alert.Symbol, alert.Price, alert.Criteria)
		s.sink.Dispatch(*alert)
	}
}
