package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mpapenbr/racesim-client/log"
	"github.com/mpapenbr/racesim-client/pkg/channel"
	"github.com/mpapenbr/racesim-client/pkg/model"
	"github.com/mpapenbr/racesim-client/pkg/utils/broadcast"
)

// number of snapshots buffered for the broadcast server.
// Snapshots are dropped when the buffer is full.
const snapshotBuffer = 64

// Transport is the part of the channel manager used by the controller
type Transport interface {
	Connect(ctx context.Context)
	Send(frame model.Outbound) bool
	Disconnect()
	OnFrame(h channel.FrameHandler)
	OnStateChange(h channel.StateHandler)
	OnError(h channel.ErrorHandler)
}

type StartOptions struct {
	PlayerName   string
	TotalLaps    int
	RainLap      *int
	SafetyCarLap *int
}

type ControllerOption func(c *Controller)

// WithSessionID sets the session id used until the simulator announces its own
func WithSessionID(id string) ControllerOption {
	return func(c *Controller) {
		c.session.SessionID = id
	}
}

// WithErrorHandler registers a callback for transport errors
func WithErrorHandler(h channel.ErrorHandler) ControllerOption {
	return func(c *Controller) {
		c.onError = h
	}
}

// Controller owns the Session of one race. Inbound frames and local commands
// are reduced one at a time, the resulting snapshots are published to the
// subscribers in the order they were produced.
type Controller struct {
	transport Transport
	logger    *log.Logger
	onError   channel.ErrorHandler

	mu      sync.Mutex
	session Session
	closed  bool
	updates chan Session

	mounted   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
	bcast     broadcast.BroadcastServer[Session]
}

func NewController(t Transport, opts ...ControllerOption) *Controller {
	c := &Controller{
		transport: t,
		logger:    log.Default().Named("session"),
		session:   Initial(),
		updates:   make(chan Session, snapshotBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.bcast = broadcast.NewBroadcastServer[Session](c.session.SessionID, "session", c.updates)
	return c
}

// Start registers the transport handlers and starts connecting.
// Only the first call has an effect.
func (c *Controller) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		c.mounted.Store(true)
		c.transport.OnFrame(func(frame model.Inbound) {
			c.apply(FrameReceived{Frame: frame})
		})
		c.transport.OnStateChange(func(state channel.ConnectionState) {
			c.apply(ConnectionChanged{State: state})
		})
		c.transport.OnError(c.handleError)
		c.transport.Connect(ctx)
	})
}

// StartRace asks the simulator to start a new race.
// Returns false if the request could not be sent.
func (c *Controller) StartRace(opts StartOptions) bool {
	if !c.mounted.Load() {
		c.logger.Warn("controller not started, ignoring start request")
		return false
	}
	if opts.PlayerName == "" || opts.TotalLaps < 1 {
		c.logger.Warn("invalid start options",
			log.String("player", opts.PlayerName),
			log.Int("totalLaps", opts.TotalLaps))
		return false
	}
	c.logger.Info("requesting race start",
		log.String("player", opts.PlayerName),
		log.Int("totalLaps", opts.TotalLaps))
	return c.transport.Send(model.StartGame{
		PlayerName:   opts.PlayerName,
		TotalLaps:    opts.TotalLaps,
		RainLap:      opts.RainLap,
		SafetyCarLap: opts.SafetyCarLap,
	})
}

// ChooseStrategy resolves the active decision with the given strategy.
// Returns false if there was no active decision. The decision is recorded in
// the history even if the selection could not be sent.
func (c *Controller) ChooseStrategy(strategyID string) bool {
	return c.apply(ChooseStrategy{StrategyID: strategyID})
}

// ChooseStrategyFor resolves d with the given strategy. Nothing happens if d
// is no longer the active decision.
func (c *Controller) ChooseStrategyFor(d *DecisionPoint, strategyID string) bool {
	if d == nil {
		return false
	}
	return c.apply(ChooseStrategy{StrategyID: strategyID, Lap: d.Lap, EventType: d.EventType})
}

// Restart resets the session. The connection is not affected.
func (c *Controller) Restart() {
	c.apply(Restart{})
}

// Snapshot returns the current session
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Subscribe returns a channel which receives every new session snapshot.
// The channel is closed when the controller is closed.
func (c *Controller) Subscribe() <-chan Session {
	return c.bcast.Subscribe()
}

func (c *Controller) Unsubscribe(ch <-chan Session) {
	c.bcast.CancelSubscription(ch)
}

// Close tears down the connection and stops publishing snapshots.
// After Close returns the session is not modified anymore.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mounted.Store(false)
		c.transport.Disconnect()

		c.mu.Lock()
		c.closed = true
		close(c.updates)
		c.mu.Unlock()
		c.bcast.Close()
		c.logger.Debug("controller closed")
	})
}

// apply reduces ev and sends the resulting frames.
// Returns true if ev produced outbound frames.
func (c *Controller) apply(ev Event) bool {
	if !c.mounted.Load() {
		c.logger.Debug("controller not mounted, ignoring event", log.Any("event", ev))
		return false
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	next, out := Reduce(c.session, ev)
	c.session = next
	c.publish(next)
	c.mu.Unlock()

	for _, frame := range out {
		if !c.transport.Send(frame) {
			c.logger.Warn("frame not sent",
				log.String("type", string(frame.MessageType())))
		}
	}
	return len(out) > 0
}

// must be called with c.mu held
func (c *Controller) publish(s Session) {
	select {
	case c.updates <- s:
	default:
		c.logger.Warn("snapshot buffer full, dropping snapshot",
			log.Int("lap", s.CurrentLap))
	}
}

func (c *Controller) handleError(err error) {
	if !c.mounted.Load() {
		return
	}
	c.logger.Debug("transport error", log.ErrorField(err))
	if c.onError != nil {
		c.onError(err)
	}
}
