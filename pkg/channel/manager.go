// Package channel keeps the push connection to the race simulator alive.
//
// A Manager owns at most one websocket connection. Unexpected closes are
// answered with a bounded number of reconnect attempts using a flat interval.
// The budget is restored only after a connection delivered a valid frame.
// Inbound frames are decoded and delivered in order to a single handler,
// outbound frames are sent best-effort: while not connected they are dropped.
package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/mpapenbr/racesim-client/log"
	"github.com/mpapenbr/racesim-client/pkg/model"
)

const (
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultHandshakeTimeout     = 10 * time.Second
)

type (
	FrameHandler func(frame model.Inbound)
	StateHandler func(state ConnectionState)
	ErrorHandler func(err error)
)

type Option func(m *Manager)

func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

func WithReconnectInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.reconnectInterval = d
	}
}

// WithMaxReconnectAttempts sets the reconnect ceiling. 0 disables reconnects.
func WithMaxReconnectAttempts(n int) Option {
	return func(m *Manager) {
		m.maxAttempts = n
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.handshakeTimeout = d
	}
}

type Manager struct {
	url               string
	dialer            Dialer
	reconnectInterval time.Duration
	maxAttempts       int
	handshakeTimeout  time.Duration
	logger            *log.Logger
	metrics           *managerMetrics

	mu             sync.Mutex
	state          ConnectionState
	conn           Conn
	started        bool
	torndown       bool
	attempts       int
	reconnectTimer *time.Timer
	cancel         context.CancelFunc
	ctx            context.Context

	// mounted is cleared first thing on teardown. Every handler invocation
	// checks it while holding dispatchMu, so teardown can wait for an
	// in-flight handler and no handler starts afterwards.
	mounted    atomic.Bool
	dispatchMu sync.Mutex

	hmu     sync.RWMutex
	onFrame FrameHandler
	onState StateHandler
	onError ErrorHandler
}

func NewManager(url string, opts ...Option) *Manager {
	m := &Manager{
		url:               url,
		reconnectInterval: DefaultReconnectInterval,
		maxAttempts:       DefaultMaxReconnectAttempts,
		handshakeTimeout:  DefaultHandshakeTimeout,
		state:             Disconnected,
		logger:            log.Default().Named("channel"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = NewWebsocketDialer(m.handshakeTimeout)
	}
	m.metrics = newManagerMetrics(url)
	return m
}

// OnFrame registers the handler for decoded inbound frames.
// Replacing a handler does not affect the connection.
func (m *Manager) OnFrame(h FrameHandler) {
	m.hmu.Lock()
	defer m.hmu.Unlock()
	m.onFrame = h
}

func (m *Manager) OnStateChange(h StateHandler) {
	m.hmu.Lock()
	defer m.hmu.Unlock()
	m.onState = h
}

// OnError registers the observer for transport and parse errors.
// Errors are informational, state changes are reported via OnStateChange.
func (m *Manager) OnError(h ErrorHandler) {
	m.hmu.Lock()
	defer m.hmu.Unlock()
	m.onError = h
}

func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) URL() string {
	return m.url
}

// Connect starts connecting in the background. Only the first call has an
// effect, a Manager connects once per lifetime.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.torndown {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mounted.Store(true)
	m.mu.Unlock()

	go m.dial()
}

// Send transmits the frame if the connection is established.
// Otherwise the frame is dropped and false is returned. Frames are never queued.
func (m *Manager) Send(frame model.Outbound) bool {
	data, err := model.EncodeOutbound(frame)
	if err != nil {
		m.logger.Error("could not encode frame", log.ErrorField(err))
		go m.reportError(err)
		return false
	}
	m.mu.Lock()
	if m.state != Connected || m.conn == nil {
		state := m.state
		m.mu.Unlock()
		m.logger.Warn("not connected, dropping frame",
			log.String("type", string(frame.MessageType())),
			log.String("state", state.String()))
		m.metrics.add(m.metrics.dropped, string(frame.MessageType()))
		return false
	}
	err = m.conn.WriteMessage(websocket.TextMessage, data)
	m.mu.Unlock()
	if err != nil {
		m.logger.Warn("could not send frame",
			log.String("type", string(frame.MessageType())),
			log.ErrorField(err))
		// the read loop notices the broken connection and handles the close.
		// Send may run inside a handler.
		go m.reportError(err)
		return false
	}
	m.metrics.add(m.metrics.sent, string(frame.MessageType()))
	m.logger.Debug("frame sent", log.String("type", string(frame.MessageType())))
	return true
}

// Disconnect closes the connection and cancels a pending reconnect.
// It is safe to call multiple times. After Disconnect returns no handler is
// invoked anymore. Must not be called from within a handler.
func (m *Manager) Disconnect() {
	m.mounted.Store(false)

	m.mu.Lock()
	if m.torndown {
		m.mu.Unlock()
		return
	}
	m.torndown = true
	timer := m.reconnectTimer
	m.reconnectTimer = nil
	conn := m.conn
	m.conn = nil
	m.state = Disconnected
	cancel := m.cancel
	m.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		//nolint:errcheck // best effort
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	// wait for a handler which may be running right now
	m.dispatchMu.Lock()
	//nolint:staticcheck // intended empty critical section
	m.dispatchMu.Unlock()
	m.logger.Info("disconnected", log.String("url", m.url))
}

func (m *Manager) dial() {
	m.mu.Lock()
	if m.torndown {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	m.state = Connecting
	ctx := m.ctx
	m.mu.Unlock()
	m.notifyState(Connecting)

	m.logger.Debug("connecting", log.String("url", m.url))
	dialCtx, cancel := context.WithTimeout(ctx, m.handshakeTimeout)
	conn, err := m.dialer.DialContext(dialCtx, m.url)
	cancel()
	if err != nil {
		m.logger.Warn("could not connect", log.String("url", m.url), log.ErrorField(err))
		m.reportError(err)
		m.closed()
		return
	}

	m.mu.Lock()
	if m.torndown {
		m.mu.Unlock()
		conn.Close()
		return
	}
	// attempts are reset once the connection delivered a frame
	m.conn = conn
	m.state = Connected
	m.mu.Unlock()

	m.logger.Info("connected", log.String("url", m.url))
	m.notifyState(Connected)
	go m.readLoop(conn)
}

func (m *Manager) readLoop(conn Conn) {
	stable := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleReadError(conn, err)
			return
		}
		if m.deliver(data) && !stable {
			stable = true
			m.resetAttempts(conn)
		}
	}
}

// resetAttempts restores the full reconnect budget for conn
func (m *Manager) resetAttempts(conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != conn || m.attempts == 0 {
		return
	}
	m.logger.Debug("connection stable, resetting reconnect attempts",
		log.Int("attempts", m.attempts))
	m.attempts = 0
}

func (m *Manager) handleReadError(conn Conn, err error) {
	m.mu.Lock()
	if m.torndown || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.mu.Unlock()
	conn.Close()

	if !websocket.IsCloseError(err,
		websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		m.reportError(err)
	}
	m.logger.Info("connection closed", log.ErrorField(err))
	m.closed()
}

// closed is called when the current connection (or attempt) is gone
func (m *Manager) closed() {
	m.mu.Lock()
	if m.torndown {
		m.mu.Unlock()
		return
	}
	m.state = Disconnected
	m.mu.Unlock()
	m.notifyState(Disconnected)
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.torndown {
		return
	}
	if m.attempts >= m.maxAttempts {
		m.logger.Warn("reconnect attempts exhausted",
			log.String("url", m.url),
			log.Int("attempts", m.attempts))
		return
	}
	m.attempts++
	m.metrics.add(m.metrics.reconnects, "")
	m.logger.Info("scheduling reconnect",
		log.Int("attempt", m.attempts),
		log.Int("max", m.maxAttempts),
		log.Duration("interval", m.reconnectInterval))
	m.reconnectTimer = time.AfterFunc(m.reconnectInterval, m.dial)
}

// deliver returns true if data was a valid frame
func (m *Manager) deliver(data []byte) bool {
	frame, err := model.DecodeInbound(data)
	if err != nil {
		kind := "malformed"
		if errors.Is(err, model.ErrUnknownFrameType) {
			kind = "unknown"
		}
		m.metrics.add(m.metrics.dropped, kind)
		m.logger.Warn("dropping inbound frame", log.ErrorField(err))
		m.reportError(err)
		return false
	}
	m.metrics.add(m.metrics.received, string(frame.MessageType()))

	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()
	if !m.mounted.Load() {
		return true
	}
	m.hmu.RLock()
	h := m.onFrame
	m.hmu.RUnlock()
	if h != nil {
		h(frame)
	}
	return true
}

func (m *Manager) notifyState(s ConnectionState) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()
	if !m.mounted.Load() {
		return
	}
	m.hmu.RLock()
	h := m.onState
	m.hmu.RUnlock()
	if h != nil {
		h(s)
	}
}

func (m *Manager) reportError(err error) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()
	if !m.mounted.Load() {
		return
	}
	m.hmu.RLock()
	h := m.onError
	m.hmu.RUnlock()
	if h != nil {
		h(err)
	}
}

type managerMetrics struct {
	url        string
	received   metric.Int64Counter
	dropped    metric.Int64Counter
	sent       metric.Int64Counter
	reconnects metric.Int64Counter
}

func newManagerMetrics(url string) *managerMetrics {
	meter := otel.GetMeterProvider().Meter("rsc.channel")
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name,
			metric.WithDescription(desc),
			metric.WithUnit("{count}"))
		if err != nil {
			log.Error("failed to register metric",
				log.String("metric", name),
				log.ErrorField(err))
			return noop.Int64Counter{}
		}
		return c
	}
	return &managerMetrics{
		url:        url,
		received:   counter("rsc.channel.frames.received", "Number of received frames"),
		dropped:    counter("rsc.channel.frames.dropped", "Number of dropped frames"),
		sent:       counter("rsc.channel.frames.sent", "Number of sent frames"),
		reconnects: counter("rsc.channel.reconnects", "Number of reconnect attempts"),
	}
}

func (mm *managerMetrics) add(c metric.Int64Counter, kind string) {
	c.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("url", mm.url),
			attribute.String("kind", kind),
		))
}
