package application

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
)

const (
	DefaultMaxConnectAttempts = 10
	DefaultConnectTimeout     = 2000 * time.Millisecond
	DefaultRetryDelay         = 500 * time.Millisecond
)

type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int32(s))
	}
}

// MessageHandler receives inbound publications. It runs on the goroutine that
// drives the session, so it may touch loop-owned state without locking.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

type SessionManagerParams struct {
	Engine SessionEngine

	MaxConnectAttempts int
	ConnectTimeout     time.Duration
	RetryDelay         time.Duration
	MaxTopicLength     int
	QoS                byte

	Log zerolog.Logger
}

func (p *SessionManagerParams) EnsureDefaults() {
	if p.MaxConnectAttempts <= 0 {
		p.MaxConnectAttempts = DefaultMaxConnectAttempts
	}

	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = DefaultConnectTimeout
	}

	if p.RetryDelay <= 0 {
		p.RetryDelay = DefaultRetryDelay
	}

	if p.MaxTopicLength <= 0 {
		p.MaxTopicLength = DefaultMaxTopicLength
	}
}

// SessionManager owns the broker session state machine:
// Disconnected -> Connecting -> Connected -> Disconnected.
//
// All methods except State and Status must be called from a single goroutine.
type SessionManager struct {
	params SessionManagerParams

	state     atomic.Int32
	onMessage MessageHandler

	log zerolog.Logger
}

func NewSessionManager(params SessionManagerParams) (*SessionManager, error) {
	if params.Engine == nil {
		return nil, fmt.Errorf("Engine is nil")
	}
	if params.QoS > 2 {
		return nil, fmt.Errorf("invalid QoS %d", params.QoS)
	}
	params.EnsureDefaults()

	return &SessionManager{params: params, log: params.Log}, nil
}

func (m *SessionManager) SetMessageHandler(handler MessageHandler) {
	m.onMessage = handler
}

func (m *SessionManager) State() ConnectionState {
	return ConnectionState(m.state.Load())
}

func (m *SessionManager) IsConnected() bool {
	return m.State() == Connected
}

func (m *SessionManager) Status() MQTTStatus {
	status := m.params.Engine.Status()
	status.Connected = m.IsConnected()
	return status
}

func (m *SessionManager) setState(s ConnectionState) {
	prev := ConnectionState(m.state.Swap(int32(s)))
	if prev != s {
		m.log.Debug().Stringer("from", prev).Stringer("to", s).Msg("session state changed")
	}
}

// Connect establishes the initial session. It gives up after
// MaxConnectAttempts and returns ErrConnectTimeout.
func (m *SessionManager) Connect(ctx context.Context, creds Credentials) error {
	for i := 1; i <= m.params.MaxConnectAttempts; i++ {
		ok, err := m.attempt(ctx, creds, i)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	return fmt.Errorf("%w after %d attempts", ErrConnectTimeout, m.params.MaxConnectAttempts)
}

// Reconnect re-establishes a lost session, retrying at a fixed cadence until it
// succeeds or ctx is cancelled.
func (m *SessionManager) Reconnect(ctx context.Context, creds Credentials) error {
	for i := 1; ; i++ {
		ok, err := m.attempt(ctx, creds, i)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
}

// attempt runs one connect handshake. A non-nil error means the caller must
// stop retrying (cancellation or a dead engine).
func (m *SessionManager) attempt(ctx context.Context, creds Credentials, n int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	log := m.log.With().Int("attempt", n).Logger()
	log.Info().Msg("attempting to connect")

	m.discard()

	m.setState(Connecting)
	if err := m.params.Engine.Connect(creds); err != nil {
		log.Warn().Err(err).Msg("mqtt connect failed")
		m.setState(Disconnected)
		return false, sleepContext(ctx, m.params.RetryDelay)
	}

	if err := m.awaitConnAck(ctx); err != nil {
		m.params.Engine.Abort()
		m.setState(Disconnected)
		return false, err
	}

	if m.IsConnected() {
		log.Info().Msg("mqtt client connected")
		return true, nil
	}

	log.Warn().Dur("timeout", m.params.ConnectTimeout).Msg("connect not acknowledged, aborting attempt")
	m.params.Engine.Abort()
	m.setState(Disconnected)
	return false, sleepContext(ctx, m.params.RetryDelay)
}

func (m *SessionManager) awaitConnAck(ctx context.Context) error {
	timer := time.NewTimer(m.params.ConnectTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case ev, ok := <-m.params.Engine.Events():
			if !ok {
				return fmt.Errorf("%w: event stream closed", ErrProtocol)
			}
			m.handleEvent(ctx, ev)
			if _, isAck := ev.(ConnAckEvent); isAck || m.State() != Connecting {
				return nil
			}
		}
	}
}

// Process runs the liveness cycle for d: it waits for inbound events with a
// bounded timeout, hands them to the event handler and runs the engine
// keepalive. It returns early when the session drops; keepalive failures are
// fatal to the session and returned wrapped in ErrProtocol.
func (m *SessionManager) Process(ctx context.Context, d time.Duration) error {
	deadline := time.Now().Add(d)

	for remaining := d; remaining > 0 && m.IsConnected(); remaining = time.Until(deadline) {
		if err := m.wait(ctx, remaining); err != nil {
			return err
		}
		if !m.IsConnected() {
			return nil
		}

		err := m.params.Engine.Live()
		switch {
		case err == nil:
			if err := m.drain(ctx); err != nil {
				return err
			}
		case errors.Is(err, ErrWouldBlock):
		default:
			m.log.Error().Err(err).Msg("mqtt keepalive failed")
			m.Abort()
			return fmt.Errorf("%w: keepalive: %w", ErrProtocol, err)
		}
	}

	return nil
}

// wait blocks until an event arrives, d elapses or ctx is done, then drains
// whatever else is already queued.
func (m *SessionManager) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	case ev, ok := <-m.params.Engine.Events():
		if !ok {
			m.setState(Disconnected)
			return fmt.Errorf("%w: event stream closed", ErrProtocol)
		}
		m.handleEvent(ctx, ev)
	}

	return m.drain(ctx)
}

func (m *SessionManager) drain(ctx context.Context) error {
	for {
		select {
		case ev, ok := <-m.params.Engine.Events():
			if !ok {
				m.setState(Disconnected)
				return fmt.Errorf("%w: event stream closed", ErrProtocol)
			}
			m.handleEvent(ctx, ev)
		default:
			return nil
		}
	}
}

// discard drops events left over from an earlier attempt or session so they
// cannot be credited to the next handshake.
func (m *SessionManager) discard() {
	for {
		select {
		case ev, ok := <-m.params.Engine.Events():
			if !ok {
				return
			}
			m.log.Debug().Str("event", fmt.Sprintf("%T", ev)).Msg("discarding stale session event")
		default:
			return
		}
	}
}

func (m *SessionManager) handleEvent(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case ConnAckEvent:
		if e.Err != nil {
			m.log.Warn().Err(e.Err).Msg("mqtt connect failed")
			return
		}
		m.setState(Connected)

	case DisconnectEvent:
		m.log.Warn().AnErr("reason", e.Err).Msg("mqtt client disconnected")
		m.setState(Disconnected)

	case PublishEvent:
		m.dispatch(ctx, e)

	case PubAckEvent:
		if e.Err != nil {
			m.log.Warn().Err(e.Err).Uint16("message_id", e.MessageID).Msg("mqtt puback error")
		}

	case PubRecEvent:
		if e.Err != nil {
			m.log.Warn().Err(e.Err).Uint16("message_id", e.MessageID).Msg("mqtt pubrec error")
			return
		}
		if err := m.params.Engine.Release(e.MessageID); err != nil {
			m.log.Warn().Err(err).Uint16("message_id", e.MessageID).Msg("failed to send mqtt pubrel")
		}

	case PubCompEvent:
		if e.Err != nil {
			m.log.Warn().Err(e.Err).Uint16("message_id", e.MessageID).Msg("mqtt pubcomp error")
		}

	case PingRespEvent:
		m.log.Debug().Msg("pingresp")

	default:
		m.log.Warn().Str("event", fmt.Sprintf("%T", ev)).Msg("unhandled session event")
	}
}

func (m *SessionManager) dispatch(ctx context.Context, e PublishEvent) {
	m.log.Debug().Str("topic", e.Topic).Bytes("payload", e.Payload).Msg("received")

	if m.onMessage == nil {
		return
	}

	var pc panics.Catcher
	pc.Try(func() { m.onMessage(ctx, e.Topic, e.Payload) })
	if r := pc.Recovered(); r != nil {
		m.log.Error().Str("topic", e.Topic).Interface("panic", r.Value).Msg("message handler panic recovered")
	}
}

func (m *SessionManager) Publish(topic string, payload []byte) error {
	if err := m.checkTopic(topic); err != nil {
		return err
	}

	if err := m.params.Engine.Publish(topic, m.params.QoS, payload); err != nil {
		return fmt.Errorf("%w: publish %s: %w", ErrProtocol, topic, err)
	}
	return nil
}

func (m *SessionManager) Subscribe(topic string) error {
	if err := m.checkTopic(topic); err != nil {
		return err
	}

	if err := m.params.Engine.Subscribe(topic, m.params.QoS); err != nil {
		return fmt.Errorf("%w: subscribe %s: %w", ErrProtocol, topic, err)
	}
	return nil
}

func (m *SessionManager) checkTopic(topic string) error {
	if !m.IsConnected() {
		return ErrNotConnected
	}
	if len(topic) >= m.params.MaxTopicLength {
		return fmt.Errorf("%w: %q is %d bytes, limit %d", ErrTopicTooLong, topic, len(topic), m.params.MaxTopicLength)
	}
	return nil
}

// Abort tears down the session without a graceful disconnect.
func (m *SessionManager) Abort() {
	m.params.Engine.Abort()
	m.setState(Disconnected)
}

// Close disconnects gracefully if a session is up.
func (m *SessionManager) Close() {
	if m.IsConnected() {
		m.params.Engine.Disconnect()
	}
	m.setState(Disconnected)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
