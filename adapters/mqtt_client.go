package adapters

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mqtt-device-agent/application"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	MQTTDefaultConnectTimeout    = 2000 * time.Millisecond
	MQTTDefaultPublishTimeout    = 5 * time.Second
	MQTTDefaultKeepAlive         = 60 * time.Second
	MQTTDefaultEventBuffer       = 32
	MQTTDefaultDisconnectQuiesce = 250

	// MQTT 3.1.1
	mqttProtocolVersion = 4
)

var (
	ErrMQTTNotConnected     = fmt.Errorf("not connected")
	ErrMQTTPublishTimeout   = fmt.Errorf("publish timeout")
	ErrMQTTSubscribeTimeout = fmt.Errorf("subscribe timeout")
)

type MQTTClientParams struct {
	ClientID string
	MQTTUrl  string

	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	KeepAlive      time.Duration
	EventBuffer    int

	NewClientFunc func(options *mqtt.ClientOptions) mqtt.Client

	Log zerolog.Logger
}

func (m *MQTTClientParams) EnsureDefaults() {
	if m.ConnectTimeout == 0 {
		m.ConnectTimeout = MQTTDefaultConnectTimeout
	}

	if m.PublishTimeout == 0 {
		m.PublishTimeout = MQTTDefaultPublishTimeout
	}

	if m.KeepAlive == 0 {
		m.KeepAlive = MQTTDefaultKeepAlive
	}

	if m.EventBuffer <= 0 {
		m.EventBuffer = MQTTDefaultEventBuffer
	}

	if m.NewClientFunc == nil {
		m.NewClientFunc = mqtt.NewClient
	}
}

// MQTTClient is the paho backed session engine. Every Connect builds a fresh
// paho client; callbacks from a superseded client are dropped. Reconnection is
// left to the session manager, paho auto-reconnect is off.
//
// Only ConnAckEvent, DisconnectEvent and PublishEvent are emitted. paho
// completes PUBACK, PUBREC/PUBREL/PUBCOMP and PINGRESP exchanges internally
// and reports their outcome through the publish token instead.
type MQTTClient struct {
	params MQTTClientParams

	mu     sync.Mutex
	client mqtt.Client

	events    chan application.Event
	done      chan struct{}
	closeOnce sync.Once

	connected          uint64
	msgCount           uint64
	msgCountUpdateTime atomic.Pointer[time.Time]

	log zerolog.Logger
}

func NewMQTTClient(params MQTTClientParams) *MQTTClient {
	params.EnsureDefaults()

	m := &MQTTClient{
		params: params,
		events: make(chan application.Event, params.EventBuffer),
		done:   make(chan struct{}),
		log:    params.Log,
	}

	t := time.Unix(0, 0)
	m.msgCountUpdateTime.Store(&t)

	return m
}

func (m *MQTTClient) Events() <-chan application.Event {
	return m.events
}

func (m *MQTTClient) Connect(creds application.Credentials) error {
	select {
	case <-m.done:
		return fmt.Errorf("mqtt client closed")
	default:
	}

	client := m.newMqttClient(creds)

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()
	atomic.StoreUint64(&m.connected, 0)

	m.log.Info().Str("broker", m.params.MQTTUrl).Msg("attempting to connect to server")

	token := client.Connect()
	go func() {
		select {
		case <-m.done:
			return
		case <-token.Done():
		}

		if !m.isCurrent(client) {
			return
		}

		err := token.Error()
		if err == nil {
			atomic.StoreUint64(&m.connected, 1)
		}
		m.emit(application.ConnAckEvent{Err: err})
	}()

	return nil
}

func (m *MQTTClient) IsConnected() bool {
	if atomic.LoadUint64(&m.connected) == 0 {
		return false
	}
	return true
}

func (m *MQTTClient) Status() application.MQTTStatus {
	return application.MQTTStatus{
		MessageCount:      atomic.LoadUint64(&m.msgCount),
		LastTimePublished: *m.msgCountUpdateTime.Load(),
		Connected:         m.IsConnected(),
	}
}

// Live reports whether the connection is still open. paho runs the keepalive
// pinger itself, so there is never anything to do here.
func (m *MQTTClient) Live() error {
	client := m.current()
	if client == nil || !m.IsConnected() || !client.IsConnectionOpen() {
		return ErrMQTTNotConnected
	}
	return nil
}

func (m *MQTTClient) Publish(topic string, qos byte, payload []byte) error {
	client := m.current()
	if client == nil || !m.IsConnected() {
		return ErrMQTTNotConnected
	}

	tc := time.NewTimer(m.params.PublishTimeout)
	defer tc.Stop()

	token := client.Publish(topic, qos, false, payload)
	select {
	case <-tc.C:
		return ErrMQTTPublishTimeout
	case <-token.Done():
		if token.Error() != nil {
			return token.Error()
		}
	}

	t := time.Now()
	m.msgCountUpdateTime.Store(&t)
	atomic.AddUint64(&m.msgCount, 1)
	return nil
}

func (m *MQTTClient) Subscribe(topic string, qos byte) error {
	client := m.current()
	if client == nil || !m.IsConnected() {
		return ErrMQTTNotConnected
	}

	tc := time.NewTimer(m.params.PublishTimeout)
	defer tc.Stop()

	token := client.Subscribe(topic, qos, m.PublishHandler)
	select {
	case <-tc.C:
		return ErrMQTTSubscribeTimeout
	case <-token.Done():
		if token.Error() != nil {
			return token.Error()
		}
	}
	return nil
}

// Release is a no-op: paho answers PUBREC with PUBREL on its own.
func (m *MQTTClient) Release(messageID uint16) error {
	m.log.Debug().Uint16("message_id", messageID).Msg("pubrel handled by paho")
	return nil
}

func (m *MQTTClient) Abort() {
	m.drop(0)
}

func (m *MQTTClient) Disconnect() {
	m.drop(MQTTDefaultDisconnectQuiesce)
}

// Close disconnects and stops event delivery for good.
func (m *MQTTClient) Close() {
	m.Disconnect()
	m.closeOnce.Do(func() { close(m.done) })
}

func (m *MQTTClient) drop(quiesce uint) {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()

	atomic.StoreUint64(&m.connected, 0)
	if client != nil {
		client.Disconnect(quiesce)
	}
}

func (m *MQTTClient) PublishHandler(client mqtt.Client, msg mqtt.Message) {
	if !m.isCurrent(client) {
		return
	}

	m.emit(application.PublishEvent{
		Topic:     msg.Topic(),
		Payload:   msg.Payload(),
		QoS:       msg.Qos(),
		MessageID: msg.MessageID(),
	})
}

func (m *MQTTClient) OnConnect(client mqtt.Client) {
	m.log.Info().Msgf("connected")
}

func (m *MQTTClient) OnConnectionLost(client mqtt.Client, err error) {
	if !m.isCurrent(client) {
		return
	}

	m.log.Info().Msgf("connect lost: %v", err)
	atomic.StoreUint64(&m.connected, 0)
	m.emit(application.DisconnectEvent{Err: err})
}

func (m *MQTTClient) emit(ev application.Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func (m *MQTTClient) current() mqtt.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

func (m *MQTTClient) isCurrent(client mqtt.Client) bool {
	current := m.current()
	return current != nil && current == client
}

func (m *MQTTClient) newMqttClient(creds application.Credentials) mqtt.Client {
	opts := mqtt.NewClientOptions()

	opts.AddBroker(m.params.MQTTUrl)
	opts.SetClientID(m.params.ClientID)
	opts.SetUsername(creds.Username)
	opts.SetPassword(creds.Password)
	opts.SetProtocolVersion(mqttProtocolVersion)

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(m.params.ConnectTimeout)
	opts.SetKeepAlive(m.params.KeepAlive)
	// handlers block on the event channel, they must not stall the paho router
	opts.SetOrderMatters(false)

	opts.SetDefaultPublishHandler(m.PublishHandler)
	opts.OnConnect = m.OnConnect
	opts.OnConnectionLost = m.OnConnectionLost

	return m.params.NewClientFunc(opts)
}

var _ application.SessionEngine = &MQTTClient{}
