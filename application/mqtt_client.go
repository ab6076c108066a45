package application

import "time"

type MQTTStatus struct {
	MessageCount      uint64
	LastTimePublished time.Time
	Connected         bool
}

// SessionEngine is the publish/subscribe protocol engine. Connect only issues
// the handshake; its outcome arrives later as a ConnAckEvent on Events.
type SessionEngine interface {
	Connect(creds Credentials) error
	Events() <-chan Event

	// Live runs the engine keepalive. ErrWouldBlock means nothing was due.
	Live() error

	Publish(topic string, qos byte, payload []byte) error
	Subscribe(topic string, qos byte) error

	// Release sends the second phase of an exactly-once delivery.
	Release(messageID uint16) error

	// Abort drops the current session attempt without a graceful handshake.
	Abort()
	Disconnect()

	Status() MQTTStatus
}

// Event is a protocol engine event. The set of implementations is closed.
type Event interface {
	sessionEvent()
}

type ConnAckEvent struct {
	Err error
}

type DisconnectEvent struct {
	Err error
}

type PublishEvent struct {
	Topic     string
	Payload   []byte
	QoS       byte
	MessageID uint16
}

type PubAckEvent struct {
	MessageID uint16
	Err       error
}

type PubRecEvent struct {
	MessageID uint16
	Err       error
}

type PubCompEvent struct {
	MessageID uint16
	Err       error
}

type PingRespEvent struct{}

func (ConnAckEvent) sessionEvent()    {}
func (DisconnectEvent) sessionEvent() {}
func (PublishEvent) sessionEvent()    {}
func (PubAckEvent) sessionEvent()     {}
func (PubRecEvent) sessionEvent()     {}
func (PubCompEvent) sessionEvent()    {}
func (PingRespEvent) sessionEvent()   {}
