package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Session is the part of the session manager the synchronizer publishes through.
type Session interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string) error
}

type SynchronizerParams struct {
	Session  Session
	Hardware HardwareIO

	// Now is the clock used for send scheduling. Defaults to time.Now.
	Now func() time.Time

	Log zerolog.Logger
}

type Synchronizer struct {
	params SynchronizerParams

	// lastSent is keyed by variable index in the current configuration.
	lastSent map[int]time.Time

	log zerolog.Logger
}

func NewSynchronizer(params SynchronizerParams) (*Synchronizer, error) {
	if params.Session == nil {
		return nil, fmt.Errorf("Session is nil")
	}
	if params.Hardware == nil {
		return nil, fmt.Errorf("Hardware is nil")
	}
	if params.Now == nil {
		params.Now = time.Now
	}

	return &Synchronizer{
		params:   params,
		lastSent: make(map[int]time.Time),
		log:      params.Log,
	}, nil
}

// Reset forgets the send schedule. Call it whenever the configuration is replaced.
func (s *Synchronizer) Reset() {
	s.lastSent = make(map[int]time.Time)
}

// StartSession subscribes to the actuator wildcard of the device. It is
// called once per established session.
func (s *Synchronizer) StartSession(cfg *DeviceConfiguration) error {
	topic := ActuatorSubscription(cfg.TopicPrefix)
	if err := s.params.Session.Subscribe(topic); err != nil {
		return err
	}

	s.log.Info().Str("topic", topic).Msg("subscribed to actuator commands")
	return nil
}

// Sync publishes every sensor whose send interval has elapsed.
func (s *Synchronizer) Sync(ctx context.Context, cfg *DeviceConfiguration) {
	for i, v := range cfg.Variables {
		if ctx.Err() != nil {
			return
		}
		if v.Kind != VariableKindSensor || !s.due(i, v) {
			continue
		}

		// at-most-once per interval: the schedule moves even if the publish fails
		s.lastSent[i] = s.params.Now()
		s.publishSensor(ctx, cfg, v)
	}
}

func (s *Synchronizer) due(i int, v *Variable) bool {
	if v.SendFrequencySeconds <= 0 {
		return false
	}

	last, ok := s.lastSent[i]
	if !ok {
		return true
	}

	interval := time.Duration(v.SendFrequencySeconds) * time.Second
	return s.params.Now().Sub(last) >= interval
}

func (s *Synchronizer) publishSensor(ctx context.Context, cfg *DeviceConfiguration, v *Variable) {
	log := s.log.With().Str("variable", v.Name).Logger()

	reading, err := s.params.Hardware.Read(ctx, v)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read sensor")
		return
	}

	v.LastValue = truncateString(reading.Value, MaxStringLength)
	v.PendingPersist = reading.Persist

	payload, err := encodeSensorPayload(v.LastValue, v.PendingPersist)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode sensor payload")
		return
	}

	topic := SensorTopic(cfg.TopicPrefix, v.Name)
	if err := s.params.Session.Publish(topic, payload); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to publish sensor data")
		return
	}

	log.Debug().Str("topic", topic).Bytes("payload", payload).Msg("published")
}

// HandleMessage applies an actuator command received on the actuator wildcard.
// Messages for unknown variables or for sensors are ignored.
func (s *Synchronizer) HandleMessage(ctx context.Context, cfg *DeviceConfiguration, topic string, payload []byte) {
	name, ok := ActuatorVariable(cfg.TopicPrefix, topic)
	if !ok {
		s.log.Debug().Str("topic", topic).Msg("ignoring message outside actuator topics")
		return
	}

	v := cfg.Variable(name)
	if v == nil || v.Kind != VariableKindActuator {
		s.log.Debug().Str("topic", topic).Msg("ignoring message for unknown actuator")
		return
	}

	log := s.log.With().Str("variable", v.Name).Logger()

	value, save, err := decodeCommand(payload)
	if err != nil {
		log.Warn().Err(err).Bytes("payload", payload).Msg("invalid actuator command")
		return
	}

	v.LastValue = value
	v.PendingPersist = save

	if err := s.params.Hardware.Write(ctx, v, value); err != nil {
		log.Warn().Err(err).Msg("failed to apply actuator value")
		return
	}

	log.Info().Str("value", value).Msg("actuator updated")
}

type sensorPayload struct {
	Value json.RawMessage `json:"value"`
	Save  int             `json:"save"`
}

func encodeSensorPayload(value string, save bool) ([]byte, error) {
	p := sensorPayload{Value: valueLiteral(value)}
	if save {
		p.Save = 1
	}
	return json.Marshal(p)
}

// valueLiteral passes JSON scalars through untouched and quotes everything else.
func valueLiteral(value string) json.RawMessage {
	trimmed := bytes.TrimSpace([]byte(value))
	if len(trimmed) > 0 && trimmed[0] != '{' && trimmed[0] != '[' && json.Valid(trimmed) {
		return trimmed
	}

	quoted, _ := json.Marshal(value)
	return quoted
}

type commandPayload struct {
	Value json.RawMessage `json:"value"`
	Save  json.RawMessage `json:"save"`
}

// decodeCommand accepts {"value":<literal>,"save":<0|1|bool>} or a bare literal.
func decodeCommand(payload []byte) (string, bool, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return "", false, fmt.Errorf("empty payload")
	}

	if trimmed[0] != '{' {
		value, err := literalText(trimmed)
		return value, false, err
	}

	var cmd commandPayload
	if err := json.Unmarshal(trimmed, &cmd); err != nil {
		return "", false, err
	}
	if len(cmd.Value) == 0 {
		return "", false, fmt.Errorf("missing value")
	}

	value, err := literalText(cmd.Value)
	if err != nil {
		return "", false, err
	}

	switch string(bytes.TrimSpace(cmd.Save)) {
	case "1", "true":
		return value, true, nil
	default:
		return value, false, nil
	}
}

func literalText(raw []byte) (string, error) {
	var value string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &value); err != nil {
			return "", err
		}
	} else {
		value = string(raw)
	}

	if len(value) > MaxStringLength {
		return "", fmt.Errorf("%w: value is %d bytes, limit %d", ErrFieldTooLong, len(value), MaxStringLength)
	}
	return value, nil
}
