package application

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockEngine struct {
	mock.Mock

	events chan Event
}

func NewMockEngine() *MockEngine {
	return &MockEngine{events: make(chan Event, 16)}
}

func (m *MockEngine) Push(ev Event) {
	m.events <- ev
}

func (m *MockEngine) Connect(creds Credentials) error {
	return m.Called(creds).Error(0)
}

func (m *MockEngine) Events() <-chan Event {
	return m.events
}

func (m *MockEngine) Live() error {
	return m.Called().Error(0)
}

func (m *MockEngine) Publish(topic string, qos byte, payload []byte) error {
	return m.Called(topic, qos, payload).Error(0)
}

func (m *MockEngine) Subscribe(topic string, qos byte) error {
	return m.Called(topic, qos).Error(0)
}

func (m *MockEngine) Release(messageID uint16) error {
	return m.Called(messageID).Error(0)
}

func (m *MockEngine) Abort() {
	m.Called()
}

func (m *MockEngine) Disconnect() {
	m.Called()
}

func (m *MockEngine) Status() MQTTStatus {
	return m.Called().Get(0).(MQTTStatus)
}

var _ SessionEngine = &MockEngine{}

type MockSession struct {
	mock.Mock
}

func (m *MockSession) Publish(topic string, payload []byte) error {
	return m.Called(topic, payload).Error(0)
}

func (m *MockSession) Subscribe(topic string) error {
	return m.Called(topic).Error(0)
}

var _ Session = &MockSession{}

type MockHardware struct {
	mock.Mock
}

func (m *MockHardware) Read(ctx context.Context, v *Variable) (Reading, error) {
	args := m.Called(ctx, v)
	return args.Get(0).(Reading), args.Error(1)
}

func (m *MockHardware) Write(ctx context.Context, v *Variable, value string) error {
	return m.Called(ctx, v, value).Error(0)
}

var _ HardwareIO = &MockHardware{}

type MockProvisioner struct {
	mock.Mock
}

func (m *MockProvisioner) RequestConfiguration(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)

	var body []byte
	if b := args.Get(0); b != nil {
		body = b.([]byte)
	}
	return body, args.Error(1)
}

var _ Provisioner = &MockProvisioner{}

type MockConfigurationSource struct {
	mock.Mock
}

func (m *MockConfigurationSource) FetchConfiguration(ctx context.Context) (*DeviceConfiguration, error) {
	args := m.Called(ctx)

	var cfg *DeviceConfiguration
	if c := args.Get(0); c != nil {
		cfg = c.(*DeviceConfiguration)
	}
	return cfg, args.Error(1)
}

var _ ConfigurationSource = &MockConfigurationSource{}
