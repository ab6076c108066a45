package application

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewBootstrapper(t *testing.T) {
	_, err := NewBootstrapper(BootstrapperParams{})
	require.Error(t, err)

	b, err := NewBootstrapper(BootstrapperParams{Provisioner: &MockProvisioner{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxVariables, b.params.MaxVariables)
}

func TestBootstrapper_FetchConfiguration(t *testing.T) {
	mProvisioner := &MockProvisioner{}
	mProvisioner.On("RequestConfiguration", mock.Anything).Return([]byte(provisioningBody), nil).Once()

	b, err := NewBootstrapper(BootstrapperParams{Provisioner: mProvisioner})
	require.NoError(t, err)

	cfg, err := b.FetchConfiguration(context.Background())
	require.NoError(t, err)

	assert.True(t, cfg.IsValid)
	assert.Equal(t, Credentials{Username: "u1", Password: "p1"}, cfg.Credentials())
	assert.Equal(t, "dev/1/", cfg.TopicPrefix)
	assert.Len(t, cfg.Variables, 2)

	mProvisioner.AssertExpectations(t)
}

func TestBootstrapper_FetchConfiguration_MissingField(t *testing.T) {
	mProvisioner := &MockProvisioner{}
	mProvisioner.On("RequestConfiguration", mock.Anything).
		Return([]byte(`{"username":"u1","variables":[]}`), nil).Once()

	b, err := NewBootstrapper(BootstrapperParams{Provisioner: mProvisioner})
	require.NoError(t, err)

	cfg, err := b.FetchConfiguration(context.Background())
	require.ErrorIs(t, err, ErrBootstrap)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "password")
	assert.Contains(t, err.Error(), "topic")
}

func TestBootstrapper_FetchConfiguration_ProvisionerError(t *testing.T) {
	mProvisioner := &MockProvisioner{}
	mProvisioner.On("RequestConfiguration", mock.Anything).
		Return(nil, fmt.Errorf("%w: connection refused", ErrNetwork)).Once()

	b, err := NewBootstrapper(BootstrapperParams{Provisioner: mProvisioner})
	require.NoError(t, err)

	cfg, err := b.FetchConfiguration(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBootstrap)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Nil(t, cfg)
}

func TestBootstrapper_FetchConfiguration_Cancelled(t *testing.T) {
	mProvisioner := &MockProvisioner{}
	mProvisioner.On("RequestConfiguration", mock.Anything).Return(nil, context.Canceled).Once()

	b, err := NewBootstrapper(BootstrapperParams{Provisioner: mProvisioner})
	require.NoError(t, err)

	_, err = b.FetchConfiguration(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrBootstrap)
}

func TestBootstrapper_FetchConfiguration_Malformed(t *testing.T) {
	mProvisioner := &MockProvisioner{}
	mProvisioner.On("RequestConfiguration", mock.Anything).Return([]byte(`<html>`), nil).Once()

	b, err := NewBootstrapper(BootstrapperParams{Provisioner: mProvisioner})
	require.NoError(t, err)

	_, err = b.FetchConfiguration(context.Background())
	require.ErrorIs(t, err, ErrBootstrap)
}

func TestBootstrapper_FetchConfiguration_Truncated(t *testing.T) {
	var entries []string
	for i := 0; i < 4; i++ {
		entries = append(entries, fmt.Sprintf(`{"variable":"v%d","variableType":"input","variableSendFreq":1}`, i))
	}
	body := `{"username":"u","password":"p","topic":"t/","variables":[` + strings.Join(entries, ",") + `]}`

	mProvisioner := &MockProvisioner{}
	mProvisioner.On("RequestConfiguration", mock.Anything).Return([]byte(body), nil).Once()

	b, err := NewBootstrapper(BootstrapperParams{Provisioner: mProvisioner, MaxVariables: 2})
	require.NoError(t, err)

	cfg, err := b.FetchConfiguration(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.IsValid)
	require.Len(t, cfg.Variables, 2)
	assert.Equal(t, "v1", cfg.Variables[1].Name)
}
