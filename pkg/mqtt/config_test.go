package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientAppliesDefaults(t *testing.T) {
	cfg := &ClientConfig{BrokerURL: "tcp://localhost:1883", ClientID: "polestar-exporter-test"}

	c, err := NewClient(cfg)
	require.NoError(t, err)
	assert.False(t, c.IsConnected())
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, uint16(60), cfg.KeepAlive)
	assert.Equal(t, 3*time.Second, cfg.ReconnectBackoff)
}

func TestClientConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
	}{
		{"missing broker", ClientConfig{ClientID: "x"}},
		{"no scheme", ClientConfig{BrokerURL: "localhost", ClientID: "x"}},
		{"missing client id", ClientConfig{BrokerURL: "tcp://localhost:1883"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestOperationsBeforeStart(t *testing.T) {
	c, err := NewClient(&ClientConfig{BrokerURL: "tcp://localhost:1883", ClientID: "x"})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Publish(t.Context(), "a/b", 0, false, nil), ErrNotStarted)
	assert.ErrorIs(t, c.AwaitConnection(t.Context()), ErrNotStarted)
}
