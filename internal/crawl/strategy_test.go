package crawl

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpcrawler/internal/domain"
)

func TestTargets(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		address string
		want    []string
	}{
		{name: "hostname only", key: "core", want: []string{"core"}},
		{name: "hostname then address", key: "core", address: "10.0.0.1", want: []string{"core", "10.0.0.1"}},
		{name: "address key", key: "10.0.0.1", address: "10.0.0.1", want: []string{"10.0.0.1"}},
		{name: "address key with other address", key: "10.0.0.1", address: "10.0.0.9", want: []string{"10.0.0.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Targets(domain.NewDeviceRecord(tt.key, tt.key, tt.address))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStrategyConnect(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.0.0.2")
	s := NewStrategy(network, zerolog.Nop())

	session, target, err := s.Connect(context.Background(), domain.NewDeviceRecord("dist", "dist", "10.0.0.2"))
	require.NoError(t, err)
	assert.NotNil(t, session)
	assert.Equal(t, "10.0.0.2", target)

	_, _, err = s.Connect(context.Background(), domain.NewDeviceRecord("gone", "gone", "10.0.0.99"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.True(t, domain.IsRetryable(err))
	assert.Contains(t, err.Error(), "gone")
	assert.Contains(t, err.Error(), "10.0.0.99")
}
