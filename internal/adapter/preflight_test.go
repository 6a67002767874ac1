package adapter

import (
	"context"
	"errors"
	"testing"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpcrawler/internal/domain"
)

type nopSession struct{}

func (nopSession) Run(context.Context, string) (string, error) { return "", nil }
func (nopSession) Close() error { return nil }

func countingDialer(calls *int) Dialer {
	return DialerFunc(func(ctx context.Context, target string) (Session, error) {
		*calls++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nopSession{}, nil
	})
}

func TestNmapPreflight(t *testing.T) {
	tests := []struct {
		name      string
		open      bool
		probeErr  error
		wantDials int
		wantErr   error
	}{
		{name: "port open", open: true, wantDials: 1},
		{name: "port closed", open: false, wantDials: 0, wantErr: domain.ErrConnection},
		{name: "scanner unavailable", probeErr: errors.New("nmap binary not found"), wantDials: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dials int
			var probedPort uint16

			p := NewNmapPreflight(countingDialer(&dials),
				WithProbePort(2222),
				WithProbe(func(_ context.Context, _ string, port uint16) (bool, error) {
					probedPort = port
					return tt.open, tt.probeErr
				}),
			)

			session, err := p.Dial(context.Background(), "core-1")
			assert.Equal(t, uint16(2222), probedPort)
			assert.Equal(t, tt.wantDials, dials)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, session)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, session)
		})
	}
}

func TestPortOpen(t *testing.T) {
	result := &nmap.Run{
		Hosts: []nmap.Host{
			{
				Status: nmap.Status{State: "down"},
				Ports:  []nmap.Port{{ID: 22, Protocol: "tcp", State: nmap.State{State: "open"}}},
			},
			{
				Status: nmap.Status{State: "up"},
				Ports: []nmap.Port{
					{ID: 22, Protocol: "tcp", State: nmap.State{State: "filtered"}},
					{ID: 830, Protocol: "tcp", State: nmap.State{State: "open"}},
				},
			},
		},
	}

	assert.False(t, portOpen(result, 22))
	assert.True(t, portOpen(result, 830))
	assert.False(t, portOpen(nil, 22))
}
