package utils

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		id      string
		want    string
		wantErr bool
	}{
		{"http", "http://localhost:8000", "abc", "ws://localhost:8000/ws/game/abc", false},
		{"https", "https://sim.example.com/", "abc", "wss://sim.example.com/ws/game/abc", false},
		{"ws with prefix", "ws://host/api", "abc", "ws://host/api/ws/game/abc", false},
		{"escaped id", "ws://host", "a b", "ws://host/ws/game/a%20b", false},
		{"empty id", "ws://host", "", "", true},
		{"bad scheme", "ftp://host", "abc", "", true},
		{"no host", "ws://", "abc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GameURL(tt.base, tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHostPort(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"ws://localhost:8000/ws/game/x", "localhost:8000", false},
		{"ws://localhost/ws/game/x", "localhost:80", false},
		{"wss://sim.example.com/ws/game/x", "sim.example.com:443", false},
		{"nats://nats", "nats:4222", false},
		{"http://[::1]/x", "[::1]:80", false},
		{"ftp://host", "", true},
		{"/relative", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := HostPort(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWaitForTCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	assert.NoError(t, WaitForServices(context.Background(), []string{l.Addr().String()}, time.Second))

	addr := l.Addr().String()
	l.Close()
	assert.Error(t, WaitForTCP(context.Background(), addr, 300*time.Millisecond))
}
