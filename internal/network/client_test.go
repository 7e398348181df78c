// ABOUTME: Tests for endpoint resolution and the gRPC client handle
// ABOUTME: Runs a local health server to check metadata and serving status

package network

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		hostname   string
		port       int
		wantTarget string
		wantSecure bool
	}{
		{"", 0, "localhost:50051", false},
		{"10.0.2.2", 0, "10.0.2.2:50051", false},
		{"192.168.1.5", 6000, "192.168.1.5:6000", false},
		{"http://relay.local", 0, "relay.local:50051", false},
		{"https://relay.example.com", 0, "relay.example.com:50051", true},
		{"https://relay.example.com/", 443, "relay.example.com:443", true},
		{"https://relay.example.com:8443", 0, "relay.example.com:8443", true},
		{"relay.example.com:7000", 0, "relay.example.com:7000", false},
		{"https", 0, "https:50051", true},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			target, secure := ResolveTarget(tt.hostname, tt.port)
			assert.Equal(t, tt.wantTarget, target)
			assert.Equal(t, tt.wantSecure, secure)
		})
	}
}

func TestNew_RequiresUser(t *testing.T) {
	_, err := New(Options{}, nil)
	assert.Error(t, err)
}

func TestNew_TLSForHTTPS(t *testing.T) {
	c, err := New(Options{UserID: "u", Hostname: "https://relay.example.com"}, nil)
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, c.Secure())
	assert.Equal(t, "relay.example.com:50051", c.Target())
	assert.Equal(t, "u", c.UserID())
	assert.NotNil(t, c.Conn())
}

type capturedMetadata struct {
	mu sync.Mutex
	md metadata.MD
}

func startHealthServer(t *testing.T, status grpc_health_v1.HealthCheckResponse_ServingStatus) (string, *capturedMetadata) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	captured := &capturedMetadata{}
	server := grpc.NewServer(grpc.UnaryInterceptor(func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		captured.mu.Lock()
		captured.md = md
		captured.mu.Unlock()
		return handler(ctx, req)
	}))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", status)

	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	return listener.Addr().String(), captured
}

func TestCheckHealth_SendsMetadata(t *testing.T) {
	addr, captured := startHealthServer(t, grpc_health_v1.HealthCheckResponse_SERVING)

	c, err := New(Options{UserID: "user-7", DeviceToken: "token-abc", Hostname: addr}, nil)
	require.NoError(t, err)
	defer c.Close()
	assert.False(t, c.Secure())
	assert.Equal(t, addr, c.Target())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.CheckHealth(ctx))

	captured.mu.Lock()
	defer captured.mu.Unlock()
	assert.Equal(t, []string{"user-7"}, captured.md.Get("user_id"))
	assert.Equal(t, []string{"token-abc"}, captured.md.Get("device_token"))
}

func TestCheckHealth_NotServing(t *testing.T) {
	addr, _ := startHealthServer(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	c, err := New(Options{UserID: "u", Hostname: addr}, nil)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = c.CheckHealth(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_SERVING")
}
