// ABOUTME: Long-lived gRPC client handle for the message relay service
// ABOUTME: Chooses TLS or plaintext from the hostname scheme and tags every call with user metadata

package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

const (
	// DefaultHost is used when no hostname is given.
	DefaultHost = "localhost"
	// DefaultPort is the relay service port.
	DefaultPort = 50051

	userIDHeader      = "user_id"
	deviceTokenHeader = "device_token"
)

// Options describes the endpoint and the identity attached to each call.
type Options struct {
	UserID      string
	DeviceToken string
	Hostname    string
	Port        int
}

// Client wraps one gRPC connection. It is safe for concurrent use.
type Client struct {
	conn        *grpc.ClientConn
	target      string
	secure      bool
	userID      string
	deviceToken string
	logger      *slog.Logger
}

// ResolveTarget returns the dial target for hostname and whether TLS applies.
// An empty hostname means localhost. A hostname starting with "https" selects
// TLS; any scheme prefix is stripped before dialing. A port already present in
// the hostname wins over port.
func ResolveTarget(hostname string, port int) (target string, secure bool) {
	host := strings.TrimSpace(hostname)
	if host == "" {
		host = DefaultHost
	}
	secure = strings.HasPrefix(host, "https")

	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host = strings.TrimSuffix(host, "/")
	if host == "" {
		host = DefaultHost
	}
	if port <= 0 {
		port = DefaultPort
	}

	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, secure
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), secure
}

// New creates the client handle. No connection is made until the first call.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.UserID == "" {
		return nil, errors.New("user id is required")
	}

	target, secure := ResolveTarget(opts.Hostname, opts.Port)
	creds := insecure.NewCredentials()
	if secure {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	c := &Client{
		target:      target,
		secure:      secure,
		userID:      opts.UserID,
		deviceToken: opts.DeviceToken,
		logger:      logger.With("component", "network"),
	}

	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(creds),
		grpc.WithChainUnaryInterceptor(c.unaryMetadata),
		grpc.WithChainStreamInterceptor(c.streamMetadata),
	)
	if err != nil {
		return nil, fmt.Errorf("creating client for %s: %w", target, err)
	}
	c.conn = conn

	c.logger.Info("network client created", "target", target, "tls", secure, "user_id", opts.UserID)
	return c, nil
}

func (c *Client) withMetadata(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, userIDHeader, c.userID, deviceTokenHeader, c.deviceToken)
}

func (c *Client) unaryMetadata(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	return invoker(c.withMetadata(ctx), method, req, reply, cc, opts...)
}

func (c *Client) streamMetadata(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	return streamer(c.withMetadata(ctx), desc, cc, method, opts...)
}

// Conn returns the underlying connection for generated service stubs.
func (c *Client) Conn() *grpc.ClientConn {
	return c.conn
}

// Target returns the dial target.
func (c *Client) Target() string {
	return c.target
}

// Secure reports whether the client uses TLS.
func (c *Client) Secure() bool {
	return c.secure
}

// UserID returns the user attached to every call.
func (c *Client) UserID() string {
	return c.userID
}

// CheckHealth asks the standard health service once and fails unless it is SERVING.
func (c *Client) CheckHealth(ctx context.Context) error {
	resp, err := grpc_health_v1.NewHealthClient(c.conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("health check %s: %w", c.target, err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("health check %s: status %s", c.target, resp.GetStatus().String())
	}
	return nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("closing client for %s: %w", c.target, err)
	}
	return nil
}
