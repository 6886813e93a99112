package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/matt0x6f/irc-engine/internal/constants"
)

// Conn is the byte stream the engine reads lines from and writes commands to
type Conn interface {
	io.ReadWriteCloser
}

// Dialer opens a Conn
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial implements Dialer
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// Config describes how to reach a server
type Config struct {
	Host string
	Port int
	TLS  bool
	// InsecureSkipVerify disables certificate verification
	InsecureSkipVerify bool
	// ClientCertificate is presented during the TLS handshake, for SASL EXTERNAL
	ClientCertificate *tls.Certificate
	// WebSocketURL selects the WebSocket transport when set
	WebSocketURL string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

func (cfg Config) tlsConfig(serverName string) *tls.Config {
	tc := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.ClientCertificate != nil {
		tc.Certificates = []tls.Certificate{*cfg.ClientCertificate}
	}
	return tc
}

// NewDialer returns the Dialer matching cfg
func NewDialer(cfg Config) Dialer {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = constants.DialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = constants.WriteTimeout
	}
	if cfg.WebSocketURL != "" {
		return &wsDialer{cfg: cfg}
	}
	return &netDialer{cfg: cfg}
}

type netDialer struct {
	cfg Config
}

func (d *netDialer) Dial(ctx context.Context) (Conn, error) {
	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
	dialer := &net.Dialer{Timeout: d.cfg.DialTimeout}

	var conn net.Conn
	var err error
	if d.cfg.TLS {
		td := &tls.Dialer{NetDialer: dialer, Config: d.cfg.tlsConfig(d.cfg.Host)}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return &deadlineConn{Conn: conn, writeTimeout: d.cfg.WriteTimeout}, nil
}

// deadlineConn bounds every write so a stalled peer cannot block teardown
type deadlineConn struct {
	net.Conn
	writeTimeout time.Duration
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}
