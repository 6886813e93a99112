package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"nhooyr.io/websocket"
)

// Subprotocol negotiated for IRC over WebSocket, one message per line
const Subprotocol = "text.ircv3.net"

type wsDialer struct {
	cfg Config
}

func (d *wsDialer) Dial(ctx context.Context) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, d.cfg.DialTimeout)
	defer cancel()

	opts := &websocket.DialOptions{Subprotocols: []string{Subprotocol}}
	if d.cfg.ClientCertificate != nil || d.cfg.InsecureSkipVerify {
		u, err := url.Parse(d.cfg.WebSocketURL)
		if err != nil {
			return nil, fmt.Errorf("invalid websocket url: %w", err)
		}
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{TLSClientConfig: d.cfg.tlsConfig(u.Hostname())},
		}
	}

	c, _, err := websocket.Dial(dialCtx, d.cfg.WebSocketURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", d.cfg.WebSocketURL, err)
	}
	return newWSConn(c, d.cfg), nil
}

// wsConn maps WebSocket messages to CRLF terminated lines and back
type wsConn struct {
	c       *websocket.Conn
	cfg     Config
	ctx     context.Context
	cancel  context.CancelFunc
	pending []byte
	wmu     sync.Mutex
}

func newWSConn(c *websocket.Conn, cfg Config) *wsConn {
	ctx, cancel := context.WithCancel(context.Background())
	return &wsConn{c: c, cfg: cfg, ctx: ctx, cancel: cancel}
}

func (w *wsConn) Read(p []byte) (int, error) {
	if len(w.pending) == 0 {
		_, msg, err := w.c.Read(w.ctx)
		if err != nil {
			return 0, err
		}
		w.pending = append(msg, '\r', '\n')
	}
	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

func (w *wsConn) Write(p []byte) (int, error) {
	w.wmu.Lock()
	defer w.wmu.Unlock()

	ctx, cancel := context.WithTimeout(w.ctx, w.cfg.WriteTimeout)
	defer cancel()

	for _, line := range bytes.Split(p, []byte("\r\n")) {
		if len(line) == 0 {
			continue
		}
		if err := w.c.Write(ctx, websocket.MessageText, line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (w *wsConn) Close() error {
	w.cancel()
	return w.c.Close(websocket.StatusNormalClosure, "")
}
