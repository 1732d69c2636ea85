package stream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"power-hmc-agent/internal/model"
)

var errSinkClosed = errors.New("stream sink closed")

type WebSocketClient struct {
	mu sync.Mutex

	logger       *slog.Logger
	url          string
	token        string
	tlsConfig    *tls.Config
	writeTimeout time.Duration
	pingInterval time.Duration
	conn         *websocket.Conn
	connCtx      context.Context
	stopConn     context.CancelFunc
	closed       bool
}

func NewWebSocketClient(url, token string, tlsCfg *tls.Config, writeTimeout, pingInterval time.Duration, logger *slog.Logger) *WebSocketClient {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 10 * time.Second
	}
	return &WebSocketClient{
		logger:       logger,
		url:          url,
		token:        token,
		tlsConfig:    tlsCfg,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

func (c *WebSocketClient) SendHostCounters(ctx Context, hc model.HostCounters) error {
	return c.sendEnvelope(ctx, hostCountersEnvelope(hc))
}

func (c *WebSocketClient) SendHostStatus(ctx Context, st model.HostStatus) error {
	return c.sendEnvelope(ctx, hostStatusEnvelope(st))
}

func (c *WebSocketClient) Close(ctx Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	_ = ctx
	return c.dropConnLocked(websocket.StatusNormalClosure, "shutdown")
}

func (c *WebSocketClient) sendEnvelope(ctx Context, envelope model.Envelope) error {
	payload, err := EncodeEnvelope(envelope)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errSinkClosed
	}
	err = c.writeLocked(ctx, payload)
	if err == nil {
		return nil
	}
	c.logger.Warn("websocket write failed, reconnecting", "url", c.url, "error", err)
	_ = c.dropConnLocked(websocket.StatusGoingAway, "reconnect")
	if err := c.writeLocked(ctx, payload); err != nil {
		return fmt.Errorf("write envelope after reconnect: %w", err)
	}
	return nil
}

func (c *WebSocketClient) writeLocked(ctx Context, payload []byte) error {
	if c.conn == nil {
		if err := c.dialLocked(ctx); err != nil {
			return err
		}
	}
	wctx, cancel := context.WithTimeout(c.connCtx, c.writeTimeout)
	defer cancel()
	return c.conn.Write(wctx, websocket.MessageText, payload)
}

func (c *WebSocketClient) dialLocked(ctx Context) error {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	opt := &websocket.DialOptions{HTTPHeader: h}
	if c.tlsConfig != nil {
		opt.HTTPClient = &http.Client{Transport: &http.Transport{TLSClientConfig: c.tlsConfig}}
	}
	dialCtx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var cancelDL context.CancelFunc
		dialCtx, cancelDL = context.WithDeadline(dialCtx, dl)
		defer cancelDL()
	}
	conn, _, err := websocket.Dial(dialCtx, c.url, opt)
	if err != nil {
		return fmt.Errorf("websocket dial %s: %w", c.url, err)
	}

	// The backend never sends data frames; CloseRead keeps control frames
	// (pongs, close) flowing and cancels connCtx when the peer goes away.
	readCtx := conn.CloseRead(context.Background())
	connCtx, stop := context.WithCancel(readCtx)
	c.conn = conn
	c.connCtx = connCtx
	c.stopConn = stop
	go c.pingLoop(connCtx, conn)
	c.logger.Info("websocket stream connected", "url", c.url)
	return nil
}

func (c *WebSocketClient) dropConnLocked(code websocket.StatusCode, reason string) error {
	if c.stopConn != nil {
		c.stopConn()
		c.stopConn = nil
	}
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(code, reason)
	c.conn = nil
	c.connCtx = nil
	return err
}

func (c *WebSocketClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if err := conn.Ping(pingCtx); err != nil && ctx.Err() == nil {
				c.logger.Debug("websocket ping failed", "url", c.url, "error", err)
			}
			cancel()
		}
	}
}
