package stream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"

	"power-hmc-agent/internal/model"
)

type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

type GRPCClient struct {
	mu sync.Mutex

	logger         *slog.Logger
	addr           string
	tlsConfig      *tls.Config
	token          string
	countersMethod string
	statusMethod   string
	conn           *grpc.ClientConn
	countersStream grpc.ClientStream
	statusStream   grpc.ClientStream
}

func NewGRPCClient(addr string, tlsCfg *tls.Config, token, countersMethod, statusMethod string, logger *slog.Logger) *GRPCClient {
	encoding.RegisterCodec(jsonCodec{})
	return &GRPCClient{
		logger:         logger,
		addr:           addr,
		tlsConfig:      tlsCfg,
		token:          token,
		countersMethod: countersMethod,
		statusMethod:   statusMethod,
	}
}

func (c *GRPCClient) SendHostCounters(ctx Context, hc model.HostCounters) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(ctx, &c.countersStream, c.countersMethod, NewHostCountersFrame(hc))
}

func (c *GRPCClient) SendHostStatus(ctx Context, s model.HostStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(ctx, &c.statusStream, c.statusMethod, NewHostStatusFrame(s))
}

func (c *GRPCClient) Close(ctx Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.countersStream != nil {
		_ = c.countersStream.CloseSend()
		c.countersStream = nil
	}
	if c.statusStream != nil {
		_ = c.statusStream.CloseSend()
		c.statusStream = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	_ = ctx
	return nil
}

// sendLocked writes frame on the client stream held in slot, reopening it once
// when the send fails.
func (c *GRPCClient) sendLocked(ctx Context, slot *grpc.ClientStream, method string, frame any) error {
	if err := c.ensureConnLocked(ctx); err != nil {
		return err
	}
	if *slot == nil {
		if err := c.openStreamLocked(ctx, slot, method); err != nil {
			return err
		}
	}
	if err := (*slot).SendMsg(frame); err != nil {
		c.logger.Warn("grpc send failed, reopening stream", "method", method, "error", err)
		*slot = nil
		if err2 := c.openStreamLocked(ctx, slot, method); err2 != nil {
			return fmt.Errorf("reopen stream %s: %w", method, err2)
		}
		if err2 := (*slot).SendMsg(frame); err2 != nil {
			return fmt.Errorf("send frame %s: %w", method, err2)
		}
	}
	return nil
}

func (c *GRPCClient) ensureConnLocked(ctx Context) error {
	if c.conn != nil {
		return nil
	}

	var creds credentials.TransportCredentials
	if c.tlsConfig != nil {
		creds = credentials.NewTLS(c.tlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.NewClient(
		c.addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return fmt.Errorf("grpc client %s: %w", c.addr, err)
	}
	conn.Connect()
	c.conn = conn
	c.logger.Info("grpc stream connected", "addr", c.addr)
	_ = ctx
	return nil
}

func (c *GRPCClient) openStreamLocked(ctx Context, slot *grpc.ClientStream, method string) error {
	if c.conn == nil {
		return fmt.Errorf("grpc conn is nil")
	}
	streamCtx := c.decorateContext(ctx)
	s, err := c.conn.NewStream(streamCtx, &grpc.StreamDesc{ClientStreams: true}, method)
	if err != nil {
		return fmt.Errorf("open stream %s: %w", method, err)
	}
	*slot = s
	return nil
}

// decorateContext detaches the stream from the per-call context so the stream
// outlives the capture that opened it.
func (c *GRPCClient) decorateContext(ctx Context) context.Context {
	out := context.Background()
	if c.token != "" {
		out = metadata.AppendToOutgoingContext(out, "authorization", "Bearer "+c.token)
	}
	_ = ctx
	return out
}
