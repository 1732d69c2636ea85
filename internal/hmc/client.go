package hmc

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"power-hmc-agent/internal/sample"
)

const (
	logonPath      = "/rest/api/web/Logon"
	managedSysPath = "/rest/api/uom/ManagedSystem"
	maxBodyBytes   = 64 << 20
	timeLayout     = "2006-01-02T15:04:05Z"
)

type Config struct {
	BaseURL    string
	Username   string
	Password   string
	Timeout    time.Duration
	TLSConfig  *tls.Config
	RetryWait  time.Duration
	MaxJitter  time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// Client talks to the HMC REST API and owns one logon session.
type Client struct {
	mu      sync.Mutex
	session string

	base       *url.URL
	http       *http.Client
	username   string
	password   string
	logger     *slog.Logger
	retryWait  time.Duration
	maxJitter  time.Duration
	maxRetries int

	randMu  sync.Mutex
	randSrc *rand.Rand
}

// ManagedSystem is one entry of the HMC managed system inventory.
type ManagedSystem struct {
	UUID  string `json:"uuid"`
	Name  string `json:"name"`
	State string `json:"state"`
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("hmc base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse hmc url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("hmc url %q must include scheme and host", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 3 * time.Second
	}
	if cfg.MaxJitter < 0 {
		cfg.MaxJitter = 0
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &http.Transport{TLSClientConfig: cfg.TLSConfig, Proxy: http.ProxyFromEnvironment},
		}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		base:       base,
		http:       httpClient,
		username:   cfg.Username,
		password:   cfg.Password,
		logger:     logger,
		retryWait:  cfg.RetryWait,
		maxJitter:  cfg.MaxJitter,
		maxRetries: cfg.MaxRetries,
		randSrc:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Logon opens a new session, replacing any current one.
func (c *Client) Logon(ctx context.Context) error {
	body, err := encodeLogon(c.username, c.password)
	if err != nil {
		return err
	}
	h := http.Header{}
	h.Set("Content-Type", logonContentType)
	h.Set("Accept", logonAcceptType)
	resp, err := c.send(ctx, http.MethodPut, logonPath, body, h, false)
	if err != nil {
		return fmt.Errorf("hmc logon: %w", err)
	}
	token, err := decodeLogon(resp)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.session = token
	c.mu.Unlock()
	c.logger.Info("hmc session opened", "hmc", c.base.Redacted(), "user", c.username)
	return nil
}

// Logoff closes the current session; it is a no-op without one.
func (c *Client) Logoff(ctx context.Context) error {
	if !c.LoggedOn() {
		return nil
	}
	_, err := c.send(ctx, http.MethodDelete, logonPath, nil, nil, false)
	c.mu.Lock()
	c.session = ""
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("hmc logoff: %w", err)
	}
	return nil
}

func (c *Client) LoggedOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != ""
}

// Healthy verifies the session with a managed system listing. An expired
// session is renewed on the way.
func (c *Client) Healthy(ctx context.Context) error {
	h := http.Header{}
	h.Set("Accept", "application/atom+xml")
	if _, err := c.send(ctx, http.MethodGet, managedSysPath, nil, h, true); err != nil {
		return fmt.Errorf("hmc health: %w", err)
	}
	return nil
}

// ManagedSystemMetrics fetches processed PCM samples for one managed system.
// Each returned Value is one JSON document referenced by the Atom feed. A 403
// answer is reported as ErrMetricsUnavailable.
func (c *Client) ManagedSystemMetrics(ctx context.Context, sysUUID string, start, end *time.Time) ([]sample.Value, error) {
	if strings.TrimSpace(sysUUID) == "" {
		return nil, errors.New("managed system uuid is required")
	}
	path := "/rest/api/pcm/ManagedSystem/" + url.PathEscape(sysUUID) + "/ProcessedMetrics"
	var query []string
	if start != nil {
		query = append(query, "StartTS="+start.UTC().Format(timeLayout))
	}
	if end != nil {
		query = append(query, "EndTS="+end.UTC().Format(timeLayout))
	}
	if len(query) > 0 {
		path += "?" + strings.Join(query, "&")
	}

	h := http.Header{}
	h.Set("Accept", "application/atom+xml")
	body, err := c.send(ctx, http.MethodGet, path, nil, h, true)
	if err != nil {
		return nil, fmt.Errorf("managed system %s metrics: %w", sysUUID, err)
	}
	feed, err := decodeFeed(body)
	if err != nil {
		return nil, fmt.Errorf("managed system %s metrics: %w", sysUUID, err)
	}

	links := feed.metricLinks()
	batches := make([]sample.Value, 0, len(links))
	for _, href := range links {
		h := http.Header{}
		h.Set("Accept", "application/json")
		doc, err := c.send(ctx, http.MethodGet, href, nil, h, true)
		if err != nil {
			return nil, fmt.Errorf("managed system %s metrics document: %w", sysUUID, err)
		}
		v, err := sample.Parse(doc)
		if err != nil {
			return nil, fmt.Errorf("managed system %s metrics document %s: %w", sysUUID, href, err)
		}
		batches = append(batches, v)
	}
	return batches, nil
}

// ManagedSystems lists the managed systems known to the HMC.
func (c *Client) ManagedSystems(ctx context.Context) ([]ManagedSystem, error) {
	h := http.Header{}
	h.Set("Accept", "application/atom+xml")
	body, err := c.send(ctx, http.MethodGet, managedSysPath, nil, h, true)
	if err != nil {
		return nil, fmt.Errorf("list managed systems: %w", err)
	}
	feed, err := decodeFeed(body)
	if err != nil {
		return nil, fmt.Errorf("list managed systems: %w", err)
	}
	out := make([]ManagedSystem, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			continue
		}
		ms := ManagedSystem{UUID: id}
		if e.System != nil {
			ms.Name = strings.TrimSpace(e.System.SystemName)
			ms.State = strings.TrimSpace(e.System.State)
		}
		out = append(out, ms)
	}
	return out, nil
}

// send runs one request with transient-error retries. With authed set, a 401
// triggers a single re-logon and replay.
func (c *Client) send(ctx context.Context, method, ref string, body []byte, header http.Header, authed bool) ([]byte, error) {
	target, err := c.resolve(ref)
	if err != nil {
		return nil, err
	}
	relogged := false
	attempt := 0
	for {
		out, err := c.roundTrip(ctx, method, target, body, header, authed)
		if err == nil {
			return out, nil
		}
		if authed && !relogged && errors.Is(err, ErrUnauthorized) {
			relogged = true
			c.logger.Info("hmc session rejected, logging on again", "url", target)
			if lerr := c.Logon(ctx); lerr != nil {
				return nil, lerr
			}
			continue
		}
		if !retryable(err) || attempt >= c.maxRetries {
			return nil, err
		}
		attempt++
		wait := c.retryWait + c.jitter()
		c.logger.Warn("hmc request failed, retrying", "method", method, "url", target, "error", err, "attempt", attempt, "retry_in", wait)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, method, target string, body []byte, header http.Header, authed bool) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if authed {
		c.mu.Lock()
		token := c.session
		c.mu.Unlock()
		if token == "" {
			if err := c.Logon(ctx); err != nil {
				return nil, err
			}
			c.mu.Lock()
			token = c.session
			c.mu.Unlock()
		}
		req.Header.Set(sessionHeader, token)
	} else if method == http.MethodDelete {
		c.mu.Lock()
		req.Header.Set(sessionHeader, c.session)
		c.mu.Unlock()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, target, err)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       truncate(strings.TrimSpace(string(payload)), 256),
		}
	}
	return payload, nil
}

func (c *Client) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse request url %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	return c.base.ResolveReference(u).String(), nil
}

func (c *Client) jitter() time.Duration {
	if c.maxJitter == 0 {
		return 0
	}
	c.randMu.Lock()
	defer c.randMu.Unlock()
	return time.Duration(c.randSrc.Int63n(int64(c.maxJitter)))
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.Temporary()
	}
	var uerr *url.Error
	return errors.As(err, &uerr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
