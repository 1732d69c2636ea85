package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type StreamMode string

const (
	StreamModeGRPC      StreamMode = "grpc"
	StreamModeWebSocket StreamMode = "websocket"
	StreamModeLog       StreamMode = "log"
	StreamModeTimescale StreamMode = "timescale"
	HardcodedVersion    string     = "V0.3"
)

var defaultCounters = []string{
	"cpu_usage_rate_average",
	"disk_usage_rate_average",
	"mem_usage_absolute_average",
	"net_usage_rate_average",
}

type Config struct {
	AgentID                  string
	HMCURL                   string
	HMCUsername              string
	HMCPassword              string
	HMCTimeout               time.Duration
	HMCSkipVerify            bool
	HMCRetryWait             time.Duration
	HMCMaxJitter             time.Duration
	HMCMaxRetries            int
	Hosts                    []Host
	HostsFile                string
	Counters                 []string
	CaptureInterval          time.Duration
	CaptureWindow            time.Duration
	HealthInterval           time.Duration
	ShutdownTimeout          time.Duration
	ProbeListenAddr          string
	MetricsListenAddr        string
	StreamMode               StreamMode
	BackendGRPCAddr          string
	BackendWSURL             string
	BackendToken             string
	TimescaleDSN             string
	TimescaleCountersTable   string
	TimescaleStatusTable     string
	AgentVersion             string
	TLSEnabled               bool
	TLSSkipVerify            bool
	TLSCAPath                string
	TLSCertPath              string
	TLSKeyPath               string
	LogJSON                  bool
	LogLevel                 string
	GRPCCountersStreamMethod string
	GRPCStatusStreamMethod   string
	WebSocketWriteTimeout    time.Duration
	WebSocketPingInterval    time.Duration
	CollectorErrorBackoff    time.Duration
}

func Load() (Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	cfg := Config{
		AgentID:                  env("PHMC_AGENT_ID", hostname),
		HMCURL:                   env("PHMC_HMC_URL", ""),
		HMCUsername:              env("PHMC_HMC_USERNAME", "hscroot"),
		HMCPassword:              env("PHMC_HMC_PASSWORD", ""),
		HMCTimeout:               envDuration("PHMC_HMC_TIMEOUT", 30*time.Second),
		HMCSkipVerify:            envBool("PHMC_HMC_SKIP_VERIFY", false),
		HMCRetryWait:             envDuration("PHMC_HMC_RETRY_WAIT", 3*time.Second),
		HMCMaxJitter:             envDuration("PHMC_HMC_MAX_JITTER", 900*time.Millisecond),
		HMCMaxRetries:            envInt("PHMC_HMC_MAX_RETRIES", 2),
		Hosts:                    parseHostList(env("PHMC_HOSTS", "")),
		HostsFile:                env("PHMC_HOSTS_FILE", ""),
		Counters:                 envList("PHMC_COUNTERS", defaultCounters),
		CaptureInterval:          envDuration("PHMC_CAPTURE_INTERVAL", 5*time.Minute),
		CaptureWindow:            envDuration("PHMC_CAPTURE_WINDOW", 10*time.Minute),
		HealthInterval:           envDuration("PHMC_HEALTH_INTERVAL", 30*time.Second),
		ShutdownTimeout:          envDuration("PHMC_SHUTDOWN_TIMEOUT", 20*time.Second),
		ProbeListenAddr:          env("PHMC_PROBE_ADDR", "0.0.0.0:7443"),
		MetricsListenAddr:        env("PHMC_METRICS_ADDR", ":9464"),
		StreamMode:               StreamMode(strings.ToLower(env("PHMC_STREAM_MODE", string(StreamModeGRPC)))),
		BackendGRPCAddr:          env("PHMC_BACKEND_GRPC_ADDR", "127.0.0.1:3001"),
		BackendWSURL:             env("PHMC_BACKEND_WS_URL", "ws://127.0.0.1:3001/ws/counters"),
		BackendToken:             env("PHMC_BACKEND_TOKEN", ""),
		TimescaleDSN:             env("PHMC_TIMESCALE_DSN", ""),
		TimescaleCountersTable:   env("PHMC_TIMESCALE_COUNTERS_TABLE", "hmc_host_counters"),
		TimescaleStatusTable:     env("PHMC_TIMESCALE_STATUS_TABLE", "hmc_host_status"),
		AgentVersion:             HardcodedVersion,
		TLSEnabled:               envBool("PHMC_TLS_ENABLED", false),
		TLSSkipVerify:            envBool("PHMC_TLS_SKIP_VERIFY", false),
		TLSCAPath:                env("PHMC_TLS_CA_PATH", ""),
		TLSCertPath:              env("PHMC_TLS_CERT_PATH", ""),
		TLSKeyPath:               env("PHMC_TLS_KEY_PATH", ""),
		LogJSON:                  envBool("PHMC_LOG_JSON", true),
		LogLevel:                 strings.ToLower(env("PHMC_LOG_LEVEL", "info")),
		GRPCCountersStreamMethod: env("PHMC_GRPC_COUNTERS_STREAM_METHOD", "/powerhmc.counters.v1.CounterService/StreamHostCounters"),
		GRPCStatusStreamMethod:   env("PHMC_GRPC_STATUS_STREAM_METHOD", "/powerhmc.counters.v1.CounterService/StreamHostStatus"),
		WebSocketWriteTimeout:    envDuration("PHMC_WS_WRITE_TIMEOUT", 5*time.Second),
		WebSocketPingInterval:    envDuration("PHMC_WS_PING_INTERVAL", 10*time.Second),
		CollectorErrorBackoff:    envDuration("PHMC_COLLECTOR_ERROR_BACKOFF", 1500*time.Millisecond),
	}

	if cfg.HostsFile != "" {
		fileHosts, err := LoadHostsFile(cfg.HostsFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Hosts = mergeHosts(cfg.Hosts, fileHosts)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.AgentID == "" {
		return errors.New("PHMC_AGENT_ID is required")
	}
	if strings.TrimSpace(c.AgentVersion) == "" {
		return errors.New("agent version must not be empty")
	}
	if c.HMCURL == "" {
		return errors.New("PHMC_HMC_URL is required")
	}
	u, err := url.Parse(c.HMCURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("PHMC_HMC_URL %q must be an absolute url", c.HMCURL)
	}
	if c.HMCUsername == "" {
		return errors.New("PHMC_HMC_USERNAME is required")
	}
	if c.HMCMaxRetries < 0 {
		return errors.New("PHMC_HMC_MAX_RETRIES must be >= 0")
	}
	if len(c.Counters) == 0 {
		return errors.New("PHMC_COUNTERS must name at least one counter")
	}
	if c.CaptureInterval <= 0 || c.CaptureWindow <= 0 {
		return errors.New("capture interval and window must be > 0")
	}
	if c.HealthInterval <= 0 {
		return errors.New("PHMC_HEALTH_INTERVAL must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("PHMC_SHUTDOWN_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(c.ProbeListenAddr) == "" {
		return errors.New("PHMC_PROBE_ADDR is required")
	}
	for _, h := range c.Hosts {
		if strings.TrimSpace(h.UUID) == "" {
			return errors.New("host entries must carry a uuid")
		}
	}
	switch c.StreamMode {
	case StreamModeGRPC, StreamModeWebSocket, StreamModeLog, StreamModeTimescale:
	default:
		return fmt.Errorf("unsupported stream mode %q", c.StreamMode)
	}
	if c.StreamMode == StreamModeGRPC {
		if c.BackendGRPCAddr == "" {
			return errors.New("PHMC_BACKEND_GRPC_ADDR is required for grpc mode")
		}
		if strings.TrimSpace(c.GRPCCountersStreamMethod) == "" {
			return errors.New("PHMC_GRPC_COUNTERS_STREAM_METHOD is required for grpc mode")
		}
		if strings.TrimSpace(c.GRPCStatusStreamMethod) == "" {
			return errors.New("PHMC_GRPC_STATUS_STREAM_METHOD is required for grpc mode")
		}
	}
	if c.StreamMode == StreamModeWebSocket && c.BackendWSURL == "" {
		return errors.New("PHMC_BACKEND_WS_URL is required for websocket mode")
	}
	if c.StreamMode == StreamModeTimescale && c.TimescaleDSN == "" {
		return errors.New("PHMC_TIMESCALE_DSN is required for timescale mode")
	}
	return nil
}

// TLSConfig is the client TLS config for the counter backend.
func (c Config) TLSConfig() (*tls.Config, error) {
	if !c.TLSEnabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.TLSSkipVerify}
	if c.TLSCAPath != "" {
		pool, err := loadCAPool(c.TLSCAPath)
		if err != nil {
			return nil, err
		}
		tlsCfg.RootCAs = pool
	}
	if c.TLSCertPath != "" || c.TLSKeyPath != "" {
		if c.TLSCertPath == "" || c.TLSKeyPath == "" {
			return nil, errors.New("both TLS cert and key are required")
		}
		crt, err := tls.LoadX509KeyPair(c.TLSCertPath, c.TLSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load mTLS cert/key: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{crt}
	}
	return tlsCfg, nil
}

// HMCTLSConfig is the TLS config for the HMC REST endpoint. HMCs commonly ship
// self-signed certificates, hence the separate skip-verify switch.
func (c Config) HMCTLSConfig() *tls.Config {
	return &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.HMCSkipVerify}
}

func loadCAPool(path string) (*x509.CertPool, error) {
	caBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, errors.New("append CA cert failed")
	}
	return pool, nil
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return append([]string(nil), fallback...)
	}
	return splitList(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
