package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PHMC_HMC_URL", "https://hmc.example.com:12443")
	t.Setenv("PHMC_HOSTS", "uuid-a=p10-a, uuid-b")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "hscroot", cfg.HMCUsername)
	assert.Equal(t, 5*time.Minute, cfg.CaptureInterval)
	assert.Equal(t, 10*time.Minute, cfg.CaptureWindow)
	assert.Equal(t, StreamModeGRPC, cfg.StreamMode)
	assert.Equal(t, defaultCounters, cfg.Counters)
	assert.Equal(t, []Host{{UUID: "uuid-a", Name: "p10-a"}, {UUID: "uuid-b"}}, cfg.Hosts)
	assert.Equal(t, 2, cfg.HMCMaxRetries)
	assert.True(t, cfg.LogJSON)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PHMC_HMC_URL", "https://hmc.example.com")
	t.Setenv("PHMC_COUNTERS", "cpu_usage_rate_average, ,net_usage_rate_average")
	t.Setenv("PHMC_CAPTURE_INTERVAL", "90s")
	t.Setenv("PHMC_CAPTURE_WINDOW", "not-a-duration")
	t.Setenv("PHMC_STREAM_MODE", "LOG")
	t.Setenv("PHMC_HMC_MAX_RETRIES", "x")
	t.Setenv("PHMC_LOG_JSON", "off")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu_usage_rate_average", "net_usage_rate_average"}, cfg.Counters)
	assert.Equal(t, 90*time.Second, cfg.CaptureInterval)
	assert.Equal(t, 10*time.Minute, cfg.CaptureWindow)
	assert.Equal(t, StreamModeLog, cfg.StreamMode)
	assert.Equal(t, 2, cfg.HMCMaxRetries)
	assert.False(t, cfg.LogJSON)
}

func TestLoadRequiresHMCURL(t *testing.T) {
	t.Setenv("PHMC_HMC_URL", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PHMC_HMC_URL")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			AgentID:                  "a",
			AgentVersion:             HardcodedVersion,
			HMCURL:                   "https://hmc",
			HMCUsername:              "hscroot",
			Counters:                 defaultCounters,
			CaptureInterval:          time.Minute,
			CaptureWindow:            time.Minute,
			HealthInterval:           time.Minute,
			ShutdownTimeout:          time.Second,
			ProbeListenAddr:          ":7443",
			StreamMode:               StreamModeGRPC,
			BackendGRPCAddr:          "127.0.0.1:3001",
			GRPCCountersStreamMethod: "/x/Counters",
			GRPCStatusStreamMethod:   "/x/Status",
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative hmc url", func(c *Config) { c.HMCURL = "hmc.example.com" }},
		{"no user", func(c *Config) { c.HMCUsername = "" }},
		{"no counters", func(c *Config) { c.Counters = nil }},
		{"zero interval", func(c *Config) { c.CaptureInterval = 0 }},
		{"negative retries", func(c *Config) { c.HMCMaxRetries = -1 }},
		{"bad mode", func(c *Config) { c.StreamMode = "udp" }},
		{"grpc without addr", func(c *Config) { c.BackendGRPCAddr = "" }},
		{"grpc without method", func(c *Config) { c.GRPCStatusStreamMethod = " " }},
		{"ws without url", func(c *Config) { c.StreamMode = StreamModeWebSocket; c.BackendWSURL = "" }},
		{"timescale without dsn", func(c *Config) { c.StreamMode = StreamModeTimescale }},
		{"host without uuid", func(c *Config) { c.Hosts = []Host{{Name: "x"}} }},
		{"no probe addr", func(c *Config) { c.ProbeListenAddr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadHostsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
hosts:
  - uuid: uuid-a
    name: p10-a
  - uuid: " uuid-c "
`), 0o600))

	hosts, err := LoadHostsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []Host{{UUID: "uuid-a", Name: "p10-a"}, {UUID: "uuid-c"}}, hosts)

	t.Setenv("PHMC_HMC_URL", "https://hmc")
	t.Setenv("PHMC_HOSTS", "uuid-a,uuid-b")
	t.Setenv("PHMC_HOSTS_FILE", path)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []Host{{UUID: "uuid-a", Name: "p10-a"}, {UUID: "uuid-b"}, {UUID: "uuid-c"}}, cfg.Hosts)
}

func TestLoadHostsFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadHostsFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("hosts: [\n"), 0o600))
	_, err = LoadHostsFile(bad)
	assert.Error(t, err)

	noUUID := filepath.Join(dir, "nouuid.yaml")
	require.NoError(t, os.WriteFile(noUUID, []byte("hosts:\n  - name: x\n"), 0o600))
	_, err = LoadHostsFile(noUUID)
	assert.Error(t, err)
}

func TestTLSConfig(t *testing.T) {
	cfg, err := Config{}.TLSConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = Config{TLSEnabled: true, TLSCertPath: "only-cert.pem"}.TLSConfig()
	assert.Error(t, err)

	_, err = Config{TLSEnabled: true, TLSCAPath: filepath.Join(t.TempDir(), "none.pem")}.TLSConfig()
	assert.Error(t, err)

	tlsCfg, err := Config{TLSEnabled: true, TLSSkipVerify: true}.TLSConfig()
	require.NoError(t, err)
	assert.True(t, tlsCfg.InsecureSkipVerify)

	assert.True(t, Config{HMCSkipVerify: true}.HMCTLSConfig().InsecureSkipVerify)
}
