package version

import (
	"time"

	"power-hmc-agent/internal/config"
)

// Get describes the running agent. hosts are the managed system UUIDs being
// captured, which may come from discovery rather than cfg.
func Get(cfg config.Config, hosts []string, _ *GetVersionRequest) *GetVersionResponse {
	return &GetVersionResponse{
		AgentID:         cfg.AgentID,
		AgentVersion:    cfg.AgentVersion,
		StreamMode:      string(cfg.StreamMode),
		ProbeListenAddr: cfg.ProbeListenAddr,
		HMCURL:          cfg.HMCURL,
		Counters:        append([]string(nil), cfg.Counters...),
		Hosts:           append([]string(nil), hosts...),
		CheckedAtUnix:   time.Now().UTC().Unix(),
	}
}
