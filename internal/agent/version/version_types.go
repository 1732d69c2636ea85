package version

type GetVersionRequest struct {
	AgentID string `json:"agent_id"`
}

type GetVersionResponse struct {
	AgentID         string   `json:"agent_id"`
	AgentVersion    string   `json:"agent_version"`
	StreamMode      string   `json:"stream_mode"`
	ProbeListenAddr string   `json:"probe_listen_addr"`
	HMCURL          string   `json:"hmc_url"`
	Counters        []string `json:"counters"`
	Hosts           []string `json:"hosts,omitempty"`
	CheckedAtUnix   int64    `json:"checked_at_unix"`
}
