package model

type MetricType string

const (
	MetricTypeHostCounters MetricType = "host_counters"
	MetricTypeHostStatus   MetricType = "host_status"
)

// Envelope is transport-agnostic framing for stream payloads.
type Envelope struct {
	Type          MetricType `json:"type"`
	AgentID       string     `json:"agent_id"`
	TimestampUnix int64      `json:"timestamp_unix"`
	Payload       any        `json:"payload"`
}
