package model

import (
	"time"

	"power-hmc-agent/internal/counter"
)

// HostCounters is one capture window of derived counters for a managed system.
type HostCounters struct {
	AgentID         string         `json:"agent_id"`
	HostUUID        string         `json:"host_uuid"`
	HostName        string         `json:"host_name,omitempty"`
	CollectedAtUnix int64          `json:"collected_at_unix"`
	WindowStartUnix int64          `json:"window_start_unix"`
	WindowEndUnix   int64          `json:"window_end_unix"`
	Points          []CounterPoint `json:"points"`
}

type CounterPoint struct {
	TimestampUnix int64              `json:"timestamp_unix"`
	Values        map[string]float64 `json:"values"`
}

// HostStatus reports a capture that produced no counters, e.g. PCM disabled.
type HostStatus struct {
	AgentID          string `json:"agent_id"`
	HostUUID         string `json:"host_uuid"`
	CheckedAtUnix    int64  `json:"checked_at_unix"`
	MetricsAvailable bool   `json:"metrics_available"`
	Reason           string `json:"reason,omitempty"`
}

func NewHostCounters(agentID, hostUUID, hostName string, start, end, at time.Time, series counter.Series) HostCounters {
	points := make([]CounterPoint, 0, len(series))
	for _, p := range series {
		values := make(map[string]float64, len(p.Values))
		for k, v := range p.Values {
			values[k] = v
		}
		points = append(points, CounterPoint{TimestampUnix: p.Timestamp.Unix(), Values: values})
	}
	return HostCounters{
		AgentID:         agentID,
		HostUUID:        hostUUID,
		HostName:        hostName,
		CollectedAtUnix: at.UTC().Unix(),
		WindowStartUnix: start.UTC().Unix(),
		WindowEndUnix:   end.UTC().Unix(),
		Points:          points,
	}
}
