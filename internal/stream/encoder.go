package stream

import (
	"encoding/json"
	"time"

	"power-hmc-agent/internal/model"
)

type Sink interface {
	SendHostCounters(ctx Context, c model.HostCounters) error
	SendHostStatus(ctx Context, s model.HostStatus) error
	Close(ctx Context) error
}

type Context interface {
	Done() <-chan struct{}
	Err() error
	Deadline() (time.Time, bool)
	Value(key any) any
}

type HostCountersFrame struct {
	AgentID       string             `json:"agent_id"`
	HostUUID      string             `json:"host_uuid"`
	TimestampUnix int64              `json:"timestamp_unix"`
	Counters      model.HostCounters `json:"counters"`
}

type HostStatusFrame struct {
	AgentID       string           `json:"agent_id"`
	HostUUID      string           `json:"host_uuid"`
	TimestampUnix int64            `json:"timestamp_unix"`
	Status        model.HostStatus `json:"status"`
}

func EncodeEnvelope(e model.Envelope) ([]byte, error) {
	return json.Marshal(e)
}

func NewHostCountersFrame(c model.HostCounters) HostCountersFrame {
	at := c.CollectedAtUnix
	if at == 0 {
		at = time.Now().UTC().Unix()
	}
	points := append([]model.CounterPoint(nil), c.Points...)
	c.Points = points
	return HostCountersFrame{AgentID: c.AgentID, HostUUID: c.HostUUID, TimestampUnix: at, Counters: c}
}

func NewHostStatusFrame(s model.HostStatus) HostStatusFrame {
	at := s.CheckedAtUnix
	if at == 0 {
		at = time.Now().UTC().Unix()
	}
	return HostStatusFrame{AgentID: s.AgentID, HostUUID: s.HostUUID, TimestampUnix: at, Status: s}
}

func hostCountersEnvelope(c model.HostCounters) model.Envelope {
	frame := NewHostCountersFrame(c)
	return model.Envelope{Type: model.MetricTypeHostCounters, AgentID: frame.AgentID, TimestampUnix: frame.TimestampUnix, Payload: frame}
}

func hostStatusEnvelope(s model.HostStatus) model.Envelope {
	frame := NewHostStatusFrame(s)
	return model.Envelope{Type: model.MetricTypeHostStatus, AgentID: frame.AgentID, TimestampUnix: frame.TimestampUnix, Payload: frame}
}
