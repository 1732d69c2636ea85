package counter

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"power-hmc-agent/internal/sample"
)

// ParseError reports a sample whose sampleInfo.timeStamp could not be parsed.
type ParseError struct {
	Index int
	Raw   string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Raw == "" {
		return fmt.Sprintf("sample %d: missing sampleInfo.timeStamp", e.Index)
	}
	return fmt.Sprintf("sample %d: parse timestamp %q: %v", e.Index, e.Raw, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Point holds the defined counter values of one sample timestamp.
type Point struct {
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// Series is a set of points ordered by timestamp.
type Series []Point

// At returns the values recorded for ts.
func (s Series) At(ts time.Time) (map[string]float64, bool) {
	i := sort.Search(len(s), func(i int) bool { return !s[i].Timestamp.Before(ts) })
	if i < len(s) && s[i].Timestamp.Equal(ts) {
		return s[i].Values, true
	}
	return nil, false
}

func (s Series) Timestamps() []time.Time {
	out := make([]time.Time, 0, len(s))
	for _, p := range s {
		out = append(out, p.Timestamp)
	}
	return out
}

func (s Series) Latest() (Point, bool) {
	if len(s) == 0 {
		return Point{}, false
	}
	return s[len(s)-1], true
}

// tsLayouts are the forms HMC firmware uses for sampleInfo.timeStamp. A
// timestamp without zone is taken as UTC.
var tsLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
}

func ParseTimestamp(raw string) (time.Time, error) {
	var firstErr error
	for _, layout := range tsLayouts {
		ts, err := time.Parse(layout, raw)
		if err == nil {
			return ts.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// Processor turns raw PCM batches into counter series. It holds no per-call
// state and is safe for concurrent use.
type Processor struct {
	registry *Registry
	logger   *slog.Logger
}

func NewProcessor(registry *Registry, logger *slog.Logger) *Processor {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Processor{registry: registry, logger: logger}
}

func (p *Processor) Registry() *Registry { return p.registry }

// Process derives the requested counters for every sample of the first batch.
// Batches after the first are ignored. Unknown counter names yield no value.
// A sample with a missing or malformed timestamp aborts the call.
func (p *Processor) Process(names []string, batches []sample.Value) (Series, error) {
	if len(batches) == 0 {
		return Series{}, nil
	}
	if len(batches) > 1 {
		p.logger.Debug("ignoring extra sample batches", "batches", len(batches), "ignored", len(batches)-1)
	}

	bound, misses := p.registry.resolve(names)
	if len(misses) > 0 {
		p.logger.Debug("unknown counters requested", "counters", misses)
	}

	samples := sample.UtilSamples(batches[0])
	byTS := make(map[int64]int, len(samples))
	out := make(Series, 0, len(samples))
	for i, s := range samples {
		raw, ok := sample.RawTimestamp(s)
		if !ok {
			return nil, &ParseError{Index: i}
		}
		ts, err := ParseTimestamp(raw)
		if err != nil {
			return nil, &ParseError{Index: i, Raw: raw, Err: err}
		}

		values := make(map[string]float64, len(bound))
		for _, c := range bound {
			if v, ok := c.fn(s); ok {
				values[c.name] = v
			}
		}

		key := ts.UnixNano()
		if at, dup := byTS[key]; dup {
			out[at].Values = values
			continue
		}
		byTS[key] = len(out)
		out = append(out, Point{Timestamp: ts, Values: values})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
