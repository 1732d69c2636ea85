package counter

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"power-hmc-agent/internal/sample"
)

// batch wraps util samples into a ProcessedMetrics document.
func batch(t *testing.T, samples ...string) sample.Value {
	t.Helper()
	doc := fmt.Sprintf(`{"systemUtil": {"utilInfo": {"frequency": 30}, "utilSamples": [%s]}}`, strings.Join(samples, ","))
	v, err := sample.Parse([]byte(doc))
	require.NoError(t, err)
	return v
}

func fullSample(ts string) string {
	return fmt.Sprintf(`{
		"sampleInfo": {"timeStamp": %q, "status": 0},
		"serverUtil": {
			"processor": {"utilizedProcUnits": [1.0, 1.0], "configurableProcUnits": [4.0]},
			"memory": {"assignedMemToLpars": [2048.0], "configurableMem": [8192.0]},
			"network": {
				"headAdapters": [
					{"physicalPorts": [{"transferredBytes": [15360.0]}, {"transferredBytes": [7680.0, 7680.0]}]}
				]
			}
		},
		"viosUtil": [
			{
				"name": "vios1",
				"storage": {
					"genericVirtualAdapters": [{"transmittedBytes": [30720.0]}, 12, "junk"],
					"fiberChannelAdapters": [{"transmittedBytes": [15360.0, 15360.0]}]
				},
				"network": {
					"sharedAdapters": [{"transferredBytes": [30720.0]}, 5],
					"virtualEthernetAdapters": []
				}
			},
			{"name": "vios2"}
		]
	}`, ts)
}

func TestProcessFullSample(t *testing.T) {
	p := NewProcessor(nil, nil)
	series, err := p.Process(DefaultNames(), []sample.Value{batch(t, fullSample("2024-05-01T10:00:00Z"))})
	require.NoError(t, err)
	require.Len(t, series, 1)

	assert.True(t, series[0].Timestamp.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	values := series[0].Values
	assert.InDelta(t, 50.0, values[CPUUsageRateAverage], 1e-9)
	assert.InDelta(t, 25.0, values[MemUsageAbsoluteAverage], 1e-9)
	// 61440 bytes / 30 / 1024
	assert.InDelta(t, 2.0, values[DiskUsageRateAverage], 1e-9)
	// server 30720 + vios 30720 = 61440 bytes
	assert.InDelta(t, 2.0, values[NetUsageRateAverage], 1e-9)
}

func TestMissingSubtreesAreUndefined(t *testing.T) {
	tests := []struct {
		name    string
		sample  string
		absent  []string
		present map[string]float64
	}{
		{
			name:    "no processor",
			sample:  `{"sampleInfo": {"timeStamp": "2024-05-01T10:00:00Z"}, "serverUtil": {"memory": {"assignedMemToLpars": [1], "configurableMem": [4]}}}`,
			absent:  []string{CPUUsageRateAverage, NetUsageRateAverage},
			present: map[string]float64{MemUsageAbsoluteAverage: 25, DiskUsageRateAverage: 0},
		},
		{
			name:    "no memory",
			sample:  `{"sampleInfo": {"timeStamp": "2024-05-01T10:00:00Z"}, "serverUtil": {"processor": {"utilizedProcUnits": [1], "configurableProcUnits": [2]}}}`,
			absent:  []string{MemUsageAbsoluteAverage, NetUsageRateAverage},
			present: map[string]float64{CPUUsageRateAverage: 50, DiskUsageRateAverage: 0},
		},
		{
			name:    "no serverUtil at all",
			sample:  `{"sampleInfo": {"timeStamp": "2024-05-01T10:00:00Z"}}`,
			absent:  []string{CPUUsageRateAverage, MemUsageAbsoluteAverage, NetUsageRateAverage},
			present: map[string]float64{DiskUsageRateAverage: 0},
		},
		{
			name:   "server network absent gates vios network",
			sample: `{"sampleInfo": {"timeStamp": "2024-05-01T10:00:00Z"}, "serverUtil": {}, "viosUtil": [{"network": {"sharedAdapters": [{"transferredBytes": [30720]}]}}]}`,
			absent: []string{NetUsageRateAverage, CPUUsageRateAverage, MemUsageAbsoluteAverage},
			present: map[string]float64{
				DiskUsageRateAverage: 0,
			},
		},
		{
			name:   "null subtrees count as absent",
			sample: `{"sampleInfo": {"timeStamp": "2024-05-01T10:00:00Z"}, "serverUtil": {"processor": null, "memory": null, "network": null}, "viosUtil": null}`,
			absent: []string{CPUUsageRateAverage, MemUsageAbsoluteAverage, NetUsageRateAverage},
			present: map[string]float64{
				DiskUsageRateAverage: 0,
			},
		},
	}

	p := NewProcessor(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series, err := p.Process(DefaultNames(), []sample.Value{batch(t, tt.sample)})
			require.NoError(t, err)
			require.Len(t, series, 1)
			for _, name := range tt.absent {
				_, ok := series[0].Values[name]
				assert.False(t, ok, "%s should be absent", name)
			}
			for name, want := range tt.present {
				got, ok := series[0].Values[name]
				require.True(t, ok, "%s should be present", name)
				assert.InDelta(t, want, got, 1e-9, name)
			}
		})
	}
}

func TestDiskWithoutViosIsExactlyZero(t *testing.T) {
	s := sample.MustParse(`{"sampleInfo": {"timeStamp": "2024-05-01T10:00:00Z"}}`)
	v, ok := diskUsageRateAverage(s)
	require.True(t, ok)
	assert.Equal(t, 0.0, v)
}

func TestNetworkWithoutViosUsesServerSideOnly(t *testing.T) {
	s := sample.MustParse(`{"serverUtil": {"network": {"headAdapters": [
		{"physicalPorts": [{"transferredBytes": [30720]}]},
		{"physicalPorts": []},
		{}
	]}}}`)
	v, ok := netUsageRateAverage(s)
	require.True(t, ok)
	assert.InDelta(t, 1.0, v, 1e-12)
	assert.InDelta(t, serverNetworkBytes(s.Path("serverUtil", "network"))/30/1024, v, 1e-12)
}

func TestMixedShapeAdapterSequences(t *testing.T) {
	s := sample.MustParse(`{
		"serverUtil": {"network": {"headAdapters": [7, {"physicalPorts": [3, {"transferredBytes": [1024]}]}], "odd": 4}},
		"viosUtil": [
			{"storage": {"genericVirtualAdapters": [1, "two", null, {"transmittedBytes": [30720]}, [5]]}, "network": {"sharedAdapters": [{"transferredBytes": [29696]}, 9]}},
			"not-a-vios"
		]
	}`)

	disk, ok := diskUsageRateAverage(s)
	require.True(t, ok)
	assert.InDelta(t, 1.0, disk, 1e-12)

	net, ok := netUsageRateAverage(s)
	require.True(t, ok)
	assert.InDelta(t, 1.0, net, 1e-12)
}

func TestUnitConversionDisk(t *testing.T) {
	s := sample.MustParse(`{"viosUtil": [{"storage": {"fiberChannelAdapters": [{"transmittedBytes": [10240, 20480]}]}}]}`)
	v, ok := diskUsageRateAverage(s)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestCPUCheck(t *testing.T) {
	s := sample.MustParse(`{"serverUtil": {"processor": {"utilizedProcUnits": [1.0, 1.0], "configurableProcUnits": [4.0]}}}`)
	v, ok := cpuUsageRateAverage(s)
	require.True(t, ok)
	assert.Equal(t, 50.0, v)
}

func TestZeroDenominatorsAreUndefined(t *testing.T) {
	tests := []struct {
		name string
		fn   DeriveFunc
		raw  string
	}{
		{"memory zero", memUsageAbsoluteAverage, `{"serverUtil": {"memory": {"assignedMemToLpars": [10.0], "configurableMem": [0.0]}}}`},
		{"memory missing capacity", memUsageAbsoluteAverage, `{"serverUtil": {"memory": {"assignedMemToLpars": [10.0]}}}`},
		{"cpu zero", cpuUsageRateAverage, `{"serverUtil": {"processor": {"utilizedProcUnits": [1.0], "configurableProcUnits": [0.0, 0.0]}}}`},
		{"cpu empty capacity", cpuUsageRateAverage, `{"serverUtil": {"processor": {"utilizedProcUnits": [1.0], "configurableProcUnits": []}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := tt.fn(sample.MustParse(tt.raw))
			assert.False(t, ok)
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		})
	}

	p := NewProcessor(nil, nil)
	series, err := p.Process([]string{MemUsageAbsoluteAverage}, []sample.Value{batch(t,
		`{"sampleInfo": {"timeStamp": "2024-05-01T10:00:00Z"}, "serverUtil": {"memory": {"assignedMemToLpars": [1], "configurableMem": [0.0]}}}`)})
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Empty(t, series[0].Values)
}

func TestDispatchMiss(t *testing.T) {
	p := NewProcessor(nil, nil)
	names := []string{"unknown_metric", CPUUsageRateAverage, CPUUsageRateAverage}
	series, err := p.Process(names, []sample.Value{batch(t,
		fullSample("2024-05-01T10:00:00Z"),
		fullSample("2024-05-01T10:00:30Z"),
	)})
	require.NoError(t, err)
	require.Len(t, series, 2)
	for _, pt := range series {
		_, ok := pt.Values["unknown_metric"]
		assert.False(t, ok)
		assert.Len(t, pt.Values, 1)
		assert.InDelta(t, 50.0, pt.Values[CPUUsageRateAverage], 1e-9)
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	p := NewProcessor(nil, nil)
	in := []sample.Value{batch(t, fullSample("2024-05-01T10:00:30Z"), fullSample("2024-05-01T10:00:00Z"))}
	first, err := p.Process(DefaultNames(), in)
	require.NoError(t, err)
	second, err := p.Process(DefaultNames(), in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestProcessOrdersByTimestamp(t *testing.T) {
	p := NewProcessor(nil, nil)
	series, err := p.Process(DefaultNames(), []sample.Value{batch(t,
		fullSample("2024-05-01T10:01:00Z"),
		fullSample("2024-05-01T12:00:30+0200"),
		fullSample("2024-05-01T10:00:00.000Z"),
	)})
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, []time.Time{
		time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 10, 0, 30, 0, time.UTC),
		time.Date(2024, 5, 1, 10, 1, 0, 0, time.UTC),
	}, series.Timestamps())

	vals, ok := series.At(time.Date(2024, 5, 1, 10, 0, 30, 0, time.UTC))
	require.True(t, ok)
	assert.Contains(t, vals, CPUUsageRateAverage)
	_, ok = series.At(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	assert.False(t, ok)

	last, ok := series.Latest()
	require.True(t, ok)
	assert.True(t, last.Timestamp.Equal(time.Date(2024, 5, 1, 10, 1, 0, 0, time.UTC)))
}

func TestProcessOnlyFirstBatch(t *testing.T) {
	p := NewProcessor(nil, nil)
	series, err := p.Process(DefaultNames(), []sample.Value{
		batch(t, fullSample("2024-05-01T10:00:00Z")),
		batch(t, fullSample("2024-05-01T11:00:00Z"), fullSample("bogus")),
	})
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.True(t, series[0].Timestamp.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
}

func TestProcessEmptyInputs(t *testing.T) {
	p := NewProcessor(nil, nil)

	series, err := p.Process(DefaultNames(), nil)
	require.NoError(t, err)
	assert.Empty(t, series)

	series, err = p.Process(DefaultNames(), []sample.Value{sample.MustParse(`{}`)})
	require.NoError(t, err)
	assert.Empty(t, series)

	series, err = p.Process(nil, []sample.Value{batch(t, fullSample("2024-05-01T10:00:00Z"))})
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Empty(t, series[0].Values)
}

func TestProcessParseErrors(t *testing.T) {
	p := NewProcessor(nil, nil)

	_, err := p.Process(DefaultNames(), []sample.Value{batch(t, fullSample("2024-05-01T10:00:00Z"), fullSample("yesterday"))})
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 1, perr.Index)
	assert.Equal(t, "yesterday", perr.Raw)
	assert.Contains(t, err.Error(), `"yesterday"`)

	_, err = p.Process(DefaultNames(), []sample.Value{batch(t, `{"sampleInfo": {}}`)})
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "", perr.Raw)
	assert.Contains(t, err.Error(), "missing sampleInfo.timeStamp")
}

func TestParseTimestampLayouts(t *testing.T) {
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, raw := range []string{
		"2024-05-01T10:00:00Z",
		"2024-05-01T10:00:00.000Z",
		"2024-05-01T12:00:00+02:00",
		"2024-05-01T12:00:00+0200",
		"2024-05-01T10:00:00",
	} {
		ts, err := ParseTimestamp(raw)
		require.NoError(t, err, raw)
		assert.True(t, ts.Equal(want), raw)
		assert.Equal(t, time.UTC, ts.Location(), raw)
	}
	_, err := ParseTimestamp("2024-13-01")
	assert.Error(t, err)
}

func TestDuplicateTimestampKeepsLatestSample(t *testing.T) {
	p := NewProcessor(nil, nil)
	series, err := p.Process([]string{CPUUsageRateAverage}, []sample.Value{batch(t,
		`{"sampleInfo": {"timeStamp": "2024-05-01T10:00:00Z"}, "serverUtil": {"processor": {"utilizedProcUnits": [1], "configurableProcUnits": [4]}}}`,
		`{"sampleInfo": {"timeStamp": "2024-05-01T10:00:00Z"}, "serverUtil": {"processor": {"utilizedProcUnits": [3], "configurableProcUnits": [4]}}}`,
	)})
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.InDelta(t, 75.0, series[0].Values[CPUUsageRateAverage], 1e-9)
}
