package counter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"power-hmc-agent/internal/sample"
)

func TestDefaultRegistryNames(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{
		CPUUsageRateAverage,
		DiskUsageRateAverage,
		MemUsageAbsoluteAverage,
		NetUsageRateAverage,
	}, r.Names())
	assert.ElementsMatch(t, DefaultNames(), r.Names())
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	fn := func(sample.Value) (float64, bool) { return 1, true }

	require.NoError(t, r.Register("x", fn))
	assert.Error(t, r.Register("x", fn))
	assert.Error(t, r.Register("", fn))
	assert.Error(t, r.Register("y", nil))
	assert.Panics(t, func() { r.MustRegister("x", fn) })

	got, ok := r.Lookup("x")
	require.True(t, ok)
	v, ok := got(sample.Value{})
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	_, ok = r.Lookup("nope")
	assert.False(t, ok)
}

func TestCustomCounterDispatch(t *testing.T) {
	r := DefaultRegistry()
	r.MustRegister("vios_count", func(s sample.Value) (float64, bool) {
		return float64(len(sample.Vios(s))), true
	})
	p := NewProcessor(r, nil)

	series, err := p.Process([]string{"vios_count"}, []sample.Value{batch(t, fullSample("2024-05-01T10:00:00Z"))})
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, map[string]float64{"vios_count": 2}, series[0].Values)
	assert.Same(t, r, p.Registry())
}
