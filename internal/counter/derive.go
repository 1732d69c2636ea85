package counter

import (
	"power-hmc-agent/internal/sample"
)

const (
	CPUUsageRateAverage     = "cpu_usage_rate_average"
	DiskUsageRateAverage    = "disk_usage_rate_average"
	MemUsageAbsoluteAverage = "mem_usage_absolute_average"
	NetUsageRateAverage     = "net_usage_rate_average"
)

// SampleDurationSeconds is the fixed PCM processed-sample interval.
const SampleDurationSeconds = 30.0

const kilobyte = 1024.0

// DefaultNames lists the built-in counters in a stable order.
func DefaultNames() []string {
	return []string{CPUUsageRateAverage, DiskUsageRateAverage, MemUsageAbsoluteAverage, NetUsageRateAverage}
}

// cpuUsageRateAverage is the percent of configurable processor units in use.
func cpuUsageRateAverage(s sample.Value) (float64, bool) {
	proc := s.Path(sample.KeyServerUtil, sample.KeyProcessor)
	if !proc.Exists() {
		return 0, false
	}
	return percentOf(proc.Get("utilizedProcUnits").Sum(), proc.Get("configurableProcUnits").Sum())
}

// Disk throughput is VIOS-only: a host without VIOS reports 0 KB/s.
func diskUsageRateAverage(s sample.Value) (float64, bool) {
	var bytes float64
	for _, vios := range sample.Vios(s) {
		storage := vios.Get(sample.KeyStorage)
		if !storage.Exists() {
			continue
		}
		bytes += sumAdapterGroups(storage, "transmittedBytes")
	}
	return bytesPerSampleToKBps(bytes), true
}

func memUsageAbsoluteAverage(s sample.Value) (float64, bool) {
	mem := s.Path(sample.KeyServerUtil, sample.KeyMemory)
	if !mem.Exists() {
		return 0, false
	}
	return percentOf(mem.Get("assignedMemToLpars").Sum(), mem.Get("configurableMem").Sum())
}

// Server-side network presence gates the whole counter; VIOS adapters only add to it.
func netUsageRateAverage(s sample.Value) (float64, bool) {
	server := s.Path(sample.KeyServerUtil, sample.KeyNetwork)
	if !server.Exists() {
		return 0, false
	}
	bytes := serverNetworkBytes(server)
	for _, vios := range sample.Vios(s) {
		network := vios.Get(sample.KeyNetwork)
		if !network.Exists() {
			continue
		}
		bytes += sumAdapterGroups(network, "transferredBytes")
	}
	return bytesPerSampleToKBps(bytes), true
}

// serverNetworkBytes sums group -> adapters -> physicalPorts -> transferredBytes.
func serverNetworkBytes(network sample.Value) float64 {
	var total float64
	for _, adapters := range network.Fields() {
		for _, adapter := range adapters.Records() {
			for _, port := range adapter.Get("physicalPorts").Records() {
				total += port.Get("transferredBytes").Sum()
			}
		}
	}
	return total
}

// sumAdapterGroups sums field over every record adapter of every adapter group.
// Non-record entries in an adapter list are skipped.
func sumAdapterGroups(groups sample.Value, field string) float64 {
	var total float64
	for _, adapters := range groups.Fields() {
		for _, adapter := range adapters.Records() {
			total += adapter.Get(field).Sum()
		}
	}
	return total
}

func percentOf(part, capacity float64) (float64, bool) {
	if capacity == 0 {
		return 0, false
	}
	return 100.0 * part / capacity, true
}

func bytesPerSampleToKBps(bytes float64) float64 {
	return bytes / SampleDurationSeconds / kilobyte
}
