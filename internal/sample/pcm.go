package sample

// Key names of the PCM ProcessedMetrics JSON document.
const (
	KeySystemUtil  = "systemUtil"
	KeyUtilInfo    = "utilInfo"
	KeyUtilSamples = "utilSamples"
	KeySampleInfo  = "sampleInfo"
	KeyTimeStamp   = "timeStamp"
	KeyServerUtil  = "serverUtil"
	KeyViosUtil    = "viosUtil"
	KeyProcessor   = "processor"
	KeyMemory      = "memory"
	KeyNetwork     = "network"
	KeyStorage     = "storage"
)

// UtilSamples returns the per-timestamp samples of one batch document.
func UtilSamples(batch Value) []Value {
	return batch.Path(KeySystemUtil, KeyUtilSamples).Items()
}

// RawTimestamp returns sampleInfo.timeStamp as sent by the HMC.
func RawTimestamp(s Value) (string, bool) {
	return s.Path(KeySampleInfo, KeyTimeStamp).Text()
}

// Vios returns the VIOS entries of a sample; nil when viosUtil is absent.
func Vios(s Value) []Value {
	return s.Get(KeyViosUtil).Items()
}
