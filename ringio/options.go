package ringio

import "time"

// Defaults from the configuration table: the threshold compared against the
// write-latency EMA when routing a write, the cutoff below which a write is
// always buffered, and the buffered-byte total that triggers an eager
// flush.
const (
	DefaultThresholdNS       = 1_000_000
	DefaultSmallWriteCutoff  = 4 * 1024
	DefaultFlushTriggerBytes = 16 * 1024
)

// ContextOptions configures a single IoContext. Zero-value ThresholdNS,
// SmallWriteCutoff and FlushTriggerBytes are filled with the package
// defaults when the context is constructed.
type ContextOptions struct {
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	// ThresholdNS is compared directly against the write-latency EMA, which
	// is tracked in microseconds. The name is inherited as-is; see the
	// Open Questions section of the design notes.
	ThresholdNS       uint64
	SmallWriteCutoff  int
	FlushTriggerBytes uint64
}

// NewContextOptions builds ContextOptions with the spec's defaults for
// everything but the two timeouts, which callers must size to their target.
func NewContextOptions(writeTimeout, readTimeout time.Duration) ContextOptions {
	return ContextOptions{
		WriteTimeout:      writeTimeout,
		ReadTimeout:       readTimeout,
		ThresholdNS:       DefaultThresholdNS,
		SmallWriteCutoff:  DefaultSmallWriteCutoff,
		FlushTriggerBytes: DefaultFlushTriggerBytes,
	}
}

func (o *ContextOptions) applyDefaults() {
	if o.ThresholdNS == 0 {
		o.ThresholdNS = DefaultThresholdNS
	}
	if o.SmallWriteCutoff == 0 {
		o.SmallWriteCutoff = DefaultSmallWriteCutoff
	}
	if o.FlushTriggerBytes == 0 {
		o.FlushTriggerBytes = DefaultFlushTriggerBytes
	}
}
