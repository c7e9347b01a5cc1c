package irigb

import "math"

// Nominal pulse widths in milliseconds.
const (
	WidthBit0Ms      = 2
	WidthBit1Ms      = 5
	WidthReferenceMs = 8
)

// SpikeThresholdMs is the low-level gap below which a falling/rising pair is treated as a glitch.
const SpikeThresholdMs = 0.1

// WidthMs converts a sample interval to whole milliseconds, rounding half away from zero.
func WidthMs(rising, falling int64, rateHz float64) int {
	return int(math.Round(intervalMs(rising, falling, rateHz)))
}

func intervalMs(from, to int64, rateHz float64) float64 {
	return float64(to-from) / rateHz * 1000
}

// Classify maps a rounded width to its pulse class. Every width has exactly one class.
func Classify(widthMs int) PulseClass {
	switch widthMs {
	case WidthBit0Ms:
		return ClassBit0
	case WidthBit1Ms:
		return ClassBit1
	case WidthReferenceMs:
		return ClassReference
	default:
		return ClassUnknown
	}
}

// NewPulse builds a classified pulse from its edge indices.
func NewPulse(rising, falling int64, rateHz float64) Pulse {
	w := WidthMs(rising, falling, rateHz)
	return Pulse{
		Rising:  rising,
		Falling: falling,
		WidthMs: w,
		Class:   Classify(w),
	}
}

// IsSpike reports whether the low gap between a falling edge and the next rising edge
// is short enough to be noise.
func IsSpike(falling, nextRising int64, rateHz float64) bool {
	return intervalMs(falling, nextRising, rateHz) < SpikeThresholdMs
}
