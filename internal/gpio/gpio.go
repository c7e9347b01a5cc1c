// Package gpio records IRIG-B edge streams from a GPIO line.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Line defaults for a Raspberry Pi (BCM numbering).
const (
	DefaultChip = "gpiochip0"
	DefaultPin  = 17
)

// CaptureRate is the sampling rate of recorded captures: edge timestamps are in nanoseconds.
const CaptureRate = 1e9
