//go:build !linux

package gpio

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sweeney/irigb-decoder/internal/capture"
)

// Capture is not available on non-Linux platforms.
func Capture(ctx context.Context, chip string, pin int, d time.Duration, log *logrus.Entry) (*capture.Capture, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}
