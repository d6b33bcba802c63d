package device

import (
	"fmt"

	"github.com/bmsdiag/udshost/pkg/docan/errs"
)

// validateBitWidth enforces the uniform bit-width-constrained integer
// argument rule of §4.4: value must be non-negative and < 2^width.
func validateBitWidth(value int, width uint) error {
	if value < 0 || value >= 1<<width {
		return fmt.Errorf("%w: value %d does not fit in %d bits", errs.ErrInvalidArgument, value, width)
	}
	return nil
}

// validateBool accepts true/false or the integers 0/1, per §4.4.
func validateBool(value int) (bool, error) {
	switch value {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: boolean argument must be 0 or 1, got %d", errs.ErrInvalidArgument, value)
	}
}

// WatchdogMode is an enumerated argument recognized by
// SetWatchdogMode; an unrecognized variant is InvalidArgument per
// §4.4's enumerated-argument rule.
type WatchdogMode byte

const (
	WatchdogDisabled WatchdogMode = iota
	WatchdogWindow
	WatchdogTimeout
)

func validateWatchdogMode(m WatchdogMode) error {
	switch m {
	case WatchdogDisabled, WatchdogWindow, WatchdogTimeout:
		return nil
	default:
		return fmt.Errorf("%w: unrecognized watchdog mode %d", errs.ErrInvalidArgument, m)
	}
}
