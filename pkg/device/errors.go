// Package device is the Device-Command Factory (DCF): it manufactures
// IOCBI commands for a TLE9012-like cell-supervisory target, grounded
// on the reference CANopen stack's configurator-over-object-dictionary
// split (pkg/pdo/configurator.go validating against od_variable.go's
// enumerated DataType) generalized to bit-width-constrained integer
// arguments instead of fixed CANopen datatypes.
package device

import "errors"

// ErrDeviceMismatch is returned by a default response callback when
// the responding device's echoed dev_num doesn't match the factory's
// configured one; a DCF-specific condition the generic docan/errs
// taxonomy has no slot for.
var ErrDeviceMismatch = errors.New("device: response dev_num mismatch")

// ErrResponseLength is returned when a command's ctlStatusRecord
// length doesn't match the expectation configured for that command.
var ErrResponseLength = errors.New("device: unexpected response length")
