// Package errs centralizes the sentinel error taxonomy of the DoCAN
// transport and command layer, the way the reference CANopen stack's
// root errors.go centralizes its own sentinels.
package errs

import "errors"

var (
	ErrHardwareNotFound = errors.New("docan: hardware not found")
	ErrChannelIO        = errors.New("docan: channel read/write failed")
	ErrQueueFull        = errors.New("docan: outbound command queue is full")
	ErrRxTimeout        = errors.New("docan: no response within command timeout")
	ErrProtocol         = errors.New("docan: protocol error in segmented frame reception")
	ErrTargetOverflow   = errors.New("docan: remote flow control reported overflow")
	ErrValidation       = errors.New("docan: response failed command validation")
	ErrInvalidArgument  = errors.New("docan: invalid argument")
	ErrCallback         = errors.New("docan: callback raised an error")
	ErrDisposed         = errors.New("docan: transport has been disposed")
)

// NegativeResponseError wraps a parsed UDS negative response
// (0x7F, requested SID, NRC) so callers can pull the raw NRC out of
// the taxonomy with errors.As.
type NegativeResponseError struct {
	RequestedSID byte
	NRC          byte
}

func (e *NegativeResponseError) Error() string {
	return "docan: negative response, SID 0x" + hexByte(e.RequestedSID) + " NRC " + NRCName(e.NRC)
}

// Is lets errors.Is(err, &NegativeResponseError{}) match any
// NegativeResponseError regardless of its fields.
func (e *NegativeResponseError) Is(target error) bool {
	_, ok := target.(*NegativeResponseError)
	return ok
}

func hexByte(b byte) string {
	const hexDigits = "0123456789abcdef"
	return string([]byte{hexDigits[b>>4], hexDigits[b&0x0F]})
}

// NRCName maps a Negative Response Code to its standard UDS name, per
// spec §3. Unknown codes render as their raw hex value.
func NRCName(nrc byte) string {
	if name, ok := nrcNames[nrc]; ok {
		return name
	}
	return "unknown(0x" + hexByte(nrc) + ")"
}

var nrcNames = map[byte]string{
	0x10: "generalReject",
	0x11: "serviceNotSupported",
	0x12: "subFunctionNotSupported",
	0x13: "invalidFormat",
	0x21: "busyRepeatRequest",
	0x22: "conditionsNotCorrect",
	0x31: "requestOutOfRange",
	0x78: "responsePending",
}
