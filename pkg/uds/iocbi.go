package uds

import (
	"fmt"

	"github.com/bmsdiag/udshost/pkg/docan/errs"
)

// IOControlParameter is the UDS InputOutputControlParameter sub-value,
// the 4th byte of an IOCBI request.
type IOControlParameter byte

const (
	ReturnControlToECU  IOControlParameter = 0
	ResetToDefault      IOControlParameter = 1
	FreezeCurrentState  IOControlParameter = 2
	ShortTermAdjustment IOControlParameter = 3
)

func (p IOControlParameter) String() string {
	switch p {
	case ReturnControlToECU:
		return "returnControlToECU"
	case ResetToDefault:
		return "resetToDefault"
	case FreezeCurrentState:
		return "freezeCurrentState"
	case ShortTermAdjustment:
		return "shortTermAdjustment"
	default:
		return fmt.Sprintf("unknown(%d)", byte(p))
	}
}

const iocbiSID byte = 0x2F
const iocbiPositiveSID byte = 0x6F
const iocbiRxOverhead = 4

// IOCBICommand is the InputOutputControlByIdentifier command variant
// (§3's IOCBI Descriptor / §4.3).
type IOCBICommand struct {
	baseCommand

	ID1, ID2 byte
	IOCtl    IOControlParameter

	OptionRecord    []byte
	ctlStatusRecord []byte

	Callback func(*IOCBICommand)
}

// NewIOCBI constructs a ready-to-Prepare IOCBI command. option may be
// nil for control types that carry no option bytes.
func NewIOCBI(id1, id2 byte, ioCtl IOControlParameter, option []byte, callback func(*IOCBICommand)) *IOCBICommand {
	return &IOCBICommand{
		baseCommand:  baseCommand{sid: iocbiSID},
		ID1:          id1,
		ID2:          id2,
		IOCtl:        ioCtl,
		OptionRecord: option,
		Callback:     callback,
	}
}

// CtlStatusRecord returns the inbound status record assigned by a
// successful Dispatch.
func (c *IOCBICommand) CtlStatusRecord() []byte { return c.ctlStatusRecord }

// Prepare writes [SID, id1, id2, ioCtl, option...] and clears the
// previous ctlStatusRecord, per §3's Command Object lifecycle.
func (c *IOCBICommand) Prepare() []byte {
	c.reset()
	c.ctlStatusRecord = nil
	tx := make([]byte, 0, 4+len(c.OptionRecord))
	tx = append(tx, iocbiSID, c.ID1, c.ID2, byte(c.IOCtl))
	tx = append(tx, c.OptionRecord...)
	c.txData = tx
	return tx
}

// Dispatch validates rx against the echoed header and, on success,
// assigns ctlStatusRecord and invokes Callback exactly once.
func (c *IOCBICommand) Dispatch(rx []byte) error {
	c.rxData = rx
	if err := checkNegativeResponse(rx); err != nil {
		return err
	}
	if len(rx) < iocbiRxOverhead || rx[0] != iocbiPositiveSID || rx[1] != c.ID1 || rx[2] != c.ID2 || rx[3] != byte(c.IOCtl) {
		return fmt.Errorf("%w: IOCBI response header mismatch: % x", errs.ErrValidation, rx)
	}
	c.ctlStatusRecord = rx[iocbiRxOverhead:]
	return invokeCallback(func() {
		if c.Callback != nil {
			c.Callback(c)
		}
	})
}
