package uds

import (
	"fmt"

	"github.com/bmsdiag/udshost/pkg/docan/errs"
)

// RoutineSubfunction is the RoutineControl subfunction byte.
type RoutineSubfunction byte

const (
	RoutineStart          RoutineSubfunction = 1
	RoutineStop           RoutineSubfunction = 2
	RoutineRequestResults RoutineSubfunction = 3
)

func (s RoutineSubfunction) String() string {
	switch s {
	case RoutineStart:
		return "start"
	case RoutineStop:
		return "stop"
	case RoutineRequestResults:
		return "requestResults"
	default:
		return fmt.Sprintf("unknown(%d)", byte(s))
	}
}

const routineControlSID byte = 0x31
const routineControlPositiveSID byte = 0x71
const routineControlRxOverhead = 5

// RoutineControlCommand is the RoutineControl command variant (§3's
// RoutineControl Descriptor / §4.3).
type RoutineControlCommand struct {
	baseCommand

	Subfunction  RoutineSubfunction
	RID1, RID2   byte
	StatusRecord []byte

	routineInfo byte
	trailing    []byte

	Callback func(*RoutineControlCommand)
}

// NewRoutineControl constructs a ready-to-Prepare RoutineControl
// command.
func NewRoutineControl(sub RoutineSubfunction, rid1, rid2 byte, status []byte, callback func(*RoutineControlCommand)) *RoutineControlCommand {
	return &RoutineControlCommand{
		baseCommand:  baseCommand{sid: routineControlSID},
		Subfunction:  sub,
		RID1:         rid1,
		RID2:         rid2,
		StatusRecord: status,
		Callback:     callback,
	}
}

// RoutineInfo returns the routineInfo byte assigned by a successful
// Dispatch.
func (c *RoutineControlCommand) RoutineInfo() byte { return c.routineInfo }

// Trailing returns any bytes beyond routineInfo assigned by a
// successful Dispatch.
func (c *RoutineControlCommand) Trailing() []byte { return c.trailing }

// Prepare writes [SID, subfunction, rid1, rid2, status...].
func (c *RoutineControlCommand) Prepare() []byte {
	c.reset()
	c.routineInfo = 0
	c.trailing = nil
	tx := make([]byte, 0, 4+len(c.StatusRecord))
	tx = append(tx, routineControlSID, byte(c.Subfunction), c.RID1, c.RID2)
	tx = append(tx, c.StatusRecord...)
	c.txData = tx
	return tx
}

// Dispatch validates rx against the echoed header and, on success,
// assigns routineInfo/trailing and invokes Callback exactly once.
func (c *RoutineControlCommand) Dispatch(rx []byte) error {
	c.rxData = rx
	if err := checkNegativeResponse(rx); err != nil {
		return err
	}
	if len(rx) < routineControlRxOverhead || rx[0] != routineControlPositiveSID || rx[1] != byte(c.Subfunction) || rx[2] != c.RID1 || rx[3] != c.RID2 {
		return fmt.Errorf("%w: RoutineControl response header mismatch: % x", errs.ErrValidation, rx)
	}
	c.routineInfo = rx[4]
	c.trailing = rx[routineControlRxOverhead:]
	return invokeCallback(func() {
		if c.Callback != nil {
			c.Callback(c)
		}
	})
}
