package device

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/bmsdiag/udshost/pkg/docan/errs"
	"github.com/bmsdiag/udshost/pkg/uds"
)

// MaxDevices bounds dev_num per §4.4.
const MaxDevices = 15

// Cmd enumerates the IOCBI commands this factory manufactures. The
// numeric value is the id2 byte of the wire request (§4.4's "id2 is
// the command's ordinal from the Cmd enum").
type Cmd byte

const (
	CmdSetMaxVoltDropThd    Cmd = 0
	CmdSetBalancingState    Cmd = 1
	CmdSetOvertempThreshold Cmd = 2
	CmdSetUndervoltThd      Cmd = 3
	CmdSetCellBalanceTime   Cmd = 4
	CmdSetWatchdogMode      Cmd = 5
	CmdResetFaultLatch      Cmd = 6
)

// id1Default is the constant id1 used by every command in this
// factory; §4.4 notes a sibling module uses 0x03 for simulator-flow
// variants, which this factory does not implement.
const id1Default byte = 0x00

// expectedStatusLen is the per-command ctlStatusRecord length the
// default callback validates against.
var expectedStatusLen = map[Cmd]int{
	CmdSetMaxVoltDropThd:    2,
	CmdSetBalancingState:    2,
	CmdSetOvertempThreshold: 3,
	CmdSetUndervoltThd:      3,
	CmdSetCellBalanceTime:   3,
	CmdSetWatchdogMode:      2,
	CmdResetFaultLatch:      4,
}

// Factory manufactures IOCBI commands addressed to one TLE9012-like
// device. Per §4.4/§9, the builders themselves are stateless; a
// cache is kept only because this factory mutates option records
// and rebinds callbacks on an existing command object rather than
// constructing a fresh one on every call.
type Factory struct {
	devNum uint8

	mu       sync.Mutex
	commands map[Cmd]*uds.IOCBICommand
}

// NewFactory constructs a Factory for a device numbered devNum
// (0..=MaxDevices).
func NewFactory(devNum uint8) (*Factory, error) {
	if devNum > MaxDevices {
		return nil, fmt.Errorf("%w: dev_num %d exceeds MaxDevices %d", errs.ErrInvalidArgument, devNum, MaxDevices)
	}
	return &Factory{devNum: devNum, commands: make(map[Cmd]*uds.IOCBICommand)}, nil
}

// buildOrUpdate returns the cached command for cmd, creating it on
// first use and otherwise overwriting its option record and callback
// in place.
func (f *Factory) buildOrUpdate(cmd Cmd, id1 byte, option []byte, ioCtl uds.IOControlParameter, callback func(*uds.IOCBICommand)) *uds.IOCBICommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.commands[cmd]
	if !ok {
		c = uds.NewIOCBI(id1, byte(cmd), ioCtl, option, callback)
		f.commands[cmd] = c
		return c
	}
	c.OptionRecord = option
	c.Callback = callback
	return c
}

// defaultCallback wraps user in the shared DCF response checks of
// §4.4: the responding dev_num must match, and ctlStatusRecord must
// be the expected length for cmd. Violations are logged, not
// propagated, matching the Command Object's "callback never
// propagates" contract; user only runs once both checks pass.
func (f *Factory) defaultCallback(cmd Cmd, user func(*uds.IOCBICommand)) func(*uds.IOCBICommand) {
	return func(c *uds.IOCBICommand) {
		rec := c.CtlStatusRecord()
		if len(rec) == 0 {
			log.Errorf("[DCF] cmd %d: empty ctlStatusRecord", cmd)
			return
		}
		if rec[0] != f.devNum {
			log.Errorf("[DCF] cmd %d: %v (got %d want %d)", cmd, ErrDeviceMismatch, rec[0], f.devNum)
			return
		}
		if want, ok := expectedStatusLen[cmd]; ok && len(rec) != want {
			log.Errorf("[DCF] cmd %d: %v (got %d want %d)", cmd, ErrResponseLength, len(rec), want)
			return
		}
		log.Debugf("[DCF] cmd %d: dev_num=%d args=% x", cmd, f.devNum, rec[1:])
		if user != nil {
			user(c)
		}
	}
}

// SetMaxVoltDropThd builds the command for a 6-bit max-volt-drop
// threshold argument.
func (f *Factory) SetMaxVoltDropThd(thd uint8, callback func(*uds.IOCBICommand)) (*uds.IOCBICommand, error) {
	if err := validateBitWidth(int(thd), 6); err != nil {
		return nil, err
	}
	option := []byte{f.devNum, thd}
	return f.buildOrUpdate(CmdSetMaxVoltDropThd, id1Default, option, uds.ShortTermAdjustment, f.defaultCallback(CmdSetMaxVoltDropThd, callback)), nil
}

// SetBalancingState builds the command for a boolean balancing-enable
// argument.
func (f *Factory) SetBalancingState(enable int, callback func(*uds.IOCBICommand)) (*uds.IOCBICommand, error) {
	b, err := validateBool(enable)
	if err != nil {
		return nil, err
	}
	arg := byte(0)
	if b {
		arg = 1
	}
	option := []byte{f.devNum, arg}
	return f.buildOrUpdate(CmdSetBalancingState, id1Default, option, uds.ShortTermAdjustment, f.defaultCallback(CmdSetBalancingState, callback)), nil
}

// SetOvertempThreshold builds the command for an 8-bit overtemperature
// threshold argument.
func (f *Factory) SetOvertempThreshold(thd uint8, callback func(*uds.IOCBICommand)) (*uds.IOCBICommand, error) {
	if err := validateBitWidth(int(thd), 8); err != nil {
		return nil, err
	}
	option := []byte{f.devNum, thd, 0x00}
	return f.buildOrUpdate(CmdSetOvertempThreshold, id1Default, option, uds.ShortTermAdjustment, f.defaultCallback(CmdSetOvertempThreshold, callback)), nil
}

// SetUndervoltThd builds the command for a 10-bit undervoltage
// threshold argument, split little-endian across two option bytes.
func (f *Factory) SetUndervoltThd(thd uint16, callback func(*uds.IOCBICommand)) (*uds.IOCBICommand, error) {
	if err := validateBitWidth(int(thd), 10); err != nil {
		return nil, err
	}
	option := []byte{f.devNum, byte(thd), byte(thd >> 8)}
	return f.buildOrUpdate(CmdSetUndervoltThd, id1Default, option, uds.ShortTermAdjustment, f.defaultCallback(CmdSetUndervoltThd, callback)), nil
}

// SetCellBalanceTime builds the command for a 7-bit balance-duration
// argument.
func (f *Factory) SetCellBalanceTime(minutes uint8, callback func(*uds.IOCBICommand)) (*uds.IOCBICommand, error) {
	if err := validateBitWidth(int(minutes), 7); err != nil {
		return nil, err
	}
	option := []byte{f.devNum, minutes, 0x00}
	return f.buildOrUpdate(CmdSetCellBalanceTime, id1Default, option, uds.ShortTermAdjustment, f.defaultCallback(CmdSetCellBalanceTime, callback)), nil
}

// SetWatchdogMode builds the command for the enumerated watchdog-mode
// argument.
func (f *Factory) SetWatchdogMode(mode WatchdogMode, callback func(*uds.IOCBICommand)) (*uds.IOCBICommand, error) {
	if err := validateWatchdogMode(mode); err != nil {
		return nil, err
	}
	option := []byte{f.devNum, byte(mode)}
	return f.buildOrUpdate(CmdSetWatchdogMode, id1Default, option, uds.ShortTermAdjustment, f.defaultCallback(CmdSetWatchdogMode, callback)), nil
}

// ResetFaultLatch builds the command for a 3-bit fault-bank-select
// argument.
func (f *Factory) ResetFaultLatch(bank uint8, callback func(*uds.IOCBICommand)) (*uds.IOCBICommand, error) {
	if err := validateBitWidth(int(bank), 3); err != nil {
		return nil, err
	}
	option := []byte{f.devNum, bank, 0x00, 0x00}
	return f.buildOrUpdate(CmdResetFaultLatch, id1Default, option, uds.ResetToDefault, f.defaultCallback(CmdResetFaultLatch, callback)), nil
}
