package device

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bmsdiag/udshost/pkg/docan/errs"
	"github.com/bmsdiag/udshost/pkg/uds"
)

func TestSetMaxVoltDropThdValidation(t *testing.T) {
	f, err := NewFactory(3)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	if _, err := f.SetMaxVoltDropThd(0x40, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument for 6-bit overflow, got %v", err)
	}
	cmd, err := f.SetMaxVoltDropThd(0x3F, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tx := cmd.Prepare()
	if !bytes.Equal(tx, []byte{0x2F, 0x00, byte(CmdSetMaxVoltDropThd), byte(uds.ShortTermAdjustment), 3, 0x3F}) {
		t.Fatalf("got % x", tx)
	}
}

func TestFactoryReusesCommandObject(t *testing.T) {
	f, _ := NewFactory(1)
	first, _ := f.SetBalancingState(1, nil)
	second, _ := f.SetBalancingState(0, nil)
	if first != second {
		t.Fatal("expected the same cached command object across calls")
	}
	if first.OptionRecord[1] != 0 {
		t.Fatalf("expected option record overwritten in place, got %v", first.OptionRecord)
	}
}

func TestDefaultCallbackDeviceMismatch(t *testing.T) {
	f, _ := NewFactory(5)
	var called bool
	cmd, err := f.SetOvertempThreshold(100, func(*uds.IOCBICommand) { called = true })
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	cmd.Prepare()
	if err := cmd.Dispatch([]byte{0x6F, 0x00, byte(CmdSetOvertempThreshold), byte(uds.ShortTermAdjustment), 0x09, 100, 0}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if called {
		t.Fatal("callback must not run when dev_num mismatches")
	}
}

func TestDefaultCallbackSuccess(t *testing.T) {
	f, _ := NewFactory(5)
	var called bool
	cmd, _ := f.SetOvertempThreshold(100, func(*uds.IOCBICommand) { called = true })
	cmd.Prepare()
	if err := cmd.Dispatch([]byte{0x6F, 0x00, byte(CmdSetOvertempThreshold), byte(uds.ShortTermAdjustment), 5, 100, 0}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !called {
		t.Fatal("callback should run on matching dev_num and length")
	}
}

func TestWatchdogModeEnumValidation(t *testing.T) {
	f, _ := NewFactory(0)
	if _, err := f.SetWatchdogMode(WatchdogMode(9), nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if _, err := f.SetWatchdogMode(WatchdogWindow, nil); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}

func TestResetFaultLatchBitWidth(t *testing.T) {
	f, _ := NewFactory(0)
	if _, err := f.ResetFaultLatch(8, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument for 3-bit overflow, got %v", err)
	}
	if _, err := f.ResetFaultLatch(7, nil); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}
