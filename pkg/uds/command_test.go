package uds

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bmsdiag/udshost/pkg/docan/errs"
)

func TestIOCBIPrepare(t *testing.T) {
	cmd := NewIOCBI(0xE1, 0x00, ShortTermAdjustment, nil, nil)
	tx := cmd.Prepare()
	if !bytes.Equal(tx, []byte{0x2F, 0xE1, 0x00, 0x03}) {
		t.Fatalf("got % x", tx)
	}
}

func TestIOCBISingleFrameRoundtrip(t *testing.T) {
	var called *IOCBICommand
	cmd := NewIOCBI(0xE1, 0x00, ShortTermAdjustment, nil, func(c *IOCBICommand) { called = c })
	cmd.Prepare()
	err := cmd.Dispatch([]byte{0x6F, 0xE1, 0x00, 0x03, 0x00, 0x01, 0x02})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !bytes.Equal(cmd.CtlStatusRecord(), []byte{0x00, 0x01, 0x02}) {
		t.Fatalf("got %x", cmd.CtlStatusRecord())
	}
	if called != cmd {
		t.Fatal("callback not invoked")
	}
}

func TestIOCBISegmentedResponse(t *testing.T) {
	cmd := NewIOCBI(0xE1, 0x01, ShortTermAdjustment, nil, nil)
	cmd.Prepare()
	rx := append([]byte{0x6F, 0xE1, 0x01, 0x03}, []byte{0, 1, 2, 3, 4, 5, 6, 7}...)
	if err := cmd.Dispatch(rx); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	want := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	if !bytes.Equal(cmd.CtlStatusRecord(), want) {
		t.Fatalf("got %x want %x", cmd.CtlStatusRecord(), want)
	}
}

func TestIOCBINegativeResponse(t *testing.T) {
	var called bool
	cmd := NewIOCBI(0xE1, 0x00, ShortTermAdjustment, nil, func(*IOCBICommand) { called = true })
	cmd.Prepare()
	err := cmd.Dispatch([]byte{0x7F, 0x2F, 0x31})
	var nre *errs.NegativeResponseError
	if !errors.As(err, &nre) {
		t.Fatalf("expected NegativeResponseError, got %v", err)
	}
	if nre.NRC != 0x31 {
		t.Fatalf("got NRC 0x%02x", nre.NRC)
	}
	if called {
		t.Fatal("callback must not run on negative response")
	}
}

func TestIOCBIHeaderMismatch(t *testing.T) {
	cmd := NewIOCBI(0xE1, 0x00, ShortTermAdjustment, nil, nil)
	cmd.Prepare()
	err := cmd.Dispatch([]byte{0x6F, 0xE1, 0x00, 0x02})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIOCBISegmentedTxShape(t *testing.T) {
	option := make([]byte, 20)
	for i := range option {
		option[i] = byte(i)
	}
	cmd := NewIOCBI(0xE1, 0x00, ShortTermAdjustment, option, nil)
	tx := cmd.Prepare()
	if len(tx) != 24 {
		t.Fatalf("got length %d", len(tx))
	}
	if !bytes.Equal(tx[:4], []byte{0x2F, 0xE1, 0x00, 0x03}) {
		t.Fatalf("header mismatch: % x", tx[:4])
	}
}

func TestRoutineControlRoundtrip(t *testing.T) {
	var called *RoutineControlCommand
	cmd := NewRoutineControl(RoutineStart, 0x01, 0x02, nil, func(c *RoutineControlCommand) { called = c })
	tx := cmd.Prepare()
	if !bytes.Equal(tx, []byte{0x31, 0x01, 0x01, 0x02}) {
		t.Fatalf("got % x", tx)
	}
	err := cmd.Dispatch([]byte{0x71, 0x01, 0x01, 0x02, 0x05})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if cmd.RoutineInfo() != 0x05 {
		t.Fatalf("got routineInfo 0x%02x", cmd.RoutineInfo())
	}
	if called != cmd {
		t.Fatal("callback not invoked")
	}
}

func TestRoutineControlNegativeResponseNoCallback(t *testing.T) {
	var called bool
	cmd := NewRoutineControl(RoutineStart, 0x01, 0x02, nil, func(*RoutineControlCommand) { called = true })
	cmd.Prepare()
	err := cmd.Dispatch([]byte{0x7F, 0x31, 0x22})
	var nre *errs.NegativeResponseError
	if !errors.As(err, &nre) || nre.NRC != 0x22 {
		t.Fatalf("expected conditionsNotCorrect NRC, got %v", err)
	}
	if called {
		t.Fatal("callback must not run")
	}
}
