package docan

import (
	"fmt"
	"time"

	"github.com/bmsdiag/udshost/pkg/docan/errs"
)

// flowControl is a parsed inbound FC frame.
type flowControl struct {
	flag      byte
	blockSize byte
	stmin     byte
}

func parseFC(data []byte) (flowControl, error) {
	if len(data) < 3 || pci(data) != pciFC {
		return flowControl{}, fmt.Errorf("%w: not a flow control frame", errs.ErrProtocol)
	}
	return flowControl{flag: data[0] & 0x0F, blockSize: data[1], stmin: data[2]}, nil
}

// FCWaiter is the sender-side single-slot Flow Control rendezvous
// described by SPEC_FULL §4.2.4: after writing an FF, the sender
// blocks here for the receiver's Continue-To-Send before emitting
// Consecutive Frames. One FCWaiter is owned per in-flight outbound
// segmented transfer on a destination.
//
// The BlockSize of a received FC is parsed but not acted on: after one
// Continue-To-Send the sender emits every remaining Consecutive Frame
// without waiting for a further FC. This host's own FC (state.go)
// always advertises BlockSize=0.
type FCWaiter struct {
	ch chan flowControl
}

func NewFCWaiter() *FCWaiter {
	return &FCWaiter{ch: make(chan flowControl, 1)}
}

// Deliver is called by the inbound frame dispatcher when an FC frame
// arrives for this destination. Non-blocking: the frame is held in the
// single slot until Await takes it; if the slot is already occupied
// the new frame is silently dropped, matching the inbound queue's
// drop-on-overflow policy.
func (w *FCWaiter) Deliver(data []byte) {
	fc, err := parseFC(data)
	if err != nil {
		return
	}
	select {
	case w.ch <- fc:
	default:
	}
}

// initialFCTimeout and rearmedFCTimeout are the two wait windows of
// SPEC_FULL §4.2.4: the first wait for Flow Control after FF, and the
// longer window re-armed each time the receiver answers WAIT.
const (
	initialFCTimeout = 100 * time.Millisecond
	rearmedFCTimeout = 1 * time.Second
)

// Await blocks until a Continue-To-Send FC arrives, a WAIT/OVF
// resolves, or the rendezvous times out. Overflow and timeout both
// abort the transfer.
func (w *FCWaiter) Await() error {
	timeout := initialFCTimeout
	for {
		select {
		case fc := <-w.ch:
			switch fc.flag {
			case fcContinueToSend:
				if fc.stmin == 0 {
					// STmin==0 on a Continue-To-Send means the
					// target will issue another FC before CFs may
					// be sent, not "no minimum delay" - keep
					// waiting instead of sending.
					timeout = rearmedFCTimeout
					continue
				}
				return nil
			case fcWait:
				timeout = rearmedFCTimeout
				continue
			case fcOverflow:
				return errs.ErrTargetOverflow
			default:
				return fmt.Errorf("%w: unrecognized flow control flag 0x%x", errs.ErrProtocol, fc.flag)
			}
		case <-time.After(timeout):
			return errs.ErrRxTimeout
		}
	}
}
