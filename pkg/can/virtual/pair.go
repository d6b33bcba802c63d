package virtual

import (
	"github.com/bmsdiag/udshost/pkg/can"
)

// pairEnd is one side of an in-process endpoint pair wired together
// without a TCP broker, for deterministic unit tests (e.g. a
// tester-side Channel talking to a fake-ECU Channel in the same
// process). Grounded on the channel-fan-out shape of notnil/canbus's
// LoopbackBus, adapted to the two-endpoint case and the
// variable-length can.Frame of this package.
type pairEnd struct {
	peer     *pairEnd
	listener can.FrameListener
}

func (e *pairEnd) Connect(...any) error    { return nil }
func (e *pairEnd) Disconnect() error       { return nil }
func (e *pairEnd) Subscribe(l can.FrameListener) error {
	e.listener = l
	return nil
}
func (e *pairEnd) Send(frame can.Frame) error {
	if e.peer != nil && e.peer.listener != nil {
		e.peer.listener.Handle(frame)
	}
	return nil
}

// NewPair returns two Bus endpoints; a frame sent on one is delivered
// to the other's subscriber synchronously.
func NewPair() (can.Bus, can.Bus) {
	a := &pairEnd{}
	b := &pairEnd{}
	a.peer = b
	b.peer = a
	return a, b
}
