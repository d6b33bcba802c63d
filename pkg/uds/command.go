// Package uds implements the UDS (ISO 14229-1) command layer (CMDL):
// a polymorphic command abstraction dispatched through a docan.Transport,
// grounded on the reference CANopen stack's od.Extension{Read,Write}
// composition pattern rather than Python-style decorators, per the
// transformation notes that accompanied this spec.
package uds

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/bmsdiag/udshost/pkg/docan/errs"
)

// Command is the capability set shared by every UDS service variant:
// prepare the outbound payload, and validate-and-dispatch an inbound
// one. Prepare/Dispatch are the only variant-specific behavior. A
// command carries no timeout of its own: it is passed to the executor
// call (ExecuteWait/Execute) or stored beside the command in the
// Transport's Command Dictionary.
type Command interface {
	SID() byte
	Prepare() []byte
	Dispatch(rx []byte) error
}

// baseCommand holds the fields invariant across every command variant
// (§3's Command Object). Variants embed it rather than wrap it, so
// the shared negative-response check lives in one place without a
// decorator layer.
type baseCommand struct {
	sid    byte
	txData []byte
	rxData []byte
}

func (b *baseCommand) SID() byte { return b.sid }

func (b *baseCommand) reset() {
	b.txData = nil
	b.rxData = nil
}

// checkNegativeResponse implements the shared negative-response logic
// of §4.3: a 0x7F first byte fails validation regardless of variant,
// and the NRC is logged by name when present.
func checkNegativeResponse(rx []byte) error {
	if len(rx) == 0 || rx[0] != 0x7F {
		return nil
	}
	var requestedSID, nrc byte
	if len(rx) > 1 {
		requestedSID = rx[1]
	}
	if len(rx) > 2 {
		nrc = rx[2]
		log.Warnf("[CMDL] negative response for SID 0x%02x: %s", requestedSID, errs.NRCName(nrc))
	} else {
		log.Warnf("[CMDL] negative response for SID 0x%02x: truncated, no NRC byte", requestedSID)
	}
	return &errs.NegativeResponseError{RequestedSID: requestedSID, NRC: nrc}
}

// invokeCallback runs fn, recovering a panic into a CallbackError per
// §7: exceptions inside the callback are captured and logged, never
// propagated into the transport.
func invokeCallback(fn func()) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[CMDL] callback panicked: %v", r)
			err = fmt.Errorf("%w: %v", errs.ErrCallback, r)
		}
	}()
	fn()
	return nil
}
