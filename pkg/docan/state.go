package docan

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/bmsdiag/udshost/internal/fifo"
	"github.com/bmsdiag/udshost/pkg/docan/errs"
)

// RxState is the per-destination receive-side state of SPEC_FULL §3.
// It governs inbound segmented-payload reassembly only; the sender-
// side wait-for-FC rendezvous is a separate, simpler state kept by
// FCWaiter (flowcontrol.go), since only one logical DoCAN session per
// (SA,TA) pair is assumed active at a time (SPEC_FULL §5).
type RxState int

const (
	StateIdle RxState = iota
	StateFF
	StateCF
	StateDone
	StateOvf
)

func (s RxState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateFF:
		return "FF"
	case StateCF:
		return "CF"
	case StateDone:
		return "DONE"
	case StateOvf:
		return "OVF"
	default:
		return "UNKNOWN"
	}
}

// Receiver reassembles a segmented payload from SF/FF/CF frames for
// one destination, emitting Flow Control after FF per SPEC_FULL
// §4.2.3. Not safe for concurrent use; one Receiver is owned per
// inbound DoCAN session.
type Receiver struct {
	mode      Mode
	state     RxState
	cfIndex   int
	segLength int
	buf       *fifo.Fifo
	writeFC   func([]byte) error
	tag       string
}

// reassemblyCapacity sizes the reassembly fifo; it holds one byte less
// than its size, so payloads of up to 65535 bytes, including the
// extended-length (>4095) First Frame form, can be reassembled.
const reassemblyCapacity = 1 << 16

// NewReceiver constructs a Receiver. writeFC is called to transmit the
// Flow Control frame this host must send immediately after an FF.
func NewReceiver(mode Mode, tag string, writeFC func([]byte) error) *Receiver {
	return &Receiver{
		mode:    mode,
		state:   StateIdle,
		buf:     fifo.NewFifo(reassemblyCapacity),
		writeFC: writeFC,
		tag:     tag,
	}
}

func (r *Receiver) State() RxState { return r.state }

// reset returns the receiver to IDLE, the only legal initial and
// re-entry state after DONE/OVF.
func (r *Receiver) reset() {
	r.state = StateIdle
	r.cfIndex = 0
	r.segLength = 0
	r.buf.Reset()
}

// Feed processes one inbound frame payload. It returns done=true once
// the full payload has been reassembled, in which case Payload()
// returns the result.
func (r *Receiver) Feed(data []byte) (done bool, err error) {
	switch pci(data) {
	case pciSF:
		return r.feedSF(data)
	case pciFF:
		return r.feedFF(data)
	case pciCF:
		return r.feedCF(data)
	default:
		return false, fmt.Errorf("%w: unexpected PCI 0x%02x in state %v", errs.ErrProtocol, data[0]&0xF0, r.state)
	}
}

func (r *Receiver) feedSF(data []byte) (bool, error) {
	if r.state != StateIdle {
		log.Warnf("[DTP][%s] SF received outside IDLE, resetting", r.tag)
	}
	var length int
	var payload []byte
	if r.mode == ModeFD {
		length = int(data[1])
		if length < 1 || length > 62 {
			return false, fmt.Errorf("%w: FD SF length %d out of range", errs.ErrProtocol, length)
		}
		payload = data[2 : 2+length]
	} else {
		length = int(data[0] & 0x0F)
		if length < 1 || length > 7 {
			return false, fmt.Errorf("%w: classic SF length %d out of range", errs.ErrProtocol, length)
		}
		payload = data[1 : 1+length]
	}
	r.reset()
	r.buf.Write(payload)
	r.state = StateDone
	return true, nil
}

func (r *Receiver) feedFF(data []byte) (bool, error) {
	if r.state != StateIdle {
		log.Warnf("[DTP][%s] FF received outside IDLE, resetting", r.tag)
		r.reset()
	}
	extended := data[0] == 0x10 && data[1] == 0
	var length int
	var firstBytes []byte
	if extended {
		length = int(data[2])<<24 | int(data[3])<<16 | int(data[4])<<8 | int(data[5])
		firstBytes = nil
	} else {
		length = int(data[0]&0x0F)<<8 | int(data[1])
		ffCapacity := 6
		if r.mode == ModeFD {
			ffCapacity = 62
		}
		n := min(ffCapacity, length)
		if len(data) < 2+n {
			return false, fmt.Errorf("%w: FF shorter than declared length", errs.ErrProtocol)
		}
		firstBytes = data[2 : 2+n]
	}
	if length <= 0 {
		return false, fmt.Errorf("%w: FF declares non-positive length", errs.ErrProtocol)
	}
	if length > r.buf.GetSpace() {
		r.state = StateOvf
		if err := r.writeFC(buildFC(fcOverflow, 0, 0)); err != nil {
			log.Warnf("[DTP][%s] failed to send overflow flow control: %v", r.tag, err)
		}
		r.reset()
		return false, fmt.Errorf("%w: declared length %d exceeds reassembly capacity", errs.ErrTargetOverflow, length)
	}
	r.segLength = length
	r.buf.Reset()
	r.buf.Write(firstBytes)
	r.cfIndex = 1
	r.state = StateFF
	if err := r.writeFC(buildFC(fcContinueToSend, 0, 2)); err != nil {
		return false, fmt.Errorf("%w: failed to send flow control: %v", errs.ErrChannelIO, err)
	}
	r.state = StateCF
	remaining := length - len(firstBytes)
	if remaining <= 0 {
		r.state = StateDone
		return true, nil
	}
	return false, nil
}

func (r *Receiver) feedCF(data []byte) (bool, error) {
	if r.state != StateCF && r.state != StateFF {
		return false, fmt.Errorf("%w: CF received outside FF/CF (state %v)", errs.ErrProtocol, r.state)
	}
	expected := r.cfIndex % 16
	got := int(data[0] & 0x0F)
	if got != expected {
		r.reset()
		return false, fmt.Errorf("%w: CF index mismatch, expected %d got %d", errs.ErrProtocol, expected, got)
	}
	remaining := r.segLength - r.buf.GetOccupied()
	n := min(remaining, len(data)-1)
	r.buf.Write(data[1 : 1+n])
	r.cfIndex++
	if r.buf.GetOccupied() >= r.segLength {
		r.state = StateDone
		return true, nil
	}
	r.state = StateCF
	return false, nil
}

// Payload returns the reassembled payload once Feed reported done,
// and resets the receiver back to IDLE for the next session.
func (r *Receiver) Payload() []byte {
	out := r.buf.Bytes()
	r.reset()
	return out
}

// buildFC constructs a Flow Control frame payload:
// [0x30|flag, blockSize, STmin, padding...].
func buildFC(flag, blockSize, stmin byte) []byte {
	return padFrame([]byte{pciFC | flag, blockSize, stmin}, 8)
}
