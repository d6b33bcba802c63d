// Package docan's Transport ties the frame-level segmentation
// (packetize.go), reassembly state machine (state.go) and Flow
// Control rendezvous (flowcontrol.go) together into the executor the
// command layer calls, grounded on the reference CANopen stack's
// BusManager/SDOClient composition (bus_manager.go, pkg/sdo/client.go)
// and the HTTP gateway's bounded request queue (pkg/gateway/http).
package docan

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bmsdiag/udshost/pkg/can"
	"github.com/bmsdiag/udshost/pkg/docan/errs"
)

// asyncQueueSize bounds the transport's async tx-worker queue per
// SPEC_FULL §5.
const asyncQueueSize = 16

// request is one queued unit of work for the async tx-worker.
type request struct {
	tx       []byte
	timeout  time.Duration
	callback func([]byte, error)
}

// Transport is a DoCAN session over one (SA,TA) pair on a Channel. It
// demultiplexes inbound frames into either segmented-payload
// reassembly or the Flow Control rendezvous, and offers both a
// synchronous ExecuteWait and an asynchronous, worker-backed Execute.
type Transport struct {
	ch     *can.Channel
	sa, ta uint8
	mode   Mode
	txID   uint32

	recv *Receiver
	fcw  *FCWaiter

	mu          sync.Mutex
	inbox       chan []byte
	disposed    bool
	outstanding int

	queue chan request
	wg    sync.WaitGroup

	dictMu   sync.Mutex
	dict     map[string]dictEntry
	dictKeys []string
}

// DictCommand is the capability a command object must offer to sit in
// a Transport's Command Dictionary (SPEC_FULL §3): build its own
// outbound payload and validate its own inbound one. uds.Command
// satisfies this directly.
type DictCommand interface {
	Prepare() []byte
	Dispatch(rx []byte) error
}

// dictEntry pairs a registered command with the timeout ExecuteDict
// runs it under; the ported reference instead stores the timeout on
// the command object itself, but Transport's own command objects take
// their timeout at the call site (ExecuteWait/Execute), so the
// dictionary carries it alongside the command rather than duplicating
// a timeout field onto every uds.Command variant.
type dictEntry struct {
	cmd     DictCommand
	timeout time.Duration
}

// NewTransport opens a DoCAN session for the given source/target
// address pair on ch, registering itself as ch's sink for frames
// addressed to sa, and starts the async tx-worker goroutine.
func NewTransport(ch *can.Channel, sa, ta uint8, mode Mode) *Transport {
	t := &Transport{
		ch:    ch,
		sa:    sa,
		ta:    ta,
		mode:  mode,
		txID:  ID(sa, ta),
		fcw:   NewFCWaiter(),
		inbox: make(chan []byte, 1),
		queue: make(chan request, asyncQueueSize),
	}
	tag := fmt.Sprintf("%02x>%02x", sa, ta)
	t.recv = NewReceiver(mode, tag, t.sendFC)
	ch.RegisterRx(sa, can.FrameSinkFunc(t.handleFrame))
	t.wg.Add(1)
	go t.worker()
	return t
}

// handleFrame is the Channel callback for inbound frames addressed to
// this transport's source address. FC frames go to the sender-side
// rendezvous; everything else feeds the reassembly state machine and,
// once complete, is forwarded to the blocked ExecuteWait caller (or
// dropped, per the inbound drop-on-overflow policy, if nobody is
// waiting).
func (t *Transport) handleFrame(frame can.Frame) {
	data := frame.Data
	if pci(data) == pciFC {
		t.fcw.Deliver(data)
		return
	}
	done, err := t.recv.Feed(data)
	if err != nil {
		log.Warnf("[DTP][%02x>%02x] reassembly error: %v", t.sa, t.ta, err)
		return
	}
	if !done {
		return
	}
	payload := t.recv.Payload()
	select {
	case t.inbox <- payload:
	default:
		log.Warnf("[DTP][%02x>%02x] inbound queue full, dropping reassembled frame", t.sa, t.ta)
	}
}

func (t *Transport) sendFC(data []byte) error {
	return t.ch.Write(can.NewFrame(t.txID, data), time.Second)
}

// send packetizes and transmits tx, performing the Flow Control
// rendezvous for multi-frame transfers.
func (t *Transport) send(tx []byte) error {
	t.mu.Lock()
	disposed := t.disposed
	t.mu.Unlock()
	if disposed {
		return errs.ErrDisposed
	}
	frames := Packetize(tx, t.mode)
	if err := t.ch.Write(can.NewFrame(t.txID, frames[0]), time.Second); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrChannelIO, err)
	}
	if len(frames) == 1 {
		return nil
	}
	if err := t.fcw.Await(); err != nil {
		return err
	}
	for _, cf := range frames[1:] {
		if err := t.ch.Write(can.NewFrame(t.txID, cf), time.Second); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrChannelIO, err)
		}
	}
	return nil
}

// ReceiveRequest blocks for the next reassembled inbound payload
// without transmitting anything first. It exists for test doubles
// that stand in for the remote ECU side of a session; the host-facing
// API only ever calls ExecuteWait/Execute.
func (t *Transport) ReceiveRequest(timeout time.Duration) ([]byte, error) {
	select {
	case rx := <-t.inbox:
		return rx, nil
	case <-time.After(timeout):
		return nil, errs.ErrRxTimeout
	}
}

// Reply packetizes and transmits tx without waiting for anything in
// return, for test doubles answering a ReceiveRequest.
func (t *Transport) Reply(tx []byte) error {
	return t.send(tx)
}

// ExecuteWait transmits tx and blocks for the reassembled response, up
// to timeout. It is safe to call from multiple goroutines only if the
// caller serializes its own requests; concurrent callers should use
// Execute instead, which serializes through the tx-worker.
func (t *Transport) ExecuteWait(tx []byte, timeout time.Duration) ([]byte, error) {
	if err := t.send(tx); err != nil {
		return nil, err
	}
	select {
	case rx := <-t.inbox:
		return rx, nil
	case <-time.After(timeout):
		return nil, errs.ErrRxTimeout
	}
}

// Execute enqueues tx for asynchronous transmission on the tx-worker,
// invoking callback with the eventual response or error. It returns
// ErrQueueFull immediately if 16 commands are already queued or in
// flight, and ErrDisposed if the transport has been torn down.
// Admission is tracked explicitly with outstanding rather than relying
// on the channel buffer alone, so a command only leaves the 16-slot
// bound once its callback has actually run, not the instant the
// worker goroutine dequeues it.
func (t *Transport) Execute(tx []byte, timeout time.Duration, callback func([]byte, error)) error {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return errs.ErrDisposed
	}
	if t.outstanding >= asyncQueueSize {
		t.mu.Unlock()
		return errs.ErrQueueFull
	}
	t.outstanding++
	t.mu.Unlock()

	t.queue <- request{tx: tx, timeout: timeout, callback: callback}
	return nil
}

// AddCmd registers cmd under key in the Command Dictionary, to be run
// later by ExecuteDict/ExecuteDictAsync. Iteration order (Keys) is
// insertion order; a duplicate key is rejected, matching the ported
// reference's AddCmd/cmd_dict.
func (t *Transport) AddCmd(key string, cmd DictCommand, timeout time.Duration) error {
	t.dictMu.Lock()
	defer t.dictMu.Unlock()
	if _, exists := t.dict[key]; exists {
		return fmt.Errorf("%w: command dictionary key %q already assigned", errs.ErrInvalidArgument, key)
	}
	if t.dict == nil {
		t.dict = make(map[string]dictEntry)
	}
	t.dict[key] = dictEntry{cmd: cmd, timeout: timeout}
	t.dictKeys = append(t.dictKeys, key)
	return nil
}

// DelCmd clears the Command Dictionary.
func (t *Transport) DelCmd() {
	t.dictMu.Lock()
	defer t.dictMu.Unlock()
	t.dict = nil
	t.dictKeys = nil
}

// Keys returns the Command Dictionary's keys in insertion order.
func (t *Transport) Keys() []string {
	t.dictMu.Lock()
	defer t.dictMu.Unlock()
	out := make([]string, len(t.dictKeys))
	copy(out, t.dictKeys)
	return out
}

func (t *Transport) lookupCmd(key string) (dictEntry, error) {
	t.dictMu.Lock()
	entry, ok := t.dict[key]
	t.dictMu.Unlock()
	if !ok {
		return dictEntry{}, fmt.Errorf("%w: no command registered under key %q", errs.ErrInvalidArgument, key)
	}
	return entry, nil
}

// ExecuteDict runs the command registered under key synchronously:
// Prepare, ExecuteWait under its registered timeout, then Dispatch the
// response. Matches the ported reference's ExecuteDict in the
// synchronous case.
func (t *Transport) ExecuteDict(key string) error {
	entry, err := t.lookupCmd(key)
	if err != nil {
		return err
	}
	rx, err := t.ExecuteWait(entry.cmd.Prepare(), entry.timeout)
	if err != nil {
		return err
	}
	return entry.cmd.Dispatch(rx)
}

// ExecuteDictAsync submits the command registered under key to the
// async tx-worker, Dispatching the response once it arrives. Matches
// the ported reference's ExecuteDict in the is_async case (queues
// through Exe rather than blocking); returns ErrQueueFull/ErrDisposed
// the same way Execute does.
func (t *Transport) ExecuteDictAsync(key string) error {
	entry, err := t.lookupCmd(key)
	if err != nil {
		return err
	}
	return t.Execute(entry.cmd.Prepare(), entry.timeout, func(rx []byte, err error) {
		if err != nil {
			log.Warnf("[DTP][%02x>%02x] ExecuteDictAsync %q failed: %v", t.sa, t.ta, key, err)
			return
		}
		if err := entry.cmd.Dispatch(rx); err != nil {
			log.Warnf("[DTP][%02x>%02x] ExecuteDictAsync %q dispatch failed: %v", t.sa, t.ta, key, err)
		}
	})
}

func (t *Transport) worker() {
	defer t.wg.Done()
	for req := range t.queue {
		rx, err := t.ExecuteWait(req.tx, req.timeout)
		if req.callback != nil {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Errorf("[DTP][%02x>%02x] callback panicked: %v", t.sa, t.ta, r)
					}
				}()
				req.callback(rx, err)
			}()
		}
		t.mu.Lock()
		t.outstanding--
		t.mu.Unlock()
	}
}

// Dispose tears down the transport: the tx-worker goroutine is
// stopped, the channel's sink for sa is unregistered, and any
// in-flight ExecuteWait calls observe ErrDisposed on their next send.
func (t *Transport) Dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	t.mu.Unlock()
	close(t.queue)
	t.wg.Wait()
	t.ch.UnregisterRx(t.sa)
}
