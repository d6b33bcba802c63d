// Package kvaser binds the CCA Bus interface to a physical Kvaser
// channel via canlib. Only the subset of canlib needed to open a
// classic or CAN-FD channel, install a 29-bit acceptance filter, and
// move frames is exposed — register-level tuning beyond bitrate/timing
// is out of scope for this host.
package kvaser

/*
#cgo LDFLAGS: -lcanlib

#include <canlib.h>
*/
import "C"
import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/bmsdiag/udshost/pkg/can"
	log "github.com/sirupsen/logrus"
)

const (
	defaultReadTimeoutMs  = 500
	defaultWriteTimeoutMs = defaultReadTimeoutMs
)

const (
	OpenExclusive         int = C.canOPEN_EXCLUSIVE
	OpenRequireExtended   int = C.canOPEN_REQUIRE_EXTENDED
	OpenAcceptVirtual     int = C.canOPEN_ACCEPT_VIRTUAL
	OpenOverrideExclusive int = C.canOPEN_OVERRIDE_EXCLUSIVE
	OpenCanFd             int = C.canOPEN_CAN_FD
	OpenCanFdNonIso        int = C.canOPEN_CAN_FD_NONISO
)

const StatusOk int = C.canOK

var (
	ErrNoMsg error = NewKvaserError(C.canERR_NOMSG)
	ErrArgs  error = errors.New("kvaser: error in arguments")
)

func init() {
	can.RegisterInterface("kvaser", NewKvaserBus)
}

// busTiming holds the NTSEG1/NTSEG2/SJW (and, for FD, the data-phase
// DTSEG1/DTSEG2/DSJW) nominal bit timing for a supported bitrate, per
// SPEC_FULL §6.
type busTiming struct {
	freq int
	tseg1, tseg2, sjw int
}

// Classic CAN nominal-phase timing tables, selectable per SPEC_FULL §6.
var classicTimings = map[uint32]busTiming{
	1000: {1000000, 5, 2, 1},
	500:  {500000, 15, 4, 1}, // 80% sample point, the host's default
	250:  {250000, 15, 4, 1},
	125:  {125000, 15, 4, 1},
	100:  {100000, 15, 4, 1},
	83:   {83000, 15, 4, 1},
	62:   {62000, 15, 4, 1},
	50:   {50000, 15, 4, 1},
	10:   {10000, 15, 4, 1},
}

// CAN-FD data-phase timing, 2 Mbit/s per SPEC_FULL §6.
var fdDataTiming = busTiming{2000000, 15, 4, 1}

type KvaserBus struct {
	handle       C.canHandle
	rxCallback   can.FrameListener
	timeoutRead  int
	timeoutWrite int
	fd           bool
	exit         chan bool
}

type KvaserError struct {
	Code        int
	Description string
}

func (ke *KvaserError) Error() string {
	return fmt.Sprintf("%v (%v)", ke.Description, ke.Code)
}

func NewKvaserError(code int) error {
	if code >= StatusOk {
		return nil
	}
	msg := [64]C.char{}
	status := int(C.canGetErrorText(C.canStatus(code), &msg[0], C.uint(unsafe.Sizeof(msg))))
	if status < StatusOk {
		return fmt.Errorf("unable to get description for error code %v (%v)", code, status)
	}
	return &KvaserError{Code: code, Description: C.GoString(&msg[0])}
}

func NewKvaserBus(name string) (can.Bus, error) {
	bus := &KvaserBus{}
	bus.timeoutRead = defaultReadTimeoutMs
	bus.timeoutWrite = defaultWriteTimeoutMs
	bus.exit = make(chan bool)
	// Any error here is silent and surfaces when opening the channel;
	// calling this multiple times has no effect.
	C.canInitializeLibrary()
	return bus, nil
}

// Open acquires a channel. fdMode selects CAN-FD framing and a 2 Mbit/s
// data phase; bitrateKbps must be a key of classicTimings.
func (k *KvaserBus) Open(channel int, fdMode bool, bitrateKbps uint32) error {
	flags := OpenRequireExtended
	if fdMode {
		flags |= OpenCanFd
	}
	handle := C.canOpenChannel(C.int(channel), C.int(flags))
	if err := NewKvaserError(int(handle)); err != nil {
		return err
	}
	k.handle = handle
	k.fd = fdMode

	timing, ok := classicTimings[bitrateKbps]
	if !ok {
		return fmt.Errorf("kvaser: unsupported bitrate %v kbit/s", bitrateKbps)
	}
	status := C.canSetBusParams(k.handle, C.long(timing.freq), C.uint(timing.tseg1), C.uint(timing.tseg2), C.uint(timing.sjw), 0, 0)
	if err := NewKvaserError(int(status)); err != nil {
		return err
	}
	if fdMode {
		status = C.canSetBusParamsFd(k.handle, C.long(fdDataTiming.freq), C.uint(fdDataTiming.tseg1), C.uint(fdDataTiming.tseg2), C.uint(fdDataTiming.sjw))
		if err := NewKvaserError(int(status)); err != nil {
			return err
		}
	}
	status = C.canSetBusOutputControl(k.handle, C.canDRIVER_NORMAL)
	if err := NewKvaserError(int(status)); err != nil {
		return err
	}
	return k.On()
}

// SetAcceptanceFilter installs a hardware acceptance filter. For the
// DoCAN convention (SPEC_FULL §6) code/mask are 0x18DA0000/0x1FFF0000
// with extended set.
func (k *KvaserBus) SetAcceptanceFilter(code, mask uint32, extended bool) error {
	var status C.canStatus
	if extended {
		status = C.canSetAcceptanceFilter(k.handle, C.uint(code), C.uint(mask), 1)
	} else {
		status = C.canSetAcceptanceFilter(k.handle, C.uint(code), C.uint(mask), 0)
	}
	return NewKvaserError(int(status))
}

// Connect implements can.Bus; args are (channel int, fdMode bool, bitrateKbps uint32).
func (k *KvaserBus) Connect(args ...any) error {
	if len(args) < 3 {
		return ErrArgs
	}
	channel, ok := args[0].(int)
	if !ok {
		return ErrArgs
	}
	fdMode, ok := args[1].(bool)
	if !ok {
		return ErrArgs
	}
	bitrate, ok := args[2].(uint32)
	if !ok {
		return ErrArgs
	}
	return k.Open(channel, fdMode, bitrate)
}

func (k *KvaserBus) Disconnect() error {
	if k.rxCallback != nil {
		k.exit <- true
	}
	k.Off()
	status := C.canClose(k.handle)
	return NewKvaserError(int(status))
}

func (k *KvaserBus) Send(frame can.Frame) error {
	msgFlags := C.canMSG_EXT
	if frame.FD {
		msgFlags |= C.canFDMSG_FDF
		if frame.BRS {
			msgFlags |= C.canFDMSG_BRS
		}
	}
	status := C.canWrite(k.handle, C.long(frame.ID), unsafe.Pointer(&frame.Data[0]), C.uint(len(frame.Data)), C.uint(msgFlags))
	if err := NewKvaserError(int(status)); err != nil {
		return err
	}
	status = C.canWriteSync(k.handle, C.ulong(defaultWriteTimeoutMs))
	return NewKvaserError(int(status))
}

func (k *KvaserBus) Subscribe(callback can.FrameListener) error {
	k.rxCallback = callback
	go k.handleReception()
	return nil
}

func (k *KvaserBus) handleReception() {
	for {
		select {
		case <-k.exit:
			return
		default:
			frame, err := k.Recv()
			if err != nil {
				if err.Error() == ErrNoMsg.Error() {
					continue
				}
				log.Errorf("[KVASER] listening routine stopped: %v", err)
				return
			}
			if k.rxCallback != nil {
				k.rxCallback.Handle(frame)
			}
		}
	}
}

// Recv reads a single CAN frame with a timeout.
func (k *KvaserBus) Recv() (can.Frame, error) {
	id := C.long(0)
	var data [64]byte
	dlc := C.uint(0)
	flags := C.uint(0)
	ts := C.ulong(0)
	timeout := C.ulong(k.timeoutRead)

	status := C.canReadWait(k.handle, &id, unsafe.Pointer(&data), &dlc, &flags, &ts, timeout)
	if err := NewKvaserError(int(status)); err != nil {
		return can.Frame{}, err
	}
	frame := can.NewFrame(uint32(id), append([]byte(nil), data[:dlc]...))
	if flags&C.canFDMSG_FDF != 0 {
		frame.FD = true
		frame.BRS = flags&C.canFDMSG_BRS != 0
	}
	if flags&(C.canMSGERR_HW|C.canMSGERR_SW) != 0 {
		frame.ErrFlags |= can.ErrFlagMsgErr
	}
	return frame, nil
}

func (k *KvaserBus) On() error {
	return NewKvaserError(int(C.canBusOn(k.handle)))
}

func (k *KvaserBus) Off() error {
	return NewKvaserError(int(C.canBusOff(k.handle)))
}

// GetVersion returns the canlib version as a string X.Y.
func GetVersion() string {
	version := C.canGetVersion()
	low := version & 0xFF
	high := version >> 8
	return fmt.Sprintf("%v.%v", high, low)
}

// GetNbChannels returns the number of channels canlib knows about,
// including virtual channels.
func GetNbChannels() int {
	nb := C.int(0)
	C.canGetNumberOfChannels(&nb)
	return int(nb)
}
