// Package socketcan binds the CCA Bus interface to a Linux SocketCAN
// interface via github.com/brutella/can. brutella/can only models
// classic 8-byte frames, so this backend does not support CAN-FD;
// FD channels must use the kvaser backend instead.
package socketcan

import (
	sockcan "github.com/brutella/can"
	"golang.org/x/sys/unix"

	"github.com/bmsdiag/udshost/pkg/can"
)

func init() {
	can.RegisterInterface("socketcan", NewSocketCanBus)
}

type SocketcanBus struct {
	bus        *sockcan.Bus
	rxCallback can.FrameListener
}

// Connect implementation of Bus interface
func (s *SocketcanBus) Connect(...any) error {
	go s.bus.ConnectAndPublish()
	return nil
}

// Disconnect implementation of Bus interface
func (s *SocketcanBus) Disconnect() error {
	return s.bus.Disconnect()
}

// Send implementation of Bus interface. Extended (29-bit) is implied
// by the high bit of the brutella/can ID field.
func (s *SocketcanBus) Send(frame can.Frame) error {
	if frame.FD {
		return errFDUnsupported
	}
	var data [8]byte
	copy(data[:], frame.Data)
	return s.bus.Publish(sockcan.Frame{
		ID:     frame.ID | unix.CAN_EFF_FLAG,
		Length: uint8(len(frame.Data)),
		Data:   data,
	})
}

// Subscribe implementation of Bus interface.
func (s *SocketcanBus) Subscribe(rxCallback can.FrameListener) error {
	s.rxCallback = rxCallback
	// brutella/can defines its own "Handle" interface for received frames.
	s.bus.Subscribe(s)
	return nil
}

// Handle satisfies brutella/can's Handler interface.
func (s *SocketcanBus) Handle(frame sockcan.Frame) {
	s.rxCallback.Handle(can.Frame{
		ID:   frame.ID &^ unix.CAN_EFF_FLAG,
		Data: append([]byte(nil), frame.Data[:frame.Length]...),
	})
}

func NewSocketCanBus(name string) (can.Bus, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, err
	}
	return &SocketcanBus{bus: bus}, nil
}

var errFDUnsupported = fdUnsupportedError{}

type fdUnsupportedError struct{}

func (fdUnsupportedError) Error() string {
	return "socketcan: CAN-FD frames are not supported by this backend, use kvaser"
}
