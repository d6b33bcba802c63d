package can

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrHardwareNotFound is returned by Open when the underlying backend
// cannot acquire the physical channel; terminal for the process.
var ErrHardwareNotFound = errors.New("can: hardware not found")

// FrameSink receives frames demultiplexed by Target Address byte.
// Handle must not block.
type FrameSink interface {
	Handle(frame Frame)
}

// FrameSinkFunc adapts a plain func to a FrameSink.
type FrameSinkFunc func(Frame)

func (f FrameSinkFunc) Handle(frame Frame) { f(frame) }

// Channel is the CAN Channel Adapter (CCA): it owns a Bus, applies a
// 29-bit acceptance filter, demultiplexes received frames by the
// Target Address byte of the identifier (bits 15:8), and serializes
// writes under a single channel-wide lock so only one transmission is
// ever in flight at a time.
type Channel struct {
	bus  Bus
	name string

	writeMu sync.Mutex

	mu    sync.Mutex
	sinks map[uint8]FrameSink

	aborted bool
}

// Open acquires channel, applying the DoCAN acceptance filter
// (code=0x18DA0000, mask=0x1FFF0000, extended) once connected. args
// are passed through to the backend's Connect (backend-specific: for
// kvaser, (channelIndex int, fdMode bool, bitrateKbps uint32)).
func Open(interfaceType, channelName string, args ...any) (*Channel, error) {
	bus, err := NewBus(interfaceType, channelName)
	if err != nil {
		return nil, ErrHardwareNotFound
	}
	if err := bus.Connect(args...); err != nil {
		return nil, ErrHardwareNotFound
	}
	ch := &Channel{
		bus:   bus,
		name:  channelName,
		sinks: make(map[uint8]FrameSink),
	}
	if err := ch.SetAcceptanceFilter(0x18DA0000, 0x1FFF0000, true); err != nil {
		return nil, err
	}
	if err := bus.Subscribe(ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// FromBus wraps an already-constructed Bus in a Channel, connecting
// and subscribing it the same way Open does. Used by backends
// constructed directly rather than through the interface registry
// (e.g. an in-process virtual bus pair in tests).
func FromBus(bus Bus, name string, args ...any) (*Channel, error) {
	if err := bus.Connect(args...); err != nil {
		return nil, ErrHardwareNotFound
	}
	ch := &Channel{
		bus:   bus,
		name:  name,
		sinks: make(map[uint8]FrameSink),
	}
	if err := bus.Subscribe(ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// SetAcceptanceFilter installs a hardware acceptance filter. The
// DoCAN convention is code=0x18DA0000, mask=0x1FFF0000, extended=true.
func (c *Channel) SetAcceptanceFilter(code, mask uint32, extended bool) error {
	type filterSetter interface {
		SetAcceptanceFilter(code, mask uint32, extended bool) error
	}
	if fs, ok := c.bus.(filterSetter); ok {
		return fs.SetAcceptanceFilter(code, mask, extended)
	}
	// Backends without hardware filtering (virtual, socketcan) accept
	// every frame and rely on RegisterRx demultiplexing; not an error.
	return nil
}

// Write transmits a frame synchronously under the channel-wide write
// lock. timeout is not passed to the backend, whose own write timeout
// applies; the write lock bounds concurrent transmission to one at a
// time.
func (c *Channel) Write(frame Frame, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.bus.Send(frame)
}

// RegisterRx binds sink to an 8-bit Target Address. The receive loop
// invokes sink.Handle whenever an incoming frame's (id>>8)&0xFF
// matches taByte.
func (c *Channel) RegisterRx(taByte uint8, sink FrameSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks[taByte] = sink
}

// UnregisterRx removes a previously registered sink.
func (c *Channel) UnregisterRx(taByte uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sinks, taByte)
}

// Handle implements FrameListener; it is the single entry point the
// Bus backend's receive loop calls on every inbound frame.
func (c *Channel) Handle(frame Frame) {
	if frame.ErrFlags&(ErrFlagMsgErr|ErrFlagErrorFrame) != 0 {
		log.Errorf("[CCA][%s] error frame received, aborting receive loop", c.name)
		c.Abort()
		return
	}
	ta := uint8(frame.ID >> 8)
	c.mu.Lock()
	sink, ok := c.sinks[ta]
	c.mu.Unlock()
	if !ok {
		log.Errorf("[CCA][%s] no registered sink for TA=0x%02x, dropping frame", c.name, ta)
		return
	}
	sink.Handle(frame)
}

// Abort signals the receive loop to stop and disconnects the
// underlying bus. Idempotent.
func (c *Channel) Abort() error {
	c.mu.Lock()
	if c.aborted {
		c.mu.Unlock()
		return nil
	}
	c.aborted = true
	c.sinks = make(map[uint8]FrameSink)
	c.mu.Unlock()
	return c.bus.Disconnect()
}
