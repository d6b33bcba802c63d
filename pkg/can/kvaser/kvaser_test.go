package kvaser

import (
	"testing"
	"time"

	"github.com/bmsdiag/udshost/pkg/can"
	"github.com/stretchr/testify/assert"
)

// These tests exercise real or virtual Kvaser channels and are skipped
// unless canlib reports at least one available channel.
func requireChannel(t *testing.T) {
	if GetNbChannels() == 0 {
		t.Skip("no kvaser channel (real or virtual) available")
	}
}

func TestConnect(t *testing.T) {
	requireChannel(t)
	bus, err := NewKvaserBus("name")
	assert.Nil(t, err)
	assert.NotNil(t, bus)
	err = bus.Connect(0, false, uint32(500))
	assert.Nil(t, err)
	assert.Nil(t, bus.(*KvaserBus).Disconnect())
}

type listener struct {
	frames []can.Frame
}

func (l *listener) Handle(frame can.Frame) {
	l.frames = append(l.frames, frame)
}

func TestSendRead(t *testing.T) {
	requireChannel(t)
	sender, _ := NewKvaserBus("")
	assert.Nil(t, sender.Connect(0, false, uint32(500)))
	reader, err := NewKvaserBus("")
	assert.Nil(t, err)
	assert.Nil(t, reader.Connect(0, false, uint32(500)))

	callback := &listener{}
	assert.Nil(t, reader.Subscribe(callback))

	for i := range uint32(10) {
		frame := can.NewFrame(0x18DA0000|i, []byte{10 + byte(i), 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 20 + byte(i)})
		assert.Nil(t, sender.Send(frame))
	}
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, callback.frames, 10)
}

func TestKvaserError(t *testing.T) {
	err := NewKvaserError(-3)
	assert.Equal(t, "Specified device not found (-3)", err.Error())
	err = NewKvaserError(-5003)
	assert.Contains(t, err.Error(), "unable to get description")
	assert.Nil(t, NewKvaserError(0))
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEqual(t, "0.0", version)
	assert.NotEqual(t, ".", version)
}
