// Package virtual implements an in-process TCP-loopback CAN bus used
// for tests and as the fake ECU endpoint in end-to-end scenarios. It
// needs a broker process relaying frames between connected clients,
// or SetReceiveOwn for a single-process loopback.
package virtual

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bmsdiag/udshost/pkg/can"
)

func init() {
	can.RegisterInterface("virtual", NewVirtualCanBus)
	can.RegisterInterface("virtualcan", NewVirtualCanBus)
}

type Bus struct {
	mu            sync.Mutex
	channel       string
	conn          net.Conn
	receiveOwn    bool
	framehandler  can.FrameListener
	stopChan      chan bool
	wg            sync.WaitGroup
	isRunning     bool
	errSubscriber bool
}

func NewVirtualCanBus(channel string) (can.Bus, error) {
	return &Bus{channel: channel, stopChan: make(chan bool)}, nil
}

// Wire format: [4-byte length][4-byte ID][1-byte flags][1-byte DLC][data...]
const flagFD = 0x01
const flagBRS = 0x02

func serializeFrame(frame can.Frame) []byte {
	var flags byte
	if frame.FD {
		flags |= flagFD
	}
	if frame.BRS {
		flags |= flagBRS
	}
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, frame.ID)
	buf.WriteByte(flags)
	buf.WriteByte(byte(len(frame.Data)))
	buf.Write(frame.Data)

	body := buf.Bytes()
	out := make([]byte, 4, 4+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	return append(out, body...)
}

func deserializeFrame(body []byte) (can.Frame, error) {
	if len(body) < 6 {
		return can.Frame{}, errors.New("virtual: short frame body")
	}
	id := binary.BigEndian.Uint32(body[0:4])
	flags := body[4]
	dlc := int(body[5])
	if len(body) < 6+dlc {
		return can.Frame{}, errors.New("virtual: truncated frame data")
	}
	return can.Frame{
		ID:   id,
		Data: append([]byte(nil), body[6:6+dlc]...),
		FD:   flags&flagFD != 0,
		BRS:  flags&flagBRS != 0,
	}, nil
}

// Connect dials the broker, e.g. "localhost:18000". receiveOwn mode
// never dials out.
func (b *Bus) Connect(...any) error {
	if b.receiveOwn {
		return nil
	}
	conn, err := net.Dial("tcp", b.channel)
	if err != nil {
		return err
	}
	b.conn = conn
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.errSubscriber && b.isRunning {
		b.stopChan <- true
		b.wg.Wait()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// Send implementation of Bus interface.
func (b *Bus) Send(frame can.Frame) error {
	if b.receiveOwn && b.framehandler != nil {
		b.framehandler.Handle(frame)
	}
	if b.conn == nil {
		if b.receiveOwn {
			return nil
		}
		return errors.New("virtual: no active connection, abort send")
	}
	_ = b.conn.SetWriteDeadline(time.Now().Add(10 * time.Millisecond))
	_, err := b.conn.Write(serializeFrame(frame))
	return err
}

// Subscribe implementation of Bus interface.
func (b *Bus) Subscribe(framehandler can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.framehandler = framehandler
	if b.isRunning || b.conn == nil {
		return nil
	}
	b.wg.Add(1)
	b.isRunning = true
	b.errSubscriber = false
	go b.handleReception()
	return nil
}

func (b *Bus) recv() (can.Frame, error) {
	if b.conn == nil {
		return can.Frame{}, fmt.Errorf("virtual: no active connection, abort receive")
	}
	_ = b.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	header := make([]byte, 4)
	n, err := b.conn.Read(header)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return can.Frame{}, err
	}
	if n < 4 || err != nil {
		return can.Frame{}, fmt.Errorf("virtual: short header read: %w", err)
	}
	length := binary.BigEndian.Uint32(header)
	body := make([]byte, length)
	_ = b.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	n, err = b.conn.Read(body)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return can.Frame{}, err
	}
	if n != int(length) || err != nil {
		return can.Frame{}, fmt.Errorf("virtual: short body read: expected %v got %v", length, n)
	}
	return deserializeFrame(body)
}

func (b *Bus) handleReception() {
	defer func() {
		b.isRunning = false
		b.wg.Done()
	}()
	for {
		select {
		case <-b.stopChan:
			return
		default:
			if !b.mu.TryLock() {
				continue
			}
			frame, err := b.recv()
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// no message received, this is fine
			} else if err != nil {
				log.Errorf("[VIRTUAL] listening routine stopped: %v", err)
				b.errSubscriber = true
				b.mu.Unlock()
				return
			} else if b.framehandler != nil {
				b.framehandler.Handle(frame)
			}
			b.mu.Unlock()
		}
	}
}

// SetReceiveOwn loops Send() straight back into the registered
// listener instead of dialing a broker, turning this bus into a
// same-process fake ECU for tests.
func (b *Bus) SetReceiveOwn(receiveOwn bool) {
	b.receiveOwn = receiveOwn
}
