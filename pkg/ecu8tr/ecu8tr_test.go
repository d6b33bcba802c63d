package ecu8tr

import (
	"net"
	"testing"
	"time"
)

func TestDispatchSendsFixedLengthDatagram(t *testing.T) {
	listener, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer listener.Close()

	hook, err := NewHook(0x0A, 0x0B, listener.LocalAddr().(*net.UDPAddr), nil)
	if err != nil {
		t.Fatalf("NewHook: %v", err)
	}
	defer hook.Close()

	if err := hook.Dispatch(CmdConnect); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	buf := make([]byte, 16)
	listener.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := listener.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	if n != datagramLen {
		t.Fatalf("got %d bytes, want %d", n, datagramLen)
	}
	want := []byte{0x12, 0x01, 0x0A, 0x0B, 0xCC, 0xCC, 0xCC, 0xCC}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("byte %d: got 0x%02x want 0x%02x", i, buf[i], want[i])
		}
	}
}
