// Package ecu8tr is the downstream ECU8TR UDP telemetry control hook:
// a lightweight command dispatcher, separate from DoCAN, that sends
// fixed length-8 datagrams to request connect/disconnect and
// stream start/stop. Grounded on the virtual CAN backend's
// net.Dial-based datagram framing (pkg/can/virtual/virtual.go),
// applied here to UDP instead of TCP.
package ecu8tr

import (
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
)

// Command is an ECU8TR control message-ID byte pair, the second byte
// of the datagram.
type Command byte

const (
	CmdDisconnect  Command = 0x00
	CmdConnect     Command = 0x01
	CmdStreamStart Command = 0x02
	CmdStreamStop  Command = 0x03
)

// messageClass is the constant first byte of every ECU8TR datagram.
const messageClass byte = 0x12

// datagramLen is the fixed length of an ECU8TR control datagram.
const datagramLen = 8

// Hook sends ECU8TR control datagrams to a configured UDP peer. It
// shares the session's SA/TA address constants but does not use
// DoCAN; every Dispatch is a single fire-and-forget UDP write.
type Hook struct {
	sa, ta uint8
	conn   *net.UDPConn
}

// NewHook dials peer (the configured udp_peer) for subsequent Dispatch
// calls. listen, if non-nil, binds the local address (the configured
// udp_listen) so replies can be told apart on a NATed host; nil uses
// an ephemeral local port.
func NewHook(sa, ta uint8, peer, listen *net.UDPAddr) (*Hook, error) {
	conn, err := net.DialUDP("udp4", listen, peer)
	if err != nil {
		return nil, fmt.Errorf("ecu8tr: dial %s: %w", peer, err)
	}
	return &Hook{sa: sa, ta: ta, conn: conn}, nil
}

// Dispatch sends the length-8 datagram for cmd: [0x12, cmd, sa, ta,
// 0xCC, 0xCC, 0xCC, 0xCC].
func (h *Hook) Dispatch(cmd Command) error {
	datagram := [datagramLen]byte{messageClass, byte(cmd), h.sa, h.ta, 0xCC, 0xCC, 0xCC, 0xCC}
	n, err := h.conn.Write(datagram[:])
	if err != nil {
		return fmt.Errorf("ecu8tr: write: %w", err)
	}
	if n != datagramLen {
		return fmt.Errorf("ecu8tr: short write: %d of %d bytes", n, datagramLen)
	}
	log.Debugf("[ECU8TR] dispatched cmd=0x%02x", byte(cmd))
	return nil
}

// Close releases the underlying UDP socket.
func (h *Hook) Close() error {
	return h.conn.Close()
}
