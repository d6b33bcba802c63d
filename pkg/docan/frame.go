// Package docan implements the ISO 15765-2 (DoCAN) network layer on
// top of a can.Channel: segmentation of UDS payloads into Single/
// First/Consecutive frames, Flow-Control-driven reassembly, and the
// synchronous/asynchronous command executor built on top of it.
//
// Grounded on the reference CANopen stack's SDO client state machine
// (pkg/sdo/client.go) for the shape of a segmented-transfer reception
// state machine, and on the PCI nibble conventions of a standalone
// UDS-over-CAN reference implementation for the SF/FF/CF/FC byte
// layouts themselves.
package docan

import "github.com/bmsdiag/udshost/pkg/can"

// Base identifies the physical CAN identifier scheme: the 29-bit
// identifier is Base<<16 | TA<<8 | SA.
const Base uint32 = 0x18DA

// PCI values, the upper nibble of payload byte 0.
const (
	pciSF byte = 0x00
	pciFF byte = 0x10
	pciCF byte = 0x20
	pciFC byte = 0x30
)

// Flow Control flags, the lower nibble of FC byte 0.
const (
	fcContinueToSend byte = 0x00
	fcWait           byte = 0x01
	fcOverflow       byte = 0x02
)

// fdLengths lists the valid CAN-FD frame lengths in ascending order,
// per SPEC_FULL §4.2.1/§8.
var fdLengths = []int{1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

// quantizeFD returns the smallest valid CAN-FD frame length that is
// at least n bytes.
func quantizeFD(n int) int {
	for _, l := range fdLengths {
		if l >= n {
			return l
		}
	}
	return 64
}

// ID builds the 29-bit extended identifier for a (source, target)
// address pair.
func ID(sa, ta uint8) uint32 {
	return Base<<16 | uint32(ta)<<8 | uint32(sa)
}

// TargetAddress extracts the Target Address byte from a 29-bit
// identifier, as used by the CCA receive demultiplexer.
func TargetAddress(id uint32) uint8 {
	return uint8(id >> 8)
}

// SourceAddress extracts the Source Address byte from a 29-bit
// identifier.
func SourceAddress(id uint32) uint8 {
	return uint8(id)
}

// padFrame returns a copy of data padded to length with can.PadByte.
func padFrame(data []byte, length int) []byte {
	out := make([]byte, length)
	copy(out, data)
	for i := len(data); i < length; i++ {
		out[i] = can.PadByte
	}
	return out
}

// pci returns the upper nibble of the first payload byte, or 0xFF for
// an empty frame.
func pci(data []byte) byte {
	if len(data) == 0 {
		return 0xFF
	}
	return data[0] & 0xF0
}
