package docan

// Mode selects classic-CAN or CAN-FD framing rules for Packetize.
type Mode int

const (
	ModeClassic Mode = iota
	ModeFD
)

// Packetize splits tx into ordered CAN frame payloads following
// SPEC_FULL §4.2.1. Every classic payload is exactly 8 bytes; every FD
// payload is one of the quantized FD lengths and at least
// len(header)+len(segment) bytes.
func Packetize(tx []byte, mode Mode) [][]byte {
	if mode == ModeFD {
		return packetizeFD(tx)
	}
	return packetizeClassic(tx)
}

func packetizeClassic(tx []byte) [][]byte {
	l := len(tx)
	switch {
	case l <= 7:
		payload := make([]byte, 1, 8)
		payload[0] = byte(l)
		payload = append(payload, tx...)
		return [][]byte{padFrame(payload, 8)}
	case l <= 4095:
		frames := make([][]byte, 0, 1+(l+6)/7)
		ff := make([]byte, 2, 8)
		ff[0] = pciFF | byte((l>>8)&0x0F)
		ff[1] = byte(l & 0xFF)
		n := min(6, l)
		ff = append(ff, tx[:n]...)
		frames = append(frames, padFrame(ff, 8))
		frames = append(frames, classicConsecutiveFrames(tx[n:])...)
		return frames
	default:
		ff := []byte{pciFF, 0, byte(l >> 24), byte(l >> 16), byte(l >> 8), byte(l)}
		frames := [][]byte{padFrame(ff, 8)}
		frames = append(frames, classicConsecutiveFrames(tx)...)
		return frames
	}
}

func classicConsecutiveFrames(rest []byte) [][]byte {
	var frames [][]byte
	idx := 1
	for off := 0; off < len(rest); off += 7 {
		end := off + 7
		if end > len(rest) {
			end = len(rest)
		}
		cf := make([]byte, 1, 8)
		cf[0] = pciCF | byte(idx%16)
		cf = append(cf, rest[off:end]...)
		frames = append(frames, padFrame(cf, 8))
		idx++
	}
	return frames
}

func packetizeFD(tx []byte) [][]byte {
	l := len(tx)
	if l <= 62 {
		payload := make([]byte, 2, l+2)
		payload[0] = 0
		payload[1] = byte(l)
		payload = append(payload, tx...)
		return [][]byte{padFrame(payload, quantizeFD(len(payload)))}
	}
	if l > 4095 {
		ff := []byte{pciFF, 0, byte(l >> 24), byte(l >> 16), byte(l >> 8), byte(l)}
		frames := [][]byte{padFrame(ff, quantizeFD(len(ff)))}
		frames = append(frames, fdConsecutiveFrames(tx)...)
		return frames
	}
	ff := make([]byte, 2, 64)
	ff[0] = pciFF | byte((l>>8)&0x0F)
	ff[1] = byte(l & 0xFF)
	n := min(62, l)
	ff = append(ff, tx[:n]...)
	frames := [][]byte{padFrame(ff, quantizeFD(len(ff)))}
	frames = append(frames, fdConsecutiveFrames(tx[n:])...)
	return frames
}

// fdConsecutiveFrames chunks rest into quantized CAN-FD consecutive
// frames, each sized by quantizeFD against the bytes still
// outstanding at that point (so the final frame is no larger than it
// needs to be), per the ported reference's GetFdDataLength(len(rest)+1)
// sizing.
func fdConsecutiveFrames(rest []byte) [][]byte {
	var frames [][]byte
	idx := 1
	for len(rest) > 0 {
		frameSize := quantizeFD(len(rest) + 1)
		n := min(frameSize-1, len(rest))
		cf := make([]byte, 1, frameSize)
		cf[0] = pciCF | byte(idx%16)
		cf = append(cf, rest[:n]...)
		frames = append(frames, padFrame(cf, frameSize))
		rest = rest[n:]
		idx++
	}
	return frames
}

