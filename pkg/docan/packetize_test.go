package docan

import (
	"bytes"
	"testing"
)

// reassemble drives a fresh Receiver through frames and returns the
// final payload, failing the test on any error or non-terminal end.
func reassemble(t *testing.T, mode Mode, frames [][]byte) []byte {
	t.Helper()
	r := NewReceiver(mode, "test", func([]byte) error { return nil })
	var done bool
	var err error
	for _, f := range frames {
		done, err = r.Feed(f)
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
	if !done {
		t.Fatalf("reassembly did not complete after %d frames", len(frames))
	}
	return r.Payload()
}

func TestPacketizeClassicRoundtrip(t *testing.T) {
	for l := 1; l <= 4095; l += 17 {
		tx := make([]byte, l)
		for i := range tx {
			tx[i] = byte(i)
		}
		frames := Packetize(tx, ModeClassic)
		for _, f := range frames {
			if len(f) != 8 {
				t.Fatalf("length %d: classic frame not 8 bytes: %d", l, len(f))
			}
		}
		got := reassemble(t, ModeClassic, frames)
		if !bytes.Equal(got, tx) {
			t.Fatalf("length %d: roundtrip mismatch, got %d bytes want %d", l, len(got), len(tx))
		}
	}
}

func TestPacketizeClassicExtendedLength(t *testing.T) {
	tx := make([]byte, 5000)
	for i := range tx {
		tx[i] = byte(i * 3)
	}
	frames := Packetize(tx, ModeClassic)
	if frames[0][0] != 0x10 || frames[0][1] != 0 {
		t.Fatalf("expected extended-length FF marker, got % x", frames[0][:2])
	}
	got := reassemble(t, ModeClassic, frames)
	if !bytes.Equal(got, tx) {
		t.Fatalf("extended-length roundtrip mismatch: got %d bytes want %d", len(got), len(tx))
	}
}

func TestPacketizeFDRoundtrip(t *testing.T) {
	for _, l := range []int{1, 7, 8, 61, 62, 63, 200, 4095} {
		tx := make([]byte, l)
		for i := range tx {
			tx[i] = byte(i)
		}
		frames := Packetize(tx, ModeFD)
		for _, f := range frames {
			valid := false
			for _, fl := range fdLengths {
				if len(f) == fl {
					valid = true
					break
				}
			}
			if !valid {
				t.Fatalf("length %d: frame of size %d not a valid FD length", l, len(f))
			}
		}
		got := reassemble(t, ModeFD, frames)
		if !bytes.Equal(got, tx) {
			t.Fatalf("FD length %d: roundtrip mismatch, got %d bytes want %d", l, len(got), len(tx))
		}
	}
}

// TestPacketizeFDUsesLargerQuanta guards against FD packetization
// degenerating into classic-sized 8-byte frames: a payload that needs
// only two frames in FD mode (FF<=62 + one CF) would need dozens of
// 7-byte classic CFs, so seeing a handful of frames, several of them
// above 8 bytes, is the signal that FD's larger quanta are in use.
func TestPacketizeFDUsesLargerQuanta(t *testing.T) {
	tx := make([]byte, 120)
	for i := range tx {
		tx[i] = byte(i)
	}
	frames := Packetize(tx, ModeFD)
	if len(frames) > 3 {
		t.Fatalf("expected FD to pack 120 bytes into a handful of frames, got %d", len(frames))
	}
	sawLargerThanClassic := false
	for _, f := range frames {
		if len(f) > 8 {
			sawLargerThanClassic = true
		}
	}
	if !sawLargerThanClassic {
		t.Fatalf("no FD frame exceeded classic's 8-byte length: %v", frames)
	}
	got := reassemble(t, ModeFD, frames)
	if !bytes.Equal(got, tx) {
		t.Fatalf("FD large-quanta roundtrip mismatch: got %d bytes want %d", len(got), len(tx))
	}
}

func TestPacketizeFDExtendedLength(t *testing.T) {
	tx := make([]byte, 5000)
	for i := range tx {
		tx[i] = byte(i * 7)
	}
	frames := Packetize(tx, ModeFD)
	if frames[0][0] != 0x10 || frames[0][1] != 0 {
		t.Fatalf("expected extended-length FF marker, got % x", frames[0][:2])
	}
	got := reassemble(t, ModeFD, frames)
	if !bytes.Equal(got, tx) {
		t.Fatalf("FD extended-length roundtrip mismatch: got %d bytes want %d", len(got), len(tx))
	}
}

func TestClassicConsecutiveFrameIndexWraps(t *testing.T) {
	tx := make([]byte, 200)
	frames := classicConsecutiveFrames(tx)
	if len(frames) < 17 {
		t.Fatalf("expected at least 17 CFs to exercise wraparound, got %d", len(frames))
	}
	for i, f := range frames {
		want := byte((i + 1) % 16)
		got := f[0] & 0x0F
		if got != want {
			t.Fatalf("frame %d: index got %d want %d", i, got, want)
		}
	}
	// The 16th consecutive frame (index 0-based 15) must wrap to 0.
	if frames[15][0]&0x0F != 0 {
		t.Fatalf("CF #16 did not wrap index to 0: got %d", frames[15][0]&0x0F)
	}
}

func TestQuantizeFD(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 5: 5, 9: 12, 13: 16, 63: 64, 64: 64}
	for n, want := range cases {
		if got := quantizeFD(n); got != want {
			t.Errorf("quantizeFD(%d) = %d, want %d", n, got, want)
		}
	}
}
