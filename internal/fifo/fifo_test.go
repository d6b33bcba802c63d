package fifo

import "testing"

func TestFifoWrite(t *testing.T) {
	f := NewFifo(100)
	res := f.Write([]byte{1, 2, 3, 4, 5})
	if res != 5 {
		t.Errorf("written only %v", res)
	}
	if f.writePos != 5 {
		t.Errorf("write position is %v", f.writePos)
	}
	res = f.Write(make([]byte, 500))
	if res != 94 {
		t.Errorf("wrote %v", res)
	}
	res = f.Write([]byte{1})
	if res != 0 {
		t.Error("expected fifo full")
	}
	// Free up some space by reading then rewriting
	f.Read(make([]byte, 10))
	res = f.Write(make([]byte, 10))
	if res != 10 {
		t.Error()
	}
}

func TestFifoRead(t *testing.T) {
	f := NewFifo(100)
	buf := make([]byte, 10)
	if res := f.Read(buf); res != 0 {
		t.Error()
	}
	res := f.Write([]byte{1, 2, 3, 4})
	if res != 4 {
		t.Error()
	}
	if res := f.Read(buf); res != 4 {
		t.Errorf("res is %v", res)
	}
}

func TestFifoBytesRoundtrip(t *testing.T) {
	f := NewFifo(32)
	payload := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	f.Write(payload)
	got := f.Bytes()
	if len(got) != len(payload) {
		t.Fatalf("got %d bytes, want %d", len(got), len(payload))
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d: got %x want %x", i, got[i], payload[i])
		}
	}
	if f.GetOccupied() != 0 {
		t.Error("expected fifo drained")
	}
}
