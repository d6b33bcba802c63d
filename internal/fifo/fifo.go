// Package fifo provides the circular reassembly buffer the DoCAN
// transport uses to accumulate a segmented payload across First Frame
// and Consecutive Frames. Adapted from the CANopen SDO client's
// block-transfer fifo: the CRC-threading parameter is dropped since
// none of the UDS services in scope here carry an end-to-end checksum.
package fifo

// Fifo is a circular byte buffer with one read cursor and one write
// cursor.
type Fifo struct {
	buffer   []byte
	writePos int
	readPos  int
}

func NewFifo(size int) *Fifo {
	return &Fifo{buffer: make([]byte, size)}
}

func (f *Fifo) Reset() {
	f.readPos = 0
	f.writePos = 0
}

func (f *Fifo) GetSpace() int {
	sizeLeft := f.readPos - f.writePos - 1
	if sizeLeft < 0 {
		sizeLeft += len(f.buffer)
	}
	return sizeLeft
}

func (f *Fifo) GetOccupied() int {
	sizeOccupied := f.writePos - f.readPos
	if sizeOccupied < 0 {
		sizeOccupied += len(f.buffer)
	}
	return sizeOccupied
}

// Write appends as much of buffer as fits before the fifo is full,
// returning the number of bytes actually written.
func (f *Fifo) Write(buffer []byte) int {
	written := 0
	for _, b := range buffer {
		next := f.writePos + 1
		if next == f.readPos || (next == len(f.buffer) && f.readPos == 0) {
			break
		}
		f.buffer[f.writePos] = b
		written++
		if next == len(f.buffer) {
			f.writePos = 0
		} else {
			f.writePos = next
		}
	}
	return written
}

// Read drains up to len(buffer) bytes into buffer, returning the
// number of bytes actually read.
func (f *Fifo) Read(buffer []byte) int {
	read := 0
	for i := range buffer {
		if f.readPos == f.writePos {
			break
		}
		buffer[i] = f.buffer[f.readPos]
		read++
		f.readPos++
		if f.readPos == len(f.buffer) {
			f.readPos = 0
		}
	}
	return read
}

// Bytes drains the entire occupied region into a freshly allocated
// slice, for callers that want the assembled payload in one call.
func (f *Fifo) Bytes() []byte {
	out := make([]byte, f.GetOccupied())
	f.Read(out)
	return out
}
