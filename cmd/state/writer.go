package state

import (
	"io"
	"sync"
)

// Writer serializes writes to one of the standard streams. Writes go to Out,
// which may translate color escape codes; RawOut is the underlying stream.
type Writer struct {
	RawOut io.Writer
	Out    io.Writer
	Mutex  *sync.Mutex
	IsTTY  bool
}

// NewWriter returns a Writer that guards out with mx.
func NewWriter(raw, out io.Writer, isTTY bool, mx *sync.Mutex) *Writer {
	return &Writer{RawOut: raw, Out: out, Mutex: mx, IsTTY: isTTY}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.Mutex.Lock()
	defer w.Mutex.Unlock()
	return w.Out.Write(p)
}
