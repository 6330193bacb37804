// Package pipe provides a wrapper to create a pipe and
// collect the output of a child process from the reader side
package pipe

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Buffer is used to create a writable pipe and read
// at most max bytes to a buffer. Max <= 0 collects everything.
type Buffer struct {
	W      *os.File
	Max    int64
	Buffer *bytes.Buffer
	Done   <-chan struct{}
}

// NewPipe create a pipe with a goroutine to copy its read-end to writer
// returns the write end and signal for finish
// n <= 0 copies until EOF
// caller need to close w
func NewPipe(writer io.Writer, n int64) (<-chan struct{}, *os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, errors.Wrap(err, "pipe")
	}
	done := make(chan struct{})
	go func() {
		if n > 0 {
			io.CopyN(writer, r, n)
		} else {
			io.Copy(writer, r)
		}
		close(done)
		// keep draining so the writer never blocks or gets SIGPIPE
		io.Copy(io.Discard, r)
		r.Close()
	}()
	return done, w, nil
}

// NewBuffer creates a os pipe, caller need to
// caller need to close w
// Notice: if rely on done for finish, w need be closed in parent process
func NewBuffer(max int64) (*Buffer, error) {
	buffer := new(bytes.Buffer)
	limit := max
	if limit > 0 {
		// one extra byte tells truncated output apart
		limit++
	}
	done, w, err := NewPipe(buffer, limit)
	if err != nil {
		return nil, err
	}
	return &Buffer{
		W:      w,
		Max:    max,
		Buffer: buffer,
		Done:   done,
	}, nil
}

// Bytes returns the collected output, at most Max bytes. Only valid after Done.
func (b *Buffer) Bytes() []byte {
	out := b.Buffer.Bytes()
	if b.Max > 0 && int64(len(out)) > b.Max {
		out = out[:b.Max]
	}
	return out
}

// Truncated reports whether the writer produced more than Max bytes.
// Only valid after Done.
func (b *Buffer) Truncated() bool {
	return b.Max > 0 && int64(b.Buffer.Len()) > b.Max
}

func (b Buffer) String() string {
	if b.Max <= 0 {
		return fmt.Sprintf("Buffer[%d]", b.Buffer.Len())
	}
	return fmt.Sprintf("Buffer[%d/%d]", b.Buffer.Len(), b.Max)
}
