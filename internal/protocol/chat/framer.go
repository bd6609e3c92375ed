package chat

import (
	"bytes"
	"fmt"
)

// LineFramer accumulates raw byte chunks from one connection and splits them
// into complete command lines. Each connection owns exactly one framer;
// framers share no state.
//
// A chunk may contain zero, one, or many line feeds. Every complete segment
// is returned in arrival order; the trailing partial segment (possibly
// empty) is retained as the prefix of the next chunk. No line is ever
// returned twice.
type LineFramer struct {
	buf     []byte
	maxLine int
}

// NewLineFramer returns a framer that rejects buffered partial lines longer
// than maxLine bytes. maxLine <= 0 disables the bound.
func NewLineFramer(maxLine int) *LineFramer {
	return &LineFramer{maxLine: maxLine}
}

// Push appends chunk to the accumulation buffer and returns all complete
// lines, without their trailing line feed. Carriage returns are left in
// place; the normalizer folds them later as ordinary whitespace.
//
// Push returns an error when the retained partial line exceeds the
// configured bound. The connection owner is expected to drop the client;
// the framer itself is unusable afterwards.
func (f *LineFramer) Push(chunk []byte) ([]string, error) {
	f.buf = append(f.buf, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(f.buf, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, string(f.buf[:idx]))
		f.buf = f.buf[idx+1:]
	}

	if f.maxLine > 0 && len(f.buf) > f.maxLine {
		return lines, fmt.Errorf("line exceeds %d bytes", f.maxLine)
	}
	return lines, nil
}

// Pending returns the number of buffered bytes awaiting a line feed.
func (f *LineFramer) Pending() int {
	return len(f.buf)
}
