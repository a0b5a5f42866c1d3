package buffer

import "bytes"

// Queue is an append-only byte queue that is drained from the front.
// It backs both the input side (socket reads appended, parser removes) and
// the output side (handler appends, socket writes remove) of a connection.
//
// Slices returned by Bytes and Next alias the queue's storage and are only
// valid until the next call to Write, WriteString or WriteByte.
type Queue struct {
	buf []byte
	off int
}

// Len returns the number of queued bytes
func (q *Queue) Len() int {
	return len(q.buf) - q.off
}

// Cap returns the capacity of the underlying storage
func (q *Queue) Cap() int {
	return cap(q.buf)
}

// Bytes returns the queued bytes without removing them
func (q *Queue) Bytes() []byte {
	return q.buf[q.off:]
}

// Write appends p to the queue. It never fails.
func (q *Queue) Write(p []byte) (int, error) {
	q.makeRoom(len(p))
	q.buf = append(q.buf, p...)
	return len(p), nil
}

// WriteString appends s to the queue. It never fails.
func (q *Queue) WriteString(s string) (int, error) {
	q.makeRoom(len(s))
	q.buf = append(q.buf, s...)
	return len(s), nil
}

// WriteByte appends c to the queue. It never fails.
func (q *Queue) WriteByte(c byte) error {
	q.makeRoom(1)
	q.buf = append(q.buf, c)
	return nil
}

// IndexByte returns the offset of the first c at or after from, relative to
// the front of the queue, or -1.
func (q *Queue) IndexByte(c byte, from int) int {
	if from < 0 {
		from = 0
	}
	if from >= q.Len() {
		return -1
	}
	i := bytes.IndexByte(q.buf[q.off+from:], c)
	if i < 0 {
		return -1
	}
	return from + i
}

// Next removes n bytes from the front of the queue and returns them.
// Asking for more than Len bytes is a caller bug and panics.
func (q *Queue) Next(n int) []byte {
	if n < 0 || n > q.Len() {
		panic("buffer: Next beyond queued length")
	}
	b := q.buf[q.off : q.off+n : q.off+n]
	q.off += n
	return b
}

// Discard removes n bytes from the front of the queue
func (q *Queue) Discard(n int) {
	q.Next(n)
}

// Reset empties the queue but keeps its storage
func (q *Queue) Reset() {
	q.buf = q.buf[:0]
	q.off = 0
}

// Release empties the queue and drops its storage
func (q *Queue) Release() {
	q.buf = nil
	q.off = 0
}

// makeRoom reclaims consumed space at the front before an append of n bytes
func (q *Queue) makeRoom(n int) {
	if q.off == 0 {
		return
	}
	if q.off == len(q.buf) {
		q.buf = q.buf[:0]
		q.off = 0
		return
	}
	// Slide live bytes down only when the append would otherwise grow the
	// slice and at least half of it is already consumed.
	if len(q.buf)+n > cap(q.buf) && q.off >= q.Len() {
		m := copy(q.buf, q.buf[q.off:])
		q.buf = q.buf[:m]
		q.off = 0
	}
}
