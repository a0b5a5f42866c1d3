//go:build darwin

package poller

import (
	"golang.org/x/sys/unix"
)

// KqueuePoller is a kqueue-based I/O multiplexer
type KqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t
	ready  []Event
}

// NewPoller creates a new Poller (macOS)
func NewPoller() (Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kqfd)

	return &KqueuePoller{
		kqfd:   kqfd,
		events: make([]unix.Kevent_t, 1024),
		ready:  make([]Event, 0, 1024),
	}, nil
}

// Add adds a file descriptor to the watch list
func (p *KqueuePoller) Add(fd int) error {
	// Level-triggered (no EV_CLEAR) for reliability
	return p.change(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE)
}

// Modify changes which readiness conditions are reported for fd
func (p *KqueuePoller) Modify(fd int, read, write bool) error {
	if err := p.toggle(fd, unix.EVFILT_READ, read); err != nil {
		return err
	}
	return p.toggle(fd, unix.EVFILT_WRITE, write)
}

// Remove removes a file descriptor from the watch list
func (p *KqueuePoller) Remove(fd int) error {
	if err := p.toggle(fd, unix.EVFILT_READ, false); err != nil {
		return err
	}
	return p.toggle(fd, unix.EVFILT_WRITE, false)
}

func (p *KqueuePoller) toggle(fd, filter int, on bool) error {
	if on {
		return p.change(fd, filter, unix.EV_ADD|unix.EV_ENABLE)
	}
	err := p.change(fd, filter, unix.EV_DELETE)
	if err == unix.ENOENT {
		// Filter was never registered
		return nil
	}
	return err
}

func (p *KqueuePoller) change(fd, filter, flags int) error {
	var ev unix.Kevent_t
	unix.SetKevent(&ev, fd, filter, flags)

	_, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

// Wait waits for I/O events
func (p *KqueuePoller) Wait(timeout int) ([]Event, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout) * 1e6)
		ts = &t
	}

	n, err := unix.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil && err != unix.EINTR {
		return nil, err
	}

	p.ready = p.ready[:0]
	for i := 0; i < n; i++ {
		ev := p.events[i]
		// EV_EOF on a read filter is delivered as readability: the
		// following read returns 0 and the owner sees end-of-stream.
		p.ready = append(p.ready, Event{
			Fd:       int(ev.Ident),
			Readable: ev.Filter == unix.EVFILT_READ,
			Writable: ev.Filter == unix.EVFILT_WRITE,
			Closed:   ev.Flags&unix.EV_ERROR != 0,
		})
	}

	return p.ready, nil
}

// Close closes the Poller
func (p *KqueuePoller) Close() error {
	return unix.Close(p.kqfd)
}
