package poller

// Event is a readiness notification for one file descriptor
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	// Closed reports an error or hang-up condition on the descriptor
	Closed bool
}

// Poller is the I/O multiplexing interface.
// Descriptors are level-triggered: an event repeats until the condition is consumed.
type Poller interface {
	// Add watches fd for readability
	Add(fd int) error
	// Modify replaces the interest set of a watched fd
	Modify(fd int, read, write bool) error
	Remove(fd int) error
	// Wait blocks for up to timeout milliseconds. The returned slice is
	// reused by the next call.
	Wait(timeout int) ([]Event, error)
	Close() error
}
