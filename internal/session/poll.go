package session

import (
	"golang.org/x/sys/unix"
)

// Readiness reports the poll state of one file descriptor.
type Readiness struct {
	Readable bool
	HangUp   bool
}

// Wait blocks until at least one of the given descriptors is readable
// or hung up. Ordering between simultaneously ready descriptors is not
// guaranteed; callers must service every reported one. The wait itself
// is unbounded and is not woken by process signals; callers that need
// cancellation include a descriptor for it, such as the read end of a
// pipe closed on shutdown. EINTR is returned, not retried.
func Wait(fds ...int) ([]Readiness, error) {
	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}

	if _, err := unix.Poll(pfds, -1); err != nil {
		return nil, err
	}

	out := make([]Readiness, len(fds))
	for i, p := range pfds {
		out[i] = Readiness{
			Readable: p.Revents&unix.POLLIN != 0,
			HangUp:   p.Revents&(unix.POLLHUP|unix.POLLERR) != 0,
		}
	}
	return out, nil
}
