// Package eventloop provides a single-goroutine, poll-based implementation
// of acd.EventLoop: a min-heap of pending timers plus readable-fd
// notification via unix.Poll. All registered callbacks run on the
// goroutine that calls Run.
package eventloop

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/athena-dhcpd/acd"
)

var _ acd.EventLoop = (*Loop)(nil)

type timerEntry struct {
	deadline time.Time
	priority int
	fn       func()
	id       uint64
	canceled bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type readerEntry struct {
	fd       int
	priority int
	fn       func()
	id       uint64
	canceled bool
}

// Loop is the concrete acd.EventLoop. Registration methods (AddTimer,
// AddReader, and handle Cancel) are safe to call from any goroutine; they
// update the timer heap and reader set under mu and write to a self-pipe
// to interrupt a blocked unix.Poll.
type Loop struct {
	mu      sync.Mutex
	timers  timerHeap
	readers map[uint64]*readerEntry
	nextID  uint64

	cmds chan func()

	wakeR, wakeW int

	closeOnce sync.Once
	closed    chan struct{}
}

// New allocates a Loop. Run must be called (typically in its own
// goroutine) before any registered timer or reader will fire.
func New() (*Loop, error) {
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK); err != nil {
		return nil, fmt.Errorf("eventloop: creating wake pipe: %w", err)
	}
	return &Loop{
		readers: make(map[uint64]*readerEntry),
		cmds:    make(chan func(), 64),
		wakeR:   fds[0],
		wakeW:   fds[1],
		closed:  make(chan struct{}),
	}, nil
}

func (l *Loop) Now() time.Time { return time.Now() }

func (l *Loop) wake() {
	var b [1]byte
	_, _ = unix.Write(l.wakeW, b[:])
}

// AddTimer schedules fn to run once after d, ordered by a min-heap keyed on
// deadline so Run only ever waits for the single nearest one.
func (l *Loop) AddTimer(d time.Duration, priority int, fn func()) (acd.TimerHandle, error) {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	entry := &timerEntry{deadline: time.Now().Add(d), priority: priority, fn: fn, id: id}
	heap.Push(&l.timers, entry)
	l.mu.Unlock()
	l.wake()
	return &timerHandle{loop: l, entry: entry}, nil
}

// AddReader registers fn to run whenever fd becomes readable, until the
// returned handle is cancelled.
func (l *Loop) AddReader(fd int, priority int, fn func()) (acd.IOHandle, error) {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	entry := &readerEntry{fd: fd, priority: priority, fn: fn, id: id}
	l.readers[id] = entry
	l.mu.Unlock()
	l.wake()
	return &ioHandle{loop: l, id: id}, nil
}

type timerHandle struct {
	loop  *Loop
	entry *timerEntry
}

func (h *timerHandle) Cancel() {
	h.loop.mu.Lock()
	h.entry.canceled = true
	h.loop.mu.Unlock()
}

type ioHandle struct {
	loop *Loop
	id   uint64
}

func (h *ioHandle) Cancel() {
	h.loop.mu.Lock()
	delete(h.loop.readers, h.id)
	h.loop.mu.Unlock()
	h.loop.wake()
}

// Run services timers and readers until ctx is cancelled. It owns the only
// goroutine on which registered callbacks execute.
func (l *Loop) Run(ctx context.Context) error {
	defer l.closeOnce.Do(func() {
		close(l.closed)
		_ = unix.Close(l.wakeR)
		_ = unix.Close(l.wakeW)
	})

	// A blocked unix.Poll only wakes on a registered fd or timer deadline;
	// without this, cancelling ctx while idle would never be noticed.
	go func() {
		select {
		case <-ctx.Done():
			l.wake()
		case <-l.closed:
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		timeout := l.nextTimeout()
		pollFds := l.buildPollSet()

		n, err := unix.Poll(pollFds, timeout)
		if err != nil && err != unix.EINTR {
			return fmt.Errorf("eventloop: poll: %w", err)
		}
		if n > 0 {
			l.drainWake(pollFds[0])
			l.dispatchReaders(pollFds[1:])
		}
		l.dispatchTimers()
	}
}

// nextTimeout returns the poll timeout in milliseconds until the nearest
// live timer, or -1 (block indefinitely) if none is pending.
func (l *Loop) nextTimeout() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	for l.timers.Len() > 0 && l.timers[0].canceled {
		heap.Pop(&l.timers)
	}
	if l.timers.Len() == 0 {
		return -1
	}
	d := time.Until(l.timers[0].deadline)
	if d <= 0 {
		return 0
	}
	return int(d.Milliseconds()) + 1
}

func (l *Loop) buildPollSet() []unix.PollFd {
	l.mu.Lock()
	defer l.mu.Unlock()

	fds := make([]unix.PollFd, 0, len(l.readers)+1)
	fds = append(fds, unix.PollFd{Fd: int32(l.wakeR), Events: unix.POLLIN})
	for _, r := range l.readers {
		fds = append(fds, unix.PollFd{Fd: int32(r.fd), Events: unix.POLLIN})
	}
	return fds
}

func (l *Loop) drainWake(wakeFd unix.PollFd) {
	if wakeFd.Revents&unix.POLLIN == 0 {
		return
	}
	var buf [64]byte
	for {
		n, err := unix.Read(l.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (l *Loop) dispatchReaders(fds []unix.PollFd) {
	var ready []*readerEntry
	l.mu.Lock()
	for _, pfd := range fds {
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
			continue
		}
		for _, r := range l.readers {
			if int32(r.fd) == pfd.Fd && !r.canceled {
				ready = append(ready, r)
			}
		}
	}
	l.mu.Unlock()

	for _, r := range ready {
		// A callback earlier in this round may have cancelled r.
		l.mu.Lock()
		live := l.readers[r.id] == r
		l.mu.Unlock()
		if live {
			r.fn()
		}
	}
}

func (l *Loop) dispatchTimers() {
	now := time.Now()
	for {
		var due *timerEntry
		l.mu.Lock()
		for l.timers.Len() > 0 {
			top := l.timers[0]
			if top.canceled {
				heap.Pop(&l.timers)
				continue
			}
			if top.deadline.After(now) {
				break
			}
			due = heap.Pop(&l.timers).(*timerEntry)
			break
		}
		l.mu.Unlock()

		if due == nil {
			return
		}
		due.fn()
	}
}
