// Package acd implements RFC 5227 IPv4 Address Conflict Detection: probing
// a candidate address over ARP, announcing it once clear, and defending it
// against later conflicts. It owns no UI, no configuration parsing, no
// routing — callers supply an EventLoop and an ArpSocket (or let Start use
// the default raw-socket implementation) and receive BIND/CONFLICT/STOP
// events through a callback.
package acd

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/athena-dhcpd/acd/internal/events"
	"github.com/athena-dhcpd/acd/internal/metrics"
)

// RFC 5227 §2.1.1 timing constants.
const (
	probeWait         = 1 * time.Second
	probeNum          = 3
	probeMin          = 1 * time.Second
	probeMax          = 2 * time.Second
	announceWait      = 2 * time.Second
	announceNum       = 2
	announceInterval  = 2 * time.Second
	maxConflicts      = 10
	rateLimitInterval = 60 * time.Second
	defendInterval    = 10 * time.Second
)

// Session is a single ACD probe/announce/defend run over one (interface,
// MAC, address) tuple. The zero value is not usable; construct with New.
//
// A Session performs no locking of its own: every method must be called
// from the goroutine that owns the attached EventLoop, a single-threaded
// cooperative model. Nothing here blocks except the underlying
// ArpSocket's non-blocking Recv.
type Session struct {
	state State

	ifindex int
	mac     net.HardwareAddr
	address net.IP

	nIteration   int
	nConflict    int
	defendWindow time.Time

	sock          ArpSocket
	socketFactory SocketFactory

	loop          EventLoop
	eventPriority int
	timer         TimerHandle
	io            IOHandle

	callback Callback
	userdata any

	bus *events.Bus

	logger *slog.Logger
}

// New returns a Session in state INIT, unattached and unconfigured.
func New() *Session {
	return &Session{
		state:         StateInit,
		ifindex:       -1,
		socketFactory: defaultSocketFactory,
		logger:        slog.Default(),
	}
}

// SetLogger overrides the default slog logger. Must be called before Start.
func (s *Session) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetCallback installs the event sink. May be called at any time.
func (s *Session) SetCallback(cb Callback, userdata any) {
	s.callback = cb
	s.userdata = userdata
}

// SetEventBus adds an optional secondary fan-out: every event still reaches
// SetCallback first, then is also published on bus for embedders that
// aggregate several sessions' events in one place.
func (s *Session) SetEventBus(bus *events.Bus) {
	s.bus = bus
}

// AttachEventLoop binds the session to loop. Returns ErrBusy if already
// attached.
func (s *Session) AttachEventLoop(loop EventLoop, priority int) error {
	if s.loop != nil {
		return ErrBusy
	}
	if loop == nil {
		return ErrInvalidArgument
	}
	s.loop = loop
	s.eventPriority = priority
	return nil
}

// DetachEventLoop drops the event loop reference. Requires the session not
// be running.
func (s *Session) DetachEventLoop() error {
	if s.IsRunning() {
		return ErrBusy
	}
	s.loop = nil
	return nil
}

// SetIfindex sets the interface index. Requires state INIT.
func (s *Session) SetIfindex(ifindex int) error {
	if ifindex <= 0 {
		return ErrInvalidArgument
	}
	if s.state != StateInit {
		return ErrBusy
	}
	s.ifindex = ifindex
	return nil
}

// SetMAC sets the transmit hardware address. Requires state INIT.
func (s *Session) SetMAC(mac net.HardwareAddr) error {
	if len(mac) != 6 || isZeroMAC(mac) {
		return ErrInvalidArgument
	}
	if s.state != StateInit {
		return ErrBusy
	}
	s.mac = append(net.HardwareAddr(nil), mac...)
	return nil
}

// SetAddress sets the candidate IPv4 address. Requires state INIT.
func (s *Session) SetAddress(addr net.IP) error {
	addr4 := addr.To4()
	if addr4 == nil || addr4.Equal(net.IPv4zero) {
		return ErrInvalidArgument
	}
	if s.state != StateInit {
		return ErrBusy
	}
	s.address = append(net.IP(nil), addr4...)
	return nil
}

// IsRunning reports whether the session has left INIT.
func (s *Session) IsRunning() bool {
	return s.state != StateInit
}

// State returns the current state, mainly useful for tests and metrics.
func (s *Session) State() State {
	return s.state
}

func isZeroMAC(mac net.HardwareAddr) bool {
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}

// Start validates preconditions, opens the ARP socket, subscribes to its
// readability, schedules the t=0 timer, and enters STARTED; that timer
// drives the STARTED->WAITING_PROBE transition.
func (s *Session) Start() error {
	if s.loop == nil {
		return ErrNotAttached
	}
	if s.ifindex <= 0 || s.address == nil || len(s.mac) == 0 {
		return ErrInvalidArgument
	}
	if s.state != StateInit {
		return ErrBusy
	}

	sock, err := s.socketFactory(s.ifindex, s.mac)
	if err != nil {
		return fmt.Errorf("acd: opening ARP socket: %w", err)
	}
	s.sock = sock

	// defendWindow was already zeroed by the reset() that brought the
	// session back to INIT (or is still its zero value, for a session
	// that's never been started). nConflict deliberately is not reset
	// here — it persists across stop/start cycles so the rate limit in
	// the STARTED->WAITING_PROBE transition can actually accumulate
	// across repeated conflicts. It is zeroed only when a rate-limited
	// cycle's delay is scheduled (before its first probe), or on the first
	// successful announcement.

	io, err := s.loop.AddReader(sock.Fd(), s.eventPriority, s.onReadable)
	if err != nil {
		_ = sock.Close()
		s.sock = nil
		return fmt.Errorf("acd: registering ARP socket: %w", err)
	}
	s.io = io

	if err := s.scheduleWakeup(0, 0); err != nil {
		s.reset()
		return fmt.Errorf("acd: scheduling initial timer: %w", err)
	}

	s.setState(StateStarted, true)
	metrics.SessionsRunning.Inc()
	s.logger.Debug("acd session started",
		"ifindex", s.ifindex, "address", s.address.String(), "mac", s.mac.String())
	return nil
}

// Stop unconditionally resets the session to INIT and emits STOP, even if
// it is already INIT. Idempotent.
func (s *Session) Stop() error {
	wasRunning := s.state != StateInit
	s.reset()
	s.logger.Debug("acd session stopped", "address", addressString(s.address))
	s.notify(EventStop)
	if wasRunning {
		metrics.SessionsRunning.Dec()
	}
	return nil
}

func addressString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

// reset cancels the timer and rx subscription, closes the socket, clears
// defendWindow, and forces state back to INIT. The socket and rx handle are
// non-nil iff state != INIT; the timer handle is non-nil iff state is
// neither INIT nor RUNNING. nConflict is left untouched — see Start.
func (s *Session) reset() {
	if s.timer != nil {
		s.timer.Cancel()
		s.timer = nil
	}
	if s.io != nil {
		s.io.Cancel()
		s.io = nil
	}
	if s.sock != nil {
		_ = s.sock.Close()
		s.sock = nil
	}
	s.defendWindow = time.Time{}
	s.setState(StateInit, true)
}

func (s *Session) notify(ev Event) {
	if s.callback != nil {
		s.callback(s, ev, s.userdata)
	}
	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:      busEventType(ev),
			Timestamp: s.now(),
			Session:   s.sessionLabel(),
			ACD: &events.ACDData{
				Ifindex:      s.ifindex,
				Address:      s.address,
				MAC:          s.mac,
				ConflictSeen: s.nConflict,
			},
		})
	}
}

func busEventType(ev Event) events.EventType {
	switch ev {
	case EventBind:
		return events.EventBind
	case EventConflict:
		return events.EventConflict
	default:
		return events.EventStop
	}
}

func (s *Session) sessionLabel() string {
	return fmt.Sprintf("%d/%s", s.ifindex, addressString(s.address))
}

// now returns the current time from the attached loop if available,
// falling back to wall-clock for calls made before/after attachment (e.g.
// the STOP emitted by a Stop() on a never-started session).
func (s *Session) now() time.Time {
	if s.loop != nil {
		return s.loop.Now()
	}
	return time.Now()
}

// scheduleWakeup replaces the session's single timer with one firing after
// base + U[0,spread). At most one timer is ever armed: the old handle, if
// any, is cancelled first.
func (s *Session) scheduleWakeup(base, spread time.Duration) error {
	if s.timer != nil {
		s.timer.Cancel()
		s.timer = nil
	}
	delay := base + jitter(spread)
	timer, err := s.loop.AddTimer(delay, s.eventPriority, s.onTimeout)
	if err != nil {
		return err
	}
	s.timer = timer
	return nil
}

// onTimeout is the single timer callback for every state. STARTED's
// handler both transitions to WAITING_PROBE and schedules the jittered
// pre-probe delay in the same call; the first probe itself is sent from
// WAITING_PROBE's own invocation of this handler, a two-hop entry into
// probing.
func (s *Session) onTimeout() {
	switch s.state {

	case StateStarted:
		s.setState(StateWaitingProbe, true)

		if s.nConflict >= maxConflicts {
			s.logger.Warn("conflict rate limit reached, delaying next probe cycle",
				"address", s.address.String(), "delay", rateLimitInterval.String())
			metrics.RateLimitActivations.Inc()
			if err := s.scheduleWakeup(rateLimitInterval, probeWait); err != nil {
				s.fail(err)
				return
			}
			s.nConflict = 0
		} else if err := s.scheduleWakeup(0, probeWait); err != nil {
			s.fail(err)
			return
		}

	case StateWaitingProbe, StateProbing:
		if err := s.sock.SendProbe(s.address); err != nil {
			s.fail(fmt.Errorf("sending ARP probe: %w", err))
			return
		}
		metrics.ProbesSent.Inc()
		s.logger.Debug("ARP probe sent", "address", s.address.String())

		if s.nIteration < probeNum-2 {
			s.setState(StateProbing, false)
			if err := s.scheduleWakeup(probeMin, probeMax-probeMin); err != nil {
				s.fail(err)
				return
			}
		} else {
			s.setState(StateWaitingAnnounce, true)
			if err := s.scheduleWakeup(announceWait, 0); err != nil {
				s.fail(err)
				return
			}
		}

	case StateAnnouncing:
		if s.nIteration >= announceNum-1 {
			s.setState(StateRunning, false)
			s.timer = nil
			return
		}
		s.sendAnnounceAndReschedule()

	case StateWaitingAnnounce:
		s.sendAnnounceAndReschedule()
	}
}

// sendAnnounceAndReschedule handles the WAITING_ANNOUNCE and non-terminal
// ANNOUNCING timer actions, which are identical apart from the BIND
// notification on the very first announcement.
func (s *Session) sendAnnounceAndReschedule() {
	if err := s.sock.SendAnnouncement(s.address); err != nil {
		s.fail(fmt.Errorf("sending ARP announcement: %w", err))
		return
	}
	metrics.AnnouncementsSent.WithLabelValues("bind").Inc()
	s.logger.Debug("ARP announcement sent", "address", s.address.String())

	wasFirst := s.state == StateWaitingAnnounce
	s.setState(StateAnnouncing, false)

	if err := s.scheduleWakeup(announceInterval, 0); err != nil {
		s.fail(err)
		return
	}

	if wasFirst {
		s.nConflict = 0
		s.logger.Debug("acd bound", "address", s.address.String())
		s.notify(EventBind)
	}
}

// onReadable drains whatever ARP frames are currently available on the
// socket and classifies each against the current state.
func (s *Session) onReadable() {
	for s.sock != nil {
		frame, err := s.sock.Recv()
		if err != nil {
			if err == ErrWouldBlock {
				return
			}
			s.fail(fmt.Errorf("receiving ARP frame: %w", err))
			return
		}
		s.handleFrame(frame)
	}
}

func (s *Session) handleFrame(frame Frame) {
	switch s.state {

	case StateAnnouncing, StateRunning:
		if !isConflict(frame, s.address) {
			metrics.FramesReceived.WithLabelValues("benign").Inc()
			return
		}
		now := s.loop.Now()
		if now.After(s.defendWindow) {
			s.defendWindow = now.Add(defendInterval)
			if err := s.sock.SendAnnouncement(s.address); err != nil {
				s.fail(fmt.Errorf("sending defence announcement: %w", err))
				return
			}
			metrics.AnnouncementsSent.WithLabelValues("defend").Inc()
			metrics.FramesReceived.WithLabelValues("defended").Inc()
			s.logger.Warn("defending address against conflict",
				"address", s.address.String(), "responder_mac", frame.SenderMAC.String())
		} else {
			metrics.FramesReceived.WithLabelValues("conflict").Inc()
			s.onConflict()
		}

	case StateWaitingProbe, StateProbing, StateWaitingAnnounce:
		// Before announcing, any frame naming our address as sender or
		// target is a conflict (a reply, an announcement, or another host's
		// probe). The default socket filters only by EtherType and source
		// MAC, so frames naming neither are unrelated traffic and ignored.
		if !frame.SenderIP.Equal(s.address) && !frame.TargetIP.Equal(s.address) {
			metrics.FramesReceived.WithLabelValues("benign").Inc()
			return
		}
		metrics.FramesReceived.WithLabelValues("conflict").Inc()
		s.onConflict()
	}
}

// onConflict increments n_conflict, resets to INIT, and notifies the
// embedder — shared by both the pre-announce path and the
// inside-defend-window path in ANNOUNCING/RUNNING.
func (s *Session) onConflict() {
	s.nConflict++
	metrics.ConflictsDetected.WithLabelValues(s.state.String()).Inc()
	s.logger.Warn("ARP conflict detected", "address", s.address.String(), "n_conflict", s.nConflict)
	s.reset()
	metrics.SessionsRunning.Dec()
	s.notify(EventConflict)
}

// fail folds any in-flight fatal error into the same reset+STOP path a
// user-initiated Stop takes.
func (s *Session) fail(err error) {
	wasRunning := s.state != StateInit
	s.logger.Error("acd session failed, resetting", "error", err)
	metrics.IOErrors.WithLabelValues("session").Inc()
	s.reset()
	s.notify(EventStop)
	if wasRunning {
		metrics.SessionsRunning.Dec()
	}
}

// metricsStateTransition records a state.go setState transition, for the
// reset-to-INIT path and normal advances alike.
func metricsStateTransition(new State) {
	metrics.StateTransitions.WithLabelValues(new.String()).Inc()
}
