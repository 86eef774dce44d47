// Package arpsocket provides the default production acd.ArpSocket: a raw
// AF_PACKET socket bound to ETH_P_ARP on one interface, with a kernel-side
// BPF filter restricting delivery to ARP frames not sent by our own MAC.
package arpsocket

import (
	"errors"
	"net"

	"github.com/athena-dhcpd/acd/internal/arpwire"
)

// ErrWouldBlock is returned by Socket.Recv when no frame is currently
// queued. Defined locally (rather than importing the root acd package's
// sentinel) because this package must stay importable from acd's
// New()/defaultSocketFactory without creating an import cycle.
var ErrWouldBlock = errors.New("arpsocket: recv would block")

// Socket is the raw-I/O surface the root package adapts into acd.ArpSocket.
type Socket interface {
	Fd() int
	SendProbe(targetIP net.IP) error
	SendAnnouncement(ip net.IP) error
	Recv() (arpwire.Frame, error)
	Close() error
}
