//go:build linux

package arpsocket

import (
	"fmt"
	"net"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/athena-dhcpd/acd/internal/arpwire"
)

// rawSocket is the Linux AF_PACKET/SOCK_RAW implementation of Socket.
type rawSocket struct {
	fd      int
	ifindex int
	mac     net.HardwareAddr
}

// Open binds an AF_PACKET/SOCK_RAW socket to ifindex, restricted by a
// kernel-side BPF filter to ARP frames not sourced from mac, and puts it in
// non-blocking mode. This is the default production acd.ArpSocket backend.
func Open(ifindex int, mac net.HardwareAddr) (Socket, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_NONBLOCK, int(htons(unix.ETH_P_ARP)))
	if err != nil {
		return nil, fmt.Errorf("arpsocket: opening AF_PACKET socket: %w", err)
	}

	addr := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ARP),
		Ifindex:  ifindex,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("arpsocket: binding to ifindex %d: %w", ifindex, err)
	}

	filter, err := arpFilter(mac)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("arpsocket: assembling BPF filter: %w", err)
	}
	fprog := unix.SockFprog{
		Len:    uint16(len(filter)),
		Filter: &filter[0],
	}
	if err := unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &fprog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("arpsocket: attaching BPF filter: %w", err)
	}

	return &rawSocket{fd: fd, ifindex: ifindex, mac: append(net.HardwareAddr(nil), mac...)}, nil
}

// arpFilter builds a classic BPF program that accepts ARP frames
// (EtherType 0x0806) whose source MAC is not ours, rejecting everything
// else in the kernel so user space never sees our own probes/announcements
// echoed back or unrelated traffic.
func arpFilter(mac net.HardwareAddr) ([]unix.SockFilter, error) {
	m := uint32(mac[2])<<24 | uint32(mac[3])<<16 | uint32(mac[4])<<8 | uint32(mac[5])
	prog := []bpf.Instruction{
		// EtherType at offset 12 must be ARP.
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: arpwire.EtherTypeARP, SkipFalse: 6},
		// Accept if the last 4 bytes of the source MAC (offset 8) differ from ours.
		bpf.LoadAbsolute{Off: 8, Size: 4},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: m, SkipFalse: 2},
		// Otherwise reject if the first 2 bytes of the source MAC (offset 6) match ours too.
		bpf.LoadAbsolute{Off: 6, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(mac[0])<<8 | uint32(mac[1]), SkipTrue: 1},
		bpf.RetConstant{Val: 1518},
		bpf.RetConstant{Val: 0},
		bpf.RetConstant{Val: 0},
	}

	raw, err := bpf.Assemble(prog)
	if err != nil {
		return nil, err
	}
	filter := make([]unix.SockFilter, len(raw))
	for i, ins := range raw {
		filter[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return filter, nil
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

func (s *rawSocket) Fd() int { return s.fd }

func (s *rawSocket) SendProbe(targetIP net.IP) error {
	return s.send(arpwire.Probe(s.mac, targetIP))
}

func (s *rawSocket) SendAnnouncement(ip net.IP) error {
	return s.send(arpwire.Announcement(s.mac, ip))
}

func (s *rawSocket) send(frame []byte) error {
	addr := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ARP),
		Ifindex:  s.ifindex,
		Halen:    6,
	}
	copy(addr.Addr[:], arpwireBroadcast())
	if err := unix.Sendto(s.fd, frame, 0, addr); err != nil {
		return fmt.Errorf("arpsocket: sendto: %w", err)
	}
	return nil
}

func arpwireBroadcast() net.HardwareAddr {
	return net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
}

// Recv returns the next well-formed ARP frame, silently skipping anything
// shorter than a full frame rather than surfacing that as an error the
// caller would have to special-case.
func (s *rawSocket) Recv() (arpwire.Frame, error) {
	buf := make([]byte, 128)
	for {
		n, _, err := unix.Recvfrom(s.fd, buf, 0)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				return arpwire.Frame{}, ErrWouldBlock
			}
			return arpwire.Frame{}, fmt.Errorf("arpsocket: recvfrom: %w", err)
		}
		frame, err := arpwire.Parse(buf[:n])
		if err != nil {
			continue
		}
		return frame, nil
	}
}

func (s *rawSocket) Close() error {
	return unix.Close(s.fd)
}
