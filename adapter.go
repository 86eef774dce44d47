package acd

import (
	"errors"
	"net"

	"github.com/athena-dhcpd/acd/internal/arpsocket"
)

// defaultSocketFactory is the SocketFactory New() installs. It defers to
// internal/arpsocket for the actual raw-socket/BPF work and adapts its
// arpsocket.Socket/arpwire.Frame types to this package's ArpSocket/Frame,
// keeping internal/arpsocket free of any dependency back on package acd.
func defaultSocketFactory(ifindex int, mac net.HardwareAddr) (ArpSocket, error) {
	sock, err := arpsocket.Open(ifindex, mac)
	if err != nil {
		return nil, err
	}
	return &socketAdapter{sock}, nil
}

type socketAdapter struct {
	arpsocket.Socket
}

func (a *socketAdapter) Recv() (Frame, error) {
	f, err := a.Socket.Recv()
	if err != nil {
		if errors.Is(err, arpsocket.ErrWouldBlock) {
			return Frame{}, ErrWouldBlock
		}
		return Frame{}, err
	}
	return Frame{
		SenderMAC: f.SenderMAC,
		SenderIP:  f.SenderIP,
		TargetMAC: f.TargetMAC,
		TargetIP:  f.TargetIP,
	}, nil
}
