//go:build !linux

package arpsocket

import (
	"fmt"
	"net"
	"runtime"
)

// Open is unimplemented outside Linux: AF_PACKET and classic BPF attachment
// are Linux-specific. Callers on other platforms must supply their own
// acd.ArpSocket implementation via acd.Session's socket factory.
func Open(ifindex int, mac net.HardwareAddr) (Socket, error) {
	return nil, fmt.Errorf("arpsocket: raw ARP sockets unsupported on %s", runtime.GOOS)
}
