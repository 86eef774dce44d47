//go:build linux

package arpsocket

import (
	"encoding/binary"
	"net"
	"testing"

	"golang.org/x/net/bpf"
)

// runFilter re-disassembles the filter built for mac and runs it against raw
// against a pure-Go BPF VM, avoiding the need for a real AF_PACKET socket.
func runFilter(t *testing.T, mac net.HardwareAddr, raw []byte) int {
	t.Helper()

	filter, err := arpFilter(mac)
	if err != nil {
		t.Fatalf("arpFilter: %v", err)
	}

	rawInsns := make([]bpf.RawInstruction, len(filter))
	for i, f := range filter {
		rawInsns[i] = bpf.RawInstruction{Op: f.Code, Jt: f.Jt, Jf: f.Jf, K: f.K}
	}
	insns, err := bpf.Disassemble(rawInsns)
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	vm, err := bpf.NewVM(insns)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	n, err := vm.Run(raw)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return n
}

func ethFrame(etherType uint16, srcMAC net.HardwareAddr) []byte {
	buf := make([]byte, 60)
	copy(buf[0:6], net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	copy(buf[6:12], srcMAC)
	binary.BigEndian.PutUint16(buf[12:14], etherType)
	return buf
}

func TestArpFilterAcceptsOtherMAC(t *testing.T) {
	ours := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	other := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}

	n := runFilter(t, ours, ethFrame(0x0806, other))
	if n == 0 {
		t.Errorf("expected ARP frame from another MAC to be accepted, got 0")
	}
}

func TestArpFilterRejectsOwnMAC(t *testing.T) {
	ours := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

	n := runFilter(t, ours, ethFrame(0x0806, ours))
	if n != 0 {
		t.Errorf("expected ARP frame echoed from our own MAC to be rejected, got %d", n)
	}
}

func TestArpFilterRejectsNonARP(t *testing.T) {
	ours := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	other := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}

	n := runFilter(t, ours, ethFrame(0x0800, other))
	if n != 0 {
		t.Errorf("expected non-ARP frame to be rejected, got %d", n)
	}
}
