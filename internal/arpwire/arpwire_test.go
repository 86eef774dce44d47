package arpwire

import (
	"bytes"
	"net"
	"testing"
)

var testMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
var testIP = net.IPv4(169, 254, 7, 7)

func TestProbeFields(t *testing.T) {
	raw := Probe(testMAC, testIP)
	if len(raw) != FrameLen {
		t.Fatalf("len = %d, want %d", len(raw), FrameLen)
	}

	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Operation != opRequest {
		t.Errorf("Operation = %d, want %d", f.Operation, opRequest)
	}
	if !f.SenderIP.Equal(net.IPv4zero) {
		t.Errorf("SenderIP = %v, want 0.0.0.0", f.SenderIP)
	}
	if !f.TargetIP.Equal(testIP) {
		t.Errorf("TargetIP = %v, want %v", f.TargetIP, testIP)
	}
	if !bytes.Equal(f.SenderMAC, testMAC) {
		t.Errorf("SenderMAC = %v, want %v", f.SenderMAC, testMAC)
	}
	if !bytes.Equal(f.TargetMAC, zeroMAC) {
		t.Errorf("TargetMAC = %v, want zero", f.TargetMAC)
	}
}

func TestAnnouncementFields(t *testing.T) {
	raw := Announcement(testMAC, testIP)
	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !f.SenderIP.Equal(testIP) || !f.TargetIP.Equal(testIP) {
		t.Errorf("sender/target IP = %v/%v, want both %v", f.SenderIP, f.TargetIP, testIP)
	}
	if !bytes.Equal(f.SenderMAC, testMAC) {
		t.Errorf("SenderMAC = %v, want %v", f.SenderMAC, testMAC)
	}
}

func TestParseShortFrame(t *testing.T) {
	_, err := Parse(make([]byte, 20))
	if err != ErrShortFrame {
		t.Errorf("err = %v, want ErrShortFrame", err)
	}
}

func TestEtherType(t *testing.T) {
	raw := Probe(testMAC, testIP)
	got := uint16(raw[12])<<8 | uint16(raw[13])
	if got != EtherTypeARP {
		t.Errorf("ethertype = %#x, want %#x", got, EtherTypeARP)
	}
}
