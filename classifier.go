package acd

import "net"

// isConflict reports whether a frame is a conflict once the address is
// being announced or defended (ANNOUNCING/RUNNING): its sender protocol
// address equals the session address. A frame that only targets the
// address is another host's probe and is not a conflict in these states.
// Before announcing (WAITING_PROBE, PROBING, WAITING_ANNOUNCE),
// handleFrame does not call this; it treats any frame naming the address
// as sender or target as a conflict.
func isConflict(f Frame, address net.IP) bool {
	return f.SenderIP.Equal(address)
}
