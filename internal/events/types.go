// Package events provides the cross-session fan-out bus for the ACD engine.
//
// acd.Session's callback is the mandatory event sink. This bus is an
// optional secondary fan-out for an embedder that runs several sessions
// and wants to aggregate their BIND/CONFLICT/STOP events in one place.
package events

import (
	"net"
	"time"
)

// EventType identifies the kind of ACD lifecycle event.
type EventType string

const (
	EventBind     EventType = "acd.bind"
	EventConflict EventType = "acd.conflict"
	EventStop     EventType = "acd.stop"
)

// Event is the payload fanned out over the bus.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Session   string    `json:"session"`
	ACD       *ACDData  `json:"acd,omitempty"`
}

// ACDData carries the interface/address context for an ACD event.
type ACDData struct {
	Ifindex      int              `json:"ifindex"`
	Address      net.IP           `json:"address"`
	MAC          net.HardwareAddr `json:"mac,omitempty"`
	ResponderMAC net.HardwareAddr `json:"responder_mac,omitempty"`
	ConflictSeen int              `json:"conflict_seen,omitempty"`
	Reason       string           `json:"reason,omitempty"`
}
