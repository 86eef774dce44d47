package acd

import "errors"

// Error kinds visible at the API boundary.
var (
	ErrInvalidArgument = errors.New("acd: invalid argument")
	ErrBusy            = errors.New("acd: session busy")
	ErrNotAttached     = errors.New("acd: no event loop attached")
	ErrNotRunning      = errors.New("acd: session not running")
)

// ErrWouldBlock is returned by ArpSocket.Recv when no frame is currently
// available; it is not a fatal condition.
var ErrWouldBlock = errors.New("acd: recv would block")
