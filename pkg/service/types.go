package service

import "errors"

var (
	ErrNotStarted     = errors.New("upload service not running")
	ErrAlreadyStarted = errors.New("upload service already running")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// ServiceState is the lifecycle of a Server. A stopped server can be
// started again.
type ServiceState uint8

const (
	StateIdle ServiceState = iota
	StateRunning
	StateStopped
)

func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}
