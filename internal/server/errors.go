package server

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Sentinel errors for errors.Is checks against the typed errors below.
var (
	ErrBind             = errors.New("bind failed")
	ErrListen           = errors.New("listen failed")
	ErrCapacity         = errors.New("capacity exceeded")
	ErrBroadcastPartial = errors.New("broadcast partially failed")
	ErrServerClosed     = errors.New("server closed")
)

// StartOp is the step of opening the listening endpoint that failed.
type StartOp string

const (
	OpBind   StartOp = "bind"
	OpListen StartOp = "listen"
)

// StartError is returned by Start when the listening endpoint cannot be opened.
type StartError struct {
	Op   StartOp
	Addr string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start: %s %s: %v", e.Op, e.Addr, e.Err)
}

// Unwrap exposes both the OS error and ErrBind or ErrListen.
func (e *StartError) Unwrap() []error {
	sentinel := ErrListen
	if e.Op == OpBind {
		sentinel = ErrBind
	}
	return []error{sentinel, e.Err}
}

// CapacityError reports a connection rejected because a limit was reached.
type CapacityError struct {
	Resource string // "connections" or "workers"
	Limit    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s limit of %d reached", e.Resource, e.Limit)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacity
}

// IOError is a read, write or timeout failure on one client connection.
type IOError struct {
	Op       string
	ClientID uint64
	Err      error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("client %d %s: %v", e.ClientID, e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline expiring.
func (e *IOError) Timeout() bool {
	return isTimeout(e.Err)
}

// BroadcastError reports recipients that could not be written to. Delivery to
// the remaining recipients is not affected.
type BroadcastError struct {
	Attempted int
	Failed    int
	Err       error // every recipient failure, combined
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast failed for %d of %d recipients: %v", e.Failed, e.Attempted, e.Err)
}

func (e *BroadcastError) Unwrap() []error {
	return []error{ErrBroadcastPartial, e.Err}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
