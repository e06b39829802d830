package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNodeUnknown is returned by a Dispatcher when the target node is not
	// currently registered, i.e. the enqueue was rejected. It is not a failure
	// of the procedure; the engine will re-run the procedure later.
	ErrNodeUnknown = errors.New("target node not registered with dispatcher")

	// ErrProcNotFound is returned when a procedure ID is not known to the engine.
	ErrProcNotFound = errors.New("procedure not found")

	// ErrUnknownKind is returned during recovery when a persisted procedure
	// references an operation type with no registered factory.
	ErrUnknownKind = errors.New("no factory registered for operation type")
)

// ServerName identifies a remote node: host, port, and the start time of the
// process listening there. The start code distinguishes two incarnations of
// a node on the same address; a dispatch addressed to a dead incarnation must
// not be delivered to its successor.
//
// ServerName is comparable and immutable; it is safe to use as a map key and
// to read from any goroutine.
type ServerName struct {
	Host      string
	Port      int
	StartCode int64
}

// String renders the canonical "host,port,startcode" form.
func (s ServerName) String() string {
	return s.Host + "," + strconv.Itoa(s.Port) + "," + strconv.FormatInt(s.StartCode, 10)
}

// Addr returns the dialable "host:port" address of the node.
func (s ServerName) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// ParseServerName parses the canonical "host,port,startcode" form produced
// by ServerName.String.
func ParseServerName(v string) (ServerName, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 3 {
		return ServerName{}, fmt.Errorf("invalid server name %q: want host,port,startcode", v)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return ServerName{}, fmt.Errorf("invalid port in server name %q: %w", v, err)
	}
	start, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return ServerName{}, fmt.Errorf("invalid start code in server name %q: %w", v, err)
	}
	return ServerName{Host: parts[0], Port: port, StartCode: start}, nil
}

// OperationType tags what kind of remote operation a procedure performs.
// The engine and dispatcher use it for collision and ordering decisions and
// as the registry key when restoring persisted procedures.
type OperationType string

// Status is the persisted lifecycle state of a procedure.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusWaiting   Status = "WAITING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether the status is a final one.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ExecResult tells the engine what to do with a procedure after Execute
// returns. Suspension is a first-class return value, never a panic or a
// sentinel error threaded through the call stack.
type ExecResult int

const (
	// ExecDone means the procedure reached a terminal state. A non-nil error
	// alongside ExecDone is the terminal failure cause.
	ExecDone ExecResult = iota

	// ExecSuspend means the procedure armed its wake signal and handed work
	// to the dispatcher. The engine must park it and re-run it only when the
	// scheduler wakes it.
	ExecSuspend

	// ExecDelay means no work was produced (for example the dispatcher
	// rejected the target). The engine re-runs the procedure after a delay;
	// the procedure itself keeps no timer or retry counter.
	ExecDelay
)

func (r ExecResult) String() string {
	switch r {
	case ExecDone:
		return "done"
	case ExecSuspend:
		return "suspend"
	case ExecDelay:
		return "delay"
	default:
		return "unknown(" + strconv.Itoa(int(r)) + ")"
	}
}

// Outcome is the result of one dispatch attempt, recorded by exactly one
// completion callback.
type Outcome struct {
	Success bool
	Cause   error
}

// ProcedureInfo is the engine's externally visible view of a procedure.
type ProcedureInfo struct {
	ID     string
	Kind   OperationType
	Status Status
	Error  string
}

// ListOptions filters List results. Zero values mean "no filter".
type ListOptions struct {
	Kind   OperationType
	Status Status
}
