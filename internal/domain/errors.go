package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidArgument    ErrorCode = "invalid_argument"
	CodeNotFound           ErrorCode = "not_found"
	CodeConflict           ErrorCode = "conflict"
	CodeFailedPrecondition ErrorCode = "failed_precondition"
	CodeResourceExhausted  ErrorCode = "resource_exhausted"
	CodeTaskFailed         ErrorCode = "task_failed"
	CodeCancelled          ErrorCode = "cancelled"
	CodeInternal           ErrorCode = "internal"
)

// Error kinds. Match with errors.Is; AppError carries them alongside a code.
var (
	ErrAgentNotFound   = errors.New("agent not found")
	ErrAgentBusy       = errors.New("agent busy")
	ErrTaskExecution   = errors.New("task execution failed")
	ErrAdmissionDenied = errors.New("admission denied")
	ErrRunNotFound     = errors.New("run not found")
)

type AppError struct {
	Code    ErrorCode
	Message string
	Kind    error
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

func InvalidArgument(message string) *AppError {
	return &AppError{Code: CodeInvalidArgument, Message: message}
}

func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

func Conflict(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message}
}

func FailedPrecondition(message string) *AppError {
	return &AppError{Code: CodeFailedPrecondition, Message: message}
}

func ResourceExhausted(message string) *AppError {
	return &AppError{Code: CodeResourceExhausted, Message: message}
}

func Internal(message string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Cause: cause}
}

func AgentNotFound(agentID string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("agent %q not found", agentID), Kind: ErrAgentNotFound}
}

func AgentBusy(agentID string) *AppError {
	return &AppError{Code: CodeFailedPrecondition, Message: fmt.Sprintf("agent %q already has an active run", agentID), Kind: ErrAgentBusy}
}

func TaskExecution(step string, cause error) *AppError {
	return &AppError{Code: CodeTaskFailed, Message: fmt.Sprintf("step %q failed", step), Kind: ErrTaskExecution, Cause: cause}
}

func AdmissionDenied(message string) *AppError {
	return &AppError{Code: CodeResourceExhausted, Message: message, Kind: ErrAdmissionDenied}
}

func RunNotFound(runID string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("run %q not found", runID), Kind: ErrRunNotFound}
}

func Cancelled(message string, cause error) *AppError {
	return &AppError{Code: CodeCancelled, Message: message, Cause: cause}
}

func AsAppError(err error) (*AppError, bool) {
	if err == nil {
		return nil, false
	}
	var typed *AppError
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}
