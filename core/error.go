package core

import "errors"

// ErrorCode is a stable identifier for an error condition that can be
// surfaced to clients over the wire.
type ErrorCode string

const (
	CodeAuthError        ErrorCode = "auth_error"
	CodePermissionDenied ErrorCode = "permission_denied"
	CodeRoomFull         ErrorCode = "room_full"
	CodeMediaAccess      ErrorCode = "media_access"
	CodeSignalingTimeout ErrorCode = "signaling_timeout"
	CodeTransportFailure ErrorCode = "transport_failure"
	CodeNotFound         ErrorCode = "not_found"
	CodeInvalidPayload   ErrorCode = "invalid_payload"
)

type Error struct {
	Code ErrorCode
	msg  string
}

func NewError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, msg: msg}
}

func (e *Error) Error() string {
	return e.msg
}

// CodeOf extracts the error code from err, or empty if err carries none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

var (
	ErrUnauthorized     = NewError(CodeAuthError, "missing or invalid credentials")
	ErrPermissionDenied = NewError(CodePermissionDenied, "operation not permitted")
	ErrRoomFull         = NewError(CodeRoomFull, "room already has two participants")
	ErrRoomNotFound     = NewError(CodeNotFound, "room not found")
	ErrMessageNotFound  = NewError(CodeNotFound, "message not found")
	ErrNotInRoom        = NewError(CodePermissionDenied, "user is not a room participant")
)
