package companies

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindNotAuthorized Kind = iota + 1
	KindInvalidState
	KindConflict
	KindValidation
	KindNotFound
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotAuthorized:
		return "not_authorized"
	case KindInvalidState:
		return "invalid_state"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is returned by every user-triggered operation. Msg is the text
// shown to the user verbatim.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Is matches on Code so callers can use the sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrNotAuthorized          = &Error{Kind: KindNotAuthorized, Code: "not_authorized", Msg: "not authorized"}
	ErrAlreadyInvited         = &Error{Kind: KindInvalidState, Code: "already_invited", Msg: "already invited"}
	ErrAlreadyMember          = &Error{Kind: KindInvalidState, Code: "already_member", Msg: "already a member"}
	ErrNotInvited             = &Error{Kind: KindInvalidState, Code: "not_invited", Msg: "not invited"}
	ErrNotEmployed            = &Error{Kind: KindInvalidState, Code: "not_employed", Msg: "not an employee"}
	ErrIsController           = &Error{Kind: KindInvalidState, Code: "is_controller", Msg: "is the CEO"}
	ErrNotController          = &Error{Kind: KindInvalidState, Code: "not_controller", Msg: "is not the CEO"}
	ErrAlreadyEmployed        = &Error{Kind: KindConflict, Code: "already_employed", Msg: "already employed"}
	ErrHasConflictingProperty = &Error{Kind: KindConflict, Code: "has_conflicting_property", Msg: "has a homestead"}
	ErrNameTaken              = &Error{Kind: KindConflict, Code: "name_taken", Msg: "name taken"}
	ErrStateChanged           = &Error{Kind: KindConflict, Code: "state_changed", Msg: "state changed"}
	ErrInvalidName            = &Error{Kind: KindValidation, Code: "invalid_name", Msg: "invalid name"}
	ErrInvalidTarget          = &Error{Kind: KindValidation, Code: "invalid_target", Msg: "invalid target"}
	ErrNotFound               = &Error{Kind: KindNotFound, Code: "not_found", Msg: "not found"}
	ErrInternal               = &Error{Kind: KindInternal, Code: "internal", Msg: "internal error"}
)

func fail(sentinel *Error, format string, args ...any) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
