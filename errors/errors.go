// Package errors declares the failures the chat core can report.
// Every sentinel carries a Kind so transports can map it without knowing
// the individual error values.
package errors

import (
	stderrors "errors"
)

type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindValidation      Kind = "validation"
	KindAuthorization   Kind = "authorization"
	KindUnauthenticated Kind = "unauthenticated"
	KindConflict        Kind = "conflict"
	KindInternal        Kind = "internal"
)

type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func newError(kind Kind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	ErrChatNotFound        = newError(KindNotFound, "chat does not exist")
	ErrGroupChatNotFound   = newError(KindNotFound, "group chat does not exist")
	ErrMessageNotFound     = newError(KindNotFound, "message does not exist")
	ErrUserNotFound        = newError(KindNotFound, "user does not exist")
	ErrParticipantNotFound = newError(KindNotFound, "participant does not exist in the group chat")

	ErrSelfChat                 = newError(KindValidation, "you cannot chat with yourself")
	ErrCreatorInParticipants    = newError(KindValidation, "participants should not contain the group creator")
	ErrGroupTooSmall            = newError(KindValidation, "a group chat needs at least 3 distinct members")
	ErrParticipantAlreadyInChat = newError(KindValidation, "participant already in the group chat")
	ErrAdminCannotLeave         = newError(KindValidation, "the admin cannot leave the group, delete it instead")
	ErrInvalidChatName          = newError(KindValidation, "chat name is required")
	ErrEmptyMessage             = newError(KindValidation, "message content or attachment is required")
	ErrTooManyAttachments       = newError(KindValidation, "too many attachments")
	ErrAttachmentTooLarge       = newError(KindValidation, "attachment is too large")
	ErrRequestTooLarge          = newError(KindValidation, "request body is too large")
	ErrUnsupportedAttachment    = newError(KindValidation, "attachment type is not supported")
	ErrInvalidPassword          = newError(KindValidation, "password does not meet complexity requirements")
	ErrInvalidRequest           = newError(KindValidation, "invalid request")

	ErrNotAdmin       = newError(KindAuthorization, "only the group admin can perform this action")
	ErrNotSender      = newError(KindAuthorization, "only the sender can delete this message")
	ErrNotParticipant = newError(KindAuthorization, "you are not a participant of this chat")

	ErrInvalidCredentials = newError(KindUnauthenticated, "invalid credentials")
	ErrUnauthenticated    = newError(KindUnauthenticated, "authentication required")

	ErrUserAlreadyExists = newError(KindConflict, "user already exists")
	ErrConflict          = newError(KindConflict, "concurrent update, try again")

	ErrInconsistentState = newError(KindInternal, "store returned an inconsistent state")
	ErrTokenGeneration   = newError(KindInternal, "token generation failed")
	ErrConnectionClosed  = newError(KindInternal, "connection closed")
	ErrWorkerPanic       = newError(KindInternal, "worker panic")
	ErrEmptyWords        = newError(KindInternal, "moderation dictionary is empty")
)

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors are internal.
func KindOf(err error) Kind {
	var ke *kindError
	if stderrors.As(err, &ke) {
		return ke.kind
	}
	return KindInternal
}

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func New(text string) error { return stderrors.New(text) }
