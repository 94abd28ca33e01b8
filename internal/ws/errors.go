package ws

import (
	"context"
	"errors"

	"rtc-service/internal/auth"
	"rtc-service/internal/models"
	"rtc-service/internal/repositories"
)

// Code is the closed taxonomy carried by connection-scoped error acks.
type Code string

const (
	CodeUnauthenticated   Code = "UNAUTHENTICATED"
	CodeInvalidCredential Code = "INVALID_CREDENTIAL"
	CodeExpiredCredential Code = "EXPIRED_CREDENTIAL"
	CodeAccountDisabled   Code = "ACCOUNT_DISABLED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeTimeout           Code = "TIMEOUT"
	CodeInternal          Code = "INTERNAL"
)

// ErrorPayload is the body of an "error" ack event.
type ErrorPayload struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// CodeOf maps component errors onto the taxonomy.
func CodeOf(err error) Code {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, auth.ErrInvalidCredential):
		return CodeInvalidCredential
	case errors.Is(err, auth.ErrExpiredCredential):
		return CodeExpiredCredential
	case errors.Is(err, auth.ErrAccountDisabled):
		return CodeAccountDisabled
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, repositories.ErrNotAuthor):
		return CodeForbidden
	case errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrReactionNotFound),
		errors.Is(err, repositories.ErrChannelNotFound),
		errors.Is(err, repositories.ErrUserNotFound),
		errors.Is(err, ErrHuddleNotFound),
		errors.Is(err, ErrNotParticipant):
		return CodeNotFound
	case errors.Is(err, repositories.ErrDuplicateReaction),
		errors.Is(err, ErrActiveHuddleExists):
		return CodeConflict
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	}
	return CodeInternal
}

// ErrForbidden marks authorization failures raised by the fabric itself
// (room joins, ownership checks done outside the store).
var ErrForbidden = errors.New("forbidden")

// ErrorAck builds the connection-scoped error event for a failed operation.
// It is never broadcast to a room.
func ErrorAck(err error) models.OutboundEvent {
	return models.OutboundEvent{
		Event:   models.OutError,
		Payload: ErrorPayload{Code: CodeOf(err), Message: err.Error()},
	}
}
