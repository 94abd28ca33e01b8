package ws

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"rtc-service/internal/auth"
	"rtc-service/internal/models"
	"rtc-service/internal/repositories"
)

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{auth.ErrUnauthenticated, CodeUnauthenticated},
		{auth.ErrExpiredCredential, CodeExpiredCredential},
		{auth.ErrAccountDisabled, CodeAccountDisabled},
		{fmt.Errorf("channel c1: %w", ErrForbidden), CodeForbidden},
		{repositories.ErrNotAuthor, CodeForbidden},
		{repositories.ErrMessageNotFound, CodeNotFound},
		{ErrHuddleNotFound, CodeNotFound},
		{ErrNotParticipant, CodeNotFound},
		{repositories.ErrDuplicateReaction, CodeConflict},
		{ErrActiveHuddleExists, CodeConflict},
		{context.DeadlineExceeded, CodeTimeout},
		{assert.AnError, CodeInternal},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, CodeOf(tc.err), "error %v", tc.err)
	}
}

func TestErrorAck(t *testing.T) {
	ack := ErrorAck(repositories.ErrDuplicateReaction)
	assert.Equal(t, models.OutError, ack.Event)

	payload := ack.Payload.(ErrorPayload)
	assert.Equal(t, CodeConflict, payload.Code)
	assert.NotEmpty(t, payload.Message)
}
