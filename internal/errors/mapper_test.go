package errors_test

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	svcErr "github.com/oggyb/shaadimantra/internal/errors"
)

func TestMap_DomainKinds(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{svcErr.ErrSelfSwipe, codes.InvalidArgument},
		{svcErr.ErrProfileNotFound, codes.NotFound},
		{svcErr.ErrAlreadySwiped, codes.AlreadyExists},
		{svcErr.ErrDailyLimit, codes.ResourceExhausted},
		{svcErr.ErrNotParticipant, codes.PermissionDenied},
		{gorm.ErrRecordNotFound, codes.NotFound},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
	}
	for _, tc := range cases {
		st, _ := status.FromError(svcErr.Map(nil, tc.err))
		assert.Equal(t, tc.code, st.Code(), tc.err.Error())
	}
}

func TestMap_InternalIsRedacted(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	err := svcErr.Map(log, fmt.Errorf("dial tcp 10.0.0.3:3306: refused"))
	st, _ := status.FromError(err)

	assert.Equal(t, codes.Internal, st.Code())
	assert.NotContains(t, st.Message(), "10.0.0.3")
	assert.Contains(t, st.Message(), "ref ")
	assert.Contains(t, buf.String(), "correlation_id=")
	assert.Contains(t, buf.String(), "10.0.0.3")
}

func TestErrorsIs_MatchesWrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("recording swipe: %w", svcErr.ErrAlreadySwiped)

	assert.True(t, stderrors.Is(wrapped, svcErr.ErrAlreadySwiped))
	assert.False(t, stderrors.Is(wrapped, svcErr.ErrDailyLimit))
	assert.Equal(t, svcErr.KindConflict, svcErr.KindOf(wrapped))
	assert.Equal(t, svcErr.KindInternal, svcErr.KindOf(stderrors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	code, msg := svcErr.HTTPStatus(nil, svcErr.ErrDailyLimit)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "daily like limit reached, try again tomorrow", msg)

	code, _ = svcErr.HTTPStatus(nil, svcErr.Internal(stderrors.New("disk")))
	assert.Equal(t, http.StatusInternalServerError, code)
}
