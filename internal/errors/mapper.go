// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// Map converts domain/repo/infra errors into gRPC-friendly status errors.
// Internal failures are logged with a correlation id and returned without detail.
func Map(log *slog.Logger, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var de *Error
	switch {
	case errors.As(err, &de) && de.Kind != KindInternal:
		return status.Error(grpcCode(de.Kind), de.Message)

	case errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "record not found")

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	default:
		return status.Error(codes.Internal, redact(log, err))
	}
}

// HTTPStatus converts an error into an HTTP status and a user-facing message.
func HTTPStatus(log *slog.Logger, err error) (int, string) {
	var de *Error
	if errors.As(err, &de) && de.Kind != KindInternal {
		return httpCode(de.Kind), de.Message
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return http.StatusNotFound, "record not found"
	}
	return http.StatusInternalServerError, redact(log, err)
}

// InvalidArgument creates a gRPC InvalidArgument error.
// Use this in service layer for bad input validation.
func InvalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}

func redact(log *slog.Logger, err error) string {
	ref := uuid.NewString()
	if log != nil {
		log.Error("internal error", "correlation_id", ref, "err", err)
	}
	return fmt.Sprintf("internal error (ref %s)", ref)
}

func grpcCode(k Kind) codes.Code {
	switch k {
	case KindInvalidOperation:
		return codes.InvalidArgument
	case KindNotFound:
		return codes.NotFound
	case KindConflict:
		return codes.AlreadyExists
	case KindQuotaExceeded:
		return codes.ResourceExhausted
	case KindForbidden:
		return codes.PermissionDenied
	default:
		return codes.Internal
	}
}

func httpCode(k Kind) int {
	switch k {
	case KindInvalidOperation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
