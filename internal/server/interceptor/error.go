package interceptor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	outerror "github.com/webitel/webitel-go-kit/pkg/errors"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/webitel/batch-sync/internal/errors"
)

// OuterInterceptor recovers panics and converts handler errors into gRPC
// statuses carrying an ApplicationError.
func OuterInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if panicErr := recover(); panicErr != nil {
				slog.ErrorContext(ctx, "[PANIC RECOVER]", slog.Any("err", panicErr), slog.String("stack", string(debug.Stack())))
				resp = nil
				err = logAndReturnGRPCError(ctx, errors.Internal(
					fmt.Sprintf("panic: %v", panicErr),
					errors.WithID("api.process.panic"),
				), info)
			}
		}()
		resp, err = handler(ctx, req)
		if err != nil {
			return nil, logAndReturnGRPCError(ctx, err, info)
		}
		return resp, nil
	}
}

// logAndReturnGRPCError logs the error and converts it to a gRPC error response.
func logAndReturnGRPCError(ctx context.Context, err error, info *grpc.UnaryServerInfo) error {
	if err == nil {
		return nil
	}
	slog.WarnContext(ctx, fmt.Sprintf("method %s, error: %v", info.FullMethod, err.Error()))
	span := trace.SpanFromContext(ctx) // OpenTelemetry tracing
	span.RecordError(err)

	var (
		grpcCode codes.Code
		httpCode int
		id       string
	)
	slog.ErrorContext(ctx, errors.Details(err))
	switch grpcCode = errors.Code(err); grpcCode {
	case codes.Unauthenticated:
		httpCode = http.StatusUnauthorized
		id = "api.process.unauthenticated"
	case codes.PermissionDenied:
		httpCode = http.StatusForbidden
		id = "api.process.unauthorized"
	case codes.NotFound, codes.Aborted, codes.InvalidArgument, codes.AlreadyExists, codes.FailedPrecondition:
		httpCode = http.StatusBadRequest
		id = "api.process.bad_args"
	default:
		httpCode = http.StatusInternalServerError
		id = "api.process.internal"
	}
	grpcErr := &outerror.ApplicationError{
		Id:            id,
		DetailedError: err.Error(),
		StatusCode:    httpCode,
		Status:        http.StatusText(httpCode),
	}
	marshaledErr, _ := json.Marshal(grpcErr)
	return status.Error(grpcCode, string(marshaledErr))
}
