package interceptor

import (
	"context"
	"errors"

	"github.com/bufbuild/protovalidate-go"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto" // Required for proto.Message type assertion

	cerr "github.com/webitel/batch-sync/internal/errors"
)

// ValidateUnaryServerInterceptor returns a gRPC interceptor for request validation.
func ValidateUnaryServerInterceptor(val *protovalidate.Validator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if v, ok := req.(proto.Message); ok {
			if err := val.Validate(v); err != nil {
				var ve *protovalidate.ValidationError
				if errors.As(err, &ve) && len(ve.Violations) > 0 {
					violation := ve.Violations[0]
					return nil, cerr.InvalidArgument(
						violation.GetMessage(),
						cerr.WithID(violation.GetConstraintId()),
					)
				}
				return nil, cerr.InvalidArgument(
					err.Error(),
					cerr.WithID("api.validate.unknown"),
				)
			}
		}
		return handler(ctx, req)
	}
}
