package interceptors

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"studyhub/backend/internal/audit"
	"studyhub/backend/internal/telemetry"
)

// grpcRequestMetadata is the JSON shape stored in Event.Metadata for grpc_request events.
type grpcRequestMetadata struct {
	FullMethod string `json:"full_method"`
	StatusCode string `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
}

// TelemetryUnary returns a unary server interceptor that logs each RPC and emits a
// grpc_request event. Best-effort: failures never fail the RPC. emitter may be nil.
// skipMethods is the set of full method names to not record (e.g. health checks).
func TelemetryUnary(log *slog.Logger, emitter telemetry.EventEmitter, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		elapsed := time.Since(start)
		origin := ClientIP(ctx)
		accountID, _ := GetAccountID(ctx)
		sessionID, _ := GetSessionID(ctx)

		level := slog.LevelInfo
		switch code {
		case codes.OK, codes.Unauthenticated, codes.ResourceExhausted, codes.InvalidArgument:
		default:
			level = slog.LevelWarn
		}
		log.LogAttrs(ctx, level, "grpc request",
			slog.String("method", info.FullMethod),
			slog.String("code", code.String()),
			slog.Duration("duration", elapsed),
			slog.String("origin", origin),
			slog.String("account", audit.Mask(accountID)),
		)

		if emitter != nil {
			metaJSON, _ := json.Marshal(grpcRequestMetadata{
				FullMethod: info.FullMethod,
				StatusCode: code.String(),
				DurationMs: elapsed.Milliseconds(),
			})
			telemetry.EmitAsync(emitter, ctx, &telemetry.Event{
				EventType: "grpc_request",
				Source:    "grpc_interceptor",
				AccountID: audit.Mask(accountID),
				SessionID: sessionID,
				Origin:    origin,
				Metadata:  metaJSON,
				CreatedAt: time.Now().UTC(),
			})
		}
		return resp, err
	}
}
