package logging

import (
	"context"
	"strconv"
)

type contextKey string

const (
	ServiceNameKey contextKey = "service_name"
	InstanceIDKey  contextKey = "instance_id"
	EpochKey       contextKey = "epoch"
	TraceIDKey     contextKey = "trace_id"
)

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func WithInstanceID(ctx context.Context, instanceID string) context.Context {
	return context.WithValue(ctx, InstanceIDKey, instanceID)
}

// WithEpoch tags the context with the micro-batch epoch being processed.
func WithEpoch(ctx context.Context, epoch int64) context.Context {
	return context.WithValue(ctx, EpochKey, epoch)
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func GetServiceName(ctx context.Context) string {
	if serviceName, ok := ctx.Value(ServiceNameKey).(string); ok {
		return serviceName
	}
	return ""
}

func GetInstanceID(ctx context.Context) string {
	if id, ok := ctx.Value(InstanceIDKey).(string); ok {
		return id
	}
	return ""
}

func GetEpoch(ctx context.Context) (int64, bool) {
	epoch, ok := ctx.Value(EpochKey).(int64)
	return epoch, ok
}

func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, string(ServiceNameKey), serviceName)
	}

	if id := GetInstanceID(ctx); id != "" {
		fields = append(fields, string(InstanceIDKey), id)
	}

	if epoch, ok := GetEpoch(ctx); ok {
		fields = append(fields, string(EpochKey), strconv.FormatInt(epoch, 10))
	}

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, string(TraceIDKey), traceID)
	}

	return fields
}
