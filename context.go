package idsession

import "context"

type deviceLabelContextKey struct{}
type requestIDContextKey struct{}

// WithDeviceLabel attaches a human-readable device name to ctx. Second-factor
// enrollment uses it as the default device label when the caller passes an
// empty one (the way a browser client derives "macOS Chrome" from the user
// agent).
func WithDeviceLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, deviceLabelContextKey{}, label)
}

// WithRequestID attaches a correlation id to ctx. Provider implementations
// forward it to the wire so a failed call can be matched to server logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

func deviceLabelFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	label, _ := ctx.Value(deviceLabelContextKey{}).(string)
	return label
}

// RequestIDFromContext returns the correlation id set by [WithRequestID],
// or "" when none is set. Exported for Provider implementations.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
