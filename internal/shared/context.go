package shared

import "context"

// RequestMeta carries caller attribution for audit records.
type RequestMeta struct {
	ActorID   int64
	TokenFP   string
	Device    string
	IP        string
	UserAgent string
}

type requestMetaContextKey struct{}

// ContextWithMeta stores request metadata in context.
func ContextWithMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaContextKey{}, meta)
}

// MetaFromContext extracts request metadata from context.
func MetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaContextKey{}).(RequestMeta)
	return meta
}
