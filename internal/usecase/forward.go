package usecase

import "context"

type forwardedHeadersKey struct{}

// WithForwardedHeaders attaches caller headers which should travel on to the
// upstream server, e.g. authorization.
func WithForwardedHeaders(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return context.WithValue(ctx, forwardedHeadersKey{}, headers)
}

// ForwardedHeaders returns the headers attached with WithForwardedHeaders.
func ForwardedHeaders(ctx context.Context) map[string]string {
	headers, _ := ctx.Value(forwardedHeadersKey{}).(map[string]string)
	return headers
}
