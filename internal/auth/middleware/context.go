package auth

import "context"

type subjectKey struct{}

// WithSubject stores the authenticated user id. JWTMiddleware calls it for
// every verified token.
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey{}, sub)
}

// SubjectFromContext returns the authenticated user id, or "" outside the
// protected routes.
func SubjectFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey{}).(string)
	return sub
}
