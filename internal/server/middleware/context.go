package middleware

import "context"

type contextKey string

// ContextKeySubject holds the authenticated API caller.
const ContextKeySubject contextKey = "subject"

// SubjectFromContext returns the authenticated caller set by Auth.
func SubjectFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeySubject).(string)
	return v, ok && v != ""
}
