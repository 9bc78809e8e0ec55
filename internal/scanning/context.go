package scanning

import "context"

type ctxKey int

const workDirKey ctxKey = iota

// WithWorkDir attaches the scan-owned directory engines may write variant files into.
func WithWorkDir(ctx context.Context, dir string) context.Context {
	return context.WithValue(ctx, workDirKey, dir)
}

// WorkDirFromContext returns the scan's work directory, if one was attached.
func WorkDirFromContext(ctx context.Context) (string, bool) {
	dir, ok := ctx.Value(workDirKey).(string)
	return dir, ok && dir != ""
}
