// Package contextkey holds the typed keys shared by middleware, logger and stores.
package contextkey

type key string

const (
	TraceID   key = "trace_id"
	RequestID key = "request_id"
	UserID    key = "user_id"

	// JoinSession carries the per-request cookie session used by the cookie join store.
	JoinSession key = "join_session"
)
