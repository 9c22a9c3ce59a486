package server

import (
	"context"

	"accountability-assistant/backend/internal/session"
)

type contextKey struct{ name string }

var (
	flowKey    = contextKey{"flow"}
	requestKey = contextKey{"request"}
)

// requestInfo is filled in as the request passes through the middleware chain; the request
// logger reads it back once the handler returns.
type requestInfo struct {
	clientIP string
	flowID   string
}

func withRequestInfo(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, requestKey, info)
}

func requestInfoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestKey).(*requestInfo)
	return info
}

// withFlow returns a context carrying the request's flow.
func withFlow(ctx context.Context, f *session.Flow) context.Context {
	if info := requestInfoFrom(ctx); info != nil {
		info.flowID = f.ID
	}
	return context.WithValue(ctx, flowKey, f)
}

func flowFrom(ctx context.Context) *session.Flow {
	f, _ := ctx.Value(flowKey).(*session.Flow)
	return f
}

// FlowID returns the id of the flow serving the request, or "".
func FlowID(ctx context.Context) string {
	if f := flowFrom(ctx); f != nil {
		return f.ID
	}
	return ""
}

// ClientIP returns the client address recorded for the request, or "".
func ClientIP(ctx context.Context) string {
	if info := requestInfoFrom(ctx); info != nil {
		return info.clientIP
	}
	return ""
}
