package auth

import (
	"context"

	"basebuzz/domain"
)

const (
	sessionKey privateKey = "session"
)

type privateKey string

// SetSession stores the resolved session of a request in its context.
func SetSession(ctx context.Context, session *domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// GetSession returns the session stored in ctx. It never returns nil,
// a request that has not been resolved is anonymous.
func GetSession(ctx context.Context) *domain.Session {
	if temp := ctx.Value(sessionKey); temp != nil {
		if session, ok := temp.(*domain.Session); ok && session != nil {
			return session
		}
	}
	return &domain.Session{}
}

// GetUser returns the user of the session stored in ctx, or nil.
func GetUser(ctx context.Context) *domain.User {
	return GetSession(ctx).User
}
