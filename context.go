package goGate

import (
	"context"
	"time"
)

type clientIPContextKey struct{}
type identityContextKey struct{}

// Claims are the verified token fields exposed to handlers.
type Claims struct {
	SubjectID string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Identity is the resolved caller of a request.
type Identity struct {
	// SubjectID is empty for anonymous callers.
	SubjectID string
	Role      Role
	// Claims is nil for anonymous callers.
	Claims *Claims
}

// AnonymousIdentity is the identity used when no valid credential is presented.
func AnonymousIdentity() Identity {
	return Identity{Role: RoleAnonymous}
}

// Anonymous reports whether the identity carries no verified credential.
func (i Identity) Anonymous() bool {
	return i.SubjectID == ""
}

// IsSelf reports whether subjectID refers to the caller. Anonymous callers
// are never self.
func (i Identity) IsSelf(subjectID string) bool {
	return i.SubjectID != "" && i.SubjectID == subjectID
}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity attached by the authorization
// middleware, or the anonymous identity when none is present.
func IdentityFromContext(ctx context.Context) Identity {
	if ctx == nil {
		return AnonymousIdentity()
	}
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok {
		return AnonymousIdentity()
	}
	return id
}

// WithClientIP attaches the caller's IP address to ctx. It is recorded in
// audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
