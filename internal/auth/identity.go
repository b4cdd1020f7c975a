// Package auth resolves who the current user is: password and Google
// sign-in over the users collection, and bearer tokens for the HTTP API.
package auth

import "context"

// Identity answers which user, if any, is signed in.
type Identity interface {
	CurrentUserID() (string, bool)
}

// Static is a fixed identity. The empty value means nobody is signed in.
type Static string

func (s Static) CurrentUserID() (string, bool) {
	return string(s), s != ""
}

type userKey struct{}

// WithUser returns ctx carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserID returns the user stored by WithUser.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok && id != ""
}

// FromContext adapts a request context to Identity.
func FromContext(ctx context.Context) Identity {
	return contextIdentity{ctx}
}

type contextIdentity struct {
	ctx context.Context
}

func (c contextIdentity) CurrentUserID() (string, bool) {
	return UserID(c.ctx)
}
