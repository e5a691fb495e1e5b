package domain

import "context"

type Role string

const (
	RoleGuest Role = "guest"
	RoleHost  Role = "host"
	RoleAdmin Role = "admin"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role"`
}

// Session is built once per request and passed down through the context.
type Session struct {
	IsAuthenticated bool
	IsAdmin         bool
	User            User
}

var Anonymous = Session{}

// CanAccessRefund reports whether s may see or act on r.
func (s Session) CanAccessRefund(r RefundRequest) bool {
	if !s.IsAuthenticated {
		return false
	}
	return s.IsAdmin || (s.User.ID != "" && s.User.ID == r.UserID)
}

type sessionKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the request's session, or Anonymous.
func SessionFrom(ctx context.Context) Session {
	if s, ok := ctx.Value(sessionKey{}).(Session); ok {
		return s
	}
	return Anonymous
}
