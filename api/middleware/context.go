package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	roleKey
	requestIDKey
)

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func withValue(ctx context.Context, key ctxKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func UserIDFromContext(ctx context.Context) string { return stringValue(ctx, userIDKey) }

func RoleFromContext(ctx context.Context) string { return stringValue(ctx, roleKey) }

// RequestIDFromContext returns the id assigned by RequestID, if any.
func RequestIDFromContext(ctx context.Context) string { return stringValue(ctx, requestIDKey) }

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withValue(ctx, userIDKey, userID)
}

// WithRole injects the caller role into the context.
func WithRole(ctx context.Context, role string) context.Context {
	return withValue(ctx, roleKey, role)
}

func withRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

// CallerID returns the authenticated user's id or an unauthorized error.
func CallerID(ctx context.Context) (uuid.UUID, error) {
	raw := UserIDFromContext(ctx)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

// IsAdmin reports whether the caller carries the operator role.
func IsAdmin(ctx context.Context) bool {
	return RoleFromContext(ctx) == string(enums.RoleAdmin)
}
