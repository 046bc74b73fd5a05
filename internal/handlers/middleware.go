package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/older-wiser/apiserver/internal/auth"
	"github.com/older-wiser/apiserver/internal/store"
	"github.com/older-wiser/apiserver/types"
)

// Principal is the request-scoped identity resolved from a verified
// token. It lives only in the request context and is never persisted.
type Principal struct {
	ID    int64
	Name  string
	Email string
	Role  types.Role
}

type contextKey string

const principalKey contextKey = "principal"

func principalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalKey).(Principal)
	return principal, ok
}

// AuthMiddleware resolves bearer tokens into principals and gates routes
// by role. Identity resolution and authorization are separate stages:
// RequireAuth answers "who is this" (401 on failure), RequireRole answers
// "may they" (403 on failure).
type AuthMiddleware struct {
	tokens *auth.TokenService
	users  UserResolver
}

// UserResolver loads the token subject from the credential store.
type UserResolver interface {
	GetByID(ctx context.Context, id int64) (types.User, error)
}

func NewAuthMiddleware(tokens *auth.TokenService, users UserResolver) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// RequireAuth verifies the bearer credential, re-resolves the subject
// against the user store, and attaches the principal to the context.
// The subject lookup means a token outlives neither its account nor a
// role change within this request path.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "No token, authorization denied")
			return
		}

		userID, err := m.tokens.Verify(tokenString)
		if err != nil {
			// Expired tokens get their own message so clients can
			// prompt a re-login instead of a generic failure.
			if errors.Is(err, auth.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "Token expired")
				return
			}
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		user, err := m.users.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "User not found")
				return
			}
			logUpstream(r, err)
			writeError(w, http.StatusInternalServerError, "Server Error")
			return
		}

		principal := Principal{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
			Role:  user.Role,
		}
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects principals whose role is not in the allowed set.
// Must run after RequireAuth; a missing principal is treated as
// unauthenticated, never as a server error.
func (m *AuthMiddleware) RequireRole(roles ...types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := principalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "No token, authorization denied")
				return
			}
			for _, role := range roles {
				if principal.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Access denied. Insufficient privileges.")
		})
	}
}

// canMutate is the ownership predicate for activity mutation and
// deletion. Curated entries have no owner and are admin-only.
func canMutate(principal Principal, activity types.Activity) bool {
	if principal.Role == types.RoleAdmin {
		return true
	}
	return activity.IsUserCreated && activity.CreatedBy == principal.ID
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
