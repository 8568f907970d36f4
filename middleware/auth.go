package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/nls08/NLS-Portal-sub001/logging"
	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/services"
	"github.com/nls08/NLS-Portal-sub001/utils"
)

type userKey struct{}

// UserResolver maps verified token claims to the local directory record.
type UserResolver interface {
	Resolve(ctx context.Context, claims *utils.Claims) (*models.User, error)
}

var _ UserResolver = (*services.UserService)(nil)

// bearerToken reads the Authorization header. Browsers cannot set headers on a
// websocket handshake, so a token query parameter is accepted as well.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		logging.Logger.Warnf("Event ID: JWT_AUTH_BEARER_PREFIX_MISSING, Description: Bearer prefix missing in Authorization header for request to %s %s", r.Method, r.URL.Path)
		return ""
	}
	return r.URL.Query().Get("token")
}

// Authenticate verifies the HS256 bearer token and stores the caller's user record
// in the request context.
func Authenticate(secret []byte, users UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r)
			if tokenStr == "" {
				logging.Logger.Warnf("Event ID: JWT_AUTH_MISSING_TOKEN, Description: No token for request to %s %s", r.Method, r.URL.Path)
				writeError(w, http.StatusUnauthorized, "authorization required")
				return
			}

			claims, err := utils.ValidateToken(secret, tokenStr)
			if err != nil {
				logging.Logger.Warnf("Event ID: JWT_AUTH_INVALID_TOKEN, Description: Invalid token provided for request to %s %s: %v", r.Method, r.URL.Path, err)
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			user, err := users.Resolve(r.Context(), claims)
			if err != nil {
				logging.Logger.Errorf("Event ID: JWT_AUTH_RESOLVE_FAILED, Description: Failed to resolve user for subject %s: %v", claims.Subject, err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			logging.Logger.Debugf("Event ID: JWT_AUTH_SUCCESS, Description: Authenticated user %s (%s) for %s %s", user.ID.Hex(), user.Role, r.Method, r.URL.Path)
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the authenticated user, or nil outside Authenticate.
func UserFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey{}).(*models.User)
	return u
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := UserFrom(r.Context())
			if u == nil {
				writeError(w, http.StatusUnauthorized, "authorization required")
				return
			}
			for _, role := range roles {
				if u.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			logging.Logger.Warnf("Event ID: ACCESS_FORBIDDEN, Description: User %s with role %s denied %s %s", u.ID.Hex(), u.Role, r.Method, r.URL.Path)
			writeError(w, http.StatusForbidden, "permission denied")
		})
	}
}

// RequireAdmin allows admins and super-admins.
func RequireAdmin(next http.Handler) http.Handler {
	return RequireRole(models.RoleAdmin, models.RoleSuperAdmin)(next)
}
