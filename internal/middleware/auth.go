package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/goodimpact/backoffice-api/internal/domain/user"
	"github.com/goodimpact/backoffice-api/internal/pkg/jwt"
	"github.com/goodimpact/backoffice-api/internal/pkg/logger"
	"github.com/goodimpact/backoffice-api/internal/pkg/response"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	RoleKey   contextKey = "role"
)

// Auth returns middleware that validates JWT.
// WebSocket upgrades may pass the token as ?token=, browsers cannot set headers there.
func Auth(jwtService *jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				response.Unauthorized(w, "Missing or invalid authorization header")
				return
			}

			claims, err := jwtService.ValidateAccessToken(token)
			if err != nil {
				if errors.Is(err, jwt.ErrExpiredToken) {
					response.Unauthorized(w, "Token expired")
				} else {
					response.Unauthorized(w, "Invalid token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, RoleKey, claims.Role)

			l := logger.FromContext(ctx).With().Str("user_id", claims.UserID.String()).Logger()
			ctx = logger.WithContext(ctx, &l)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			if t := r.URL.Query().Get("token"); t != "" {
				return t, true
			}
		}
		return "", false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(UserIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// GetRole extracts role from context
func GetRole(ctx context.Context) user.Role {
	if role, ok := ctx.Value(RoleKey).(string); ok {
		return user.Role(role)
	}
	return ""
}

// WithPrincipal returns a context carrying the authenticated user, as Auth would set it
func WithPrincipal(ctx context.Context, userID uuid.UUID, role user.Role) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, RoleKey, string(role))
}

// RequireRole returns middleware that checks user role
func RequireRole(roles ...user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userRole := GetRole(r.Context())

			for _, role := range roles {
				if userRole == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			response.Forbidden(w, "Insufficient permissions")
		})
	}
}

// RequireAdmin returns middleware that requires admin role
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(user.RoleAdmin)
}

// RequireOperator returns middleware that requires an operator (or admin) role
func RequireOperator() func(http.Handler) http.Handler {
	return RequireRole(user.RoleOperator, user.RoleAdmin)
}

// ShopAccessChecker answers whether a user operates a shop
type ShopAccessChecker interface {
	IsShopOperator(ctx context.Context, shopID, userID uuid.UUID) (bool, error)
}

// RequireShopAccess rejects operators who are not assigned to the shop named by the URL param.
// Admins pass through.
func RequireShopAccess(checker ShopAccessChecker, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			shopID, err := uuid.Parse(chi.URLParam(r, param))
			if err != nil {
				response.BadRequest(w, "Invalid shop ID")
				return
			}

			if GetRole(r.Context()) == user.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}

			ok, err := checker.IsShopOperator(r.Context(), shopID, GetUserID(r.Context()))
			if err != nil {
				logger.FromContext(r.Context()).Error().Err(err).Str("shop_id", shopID.String()).Msg("shop access check failed")
				response.InternalError(w)
				return
			}
			if !ok {
				response.Forbidden(w, "Not an operator of this shop")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
