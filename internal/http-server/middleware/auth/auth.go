package authmiddleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/zanzhit/station_recorder/internal/domain/constants"
	"github.com/zanzhit/station_recorder/internal/domain/models"
	jwtmid "github.com/zanzhit/station_recorder/internal/lib/jwt"
)

type contextKey string

const (
	UserContextKey contextKey = "user"
)

// JWTAuth accepts the token from the Authorization header or, for browser
// websocket clients that cannot set headers, from the access_token query
// parameter.
func JWTAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if tokenString == "" {
				tokenString = r.URL.Query().Get("access_token")
			}

			if tokenString == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := jwtmid.ParseToken(tokenString, secret)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func AdminRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFrom(r.Context())
		if !ok || user.UserType != constants.Admin {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func UserFrom(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(models.User)

	return user, ok
}

// WithUser stores the user the way JWTAuth does.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}
