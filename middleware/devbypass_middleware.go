package middleware

import (
	"errors"
	"net/http"

	"github.com/coursework/calendar/repositories"
	"go.uber.org/zap"
)

// devBypassSkipPaths are left alone so login and logout behave normally
var devBypassSkipPaths = map[string]struct{}{
	"/api/auth/login":  {},
	"/api/auth/logout": {},
}

// DevBypassMiddleware authenticates every unauthenticated request as a fixed
// principal. It is for local development only.
type DevBypassMiddleware struct {
	directory repositories.PrincipalDirectory
	subject   string
	logger    *zap.Logger
}

// NewDevBypassMiddleware creates a bypass that attaches subject's identity
func NewDevBypassMiddleware(directory repositories.PrincipalDirectory, subject string, logger *zap.Logger) *DevBypassMiddleware {
	return &DevBypassMiddleware{
		directory: directory,
		subject:   subject,
		logger:    logger,
	}
}

// Authenticate attaches the default principal unless the path is exempt or
// an identity is already present. Lookup failures are logged and the request
// continues unauthenticated.
func (m *DevBypassMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, skip := devBypassSkipPaths[r.URL.Path]; skip {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		if GetIdentityFromContext(ctx) != nil {
			next.ServeHTTP(w, r)
			return
		}

		requestID := GetRequestIDFromContext(ctx)
		user, err := m.directory.FindByEmail(ctx, m.subject)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				m.logger.Warn("dev bypass principal not found",
					zap.String("request_id", requestID),
					zap.String("subject", m.subject))
			} else {
				m.logger.Error("dev bypass principal lookup failed",
					zap.String("request_id", requestID),
					zap.String("subject", m.subject),
					zap.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}

		identity := &Identity{
			Subject: user.Email,
			UserID:  user.ID,
			Role:    string(user.Role),
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
	})
}
