package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coursework/calendar/auth"
	"github.com/coursework/calendar/middleware"
	"github.com/coursework/calendar/models"
	"github.com/coursework/calendar/services"
	"github.com/coursework/calendar/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is the body of POST /api/auth/register.
// bcrypt ignores input past 72 bytes, hence the password cap.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// AuthResponse is returned by login and refresh. The refresh token travels
// only in the cookie.
type AuthResponse struct {
	AccessToken string    `json:"accessToken"`
	UserID      uuid.UUID `json:"userId"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
}

// UserResponse describes the current principal
type UserResponse struct {
	ID        uuid.UUID       `json:"id"`
	Email     string          `json:"email"`
	Username  string          `json:"username"`
	CreatedAt time.Time       `json:"createdAt"`
	Role      models.UserRole `json:"role"`
}

// AuthService defines the authentication operations used by AuthHandler
type AuthService interface {
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Refresh(ctx context.Context, refreshToken string) (*services.AuthResult, error)
	Me(ctx context.Context, subject string) (*models.User, error)
}

// AuthHandler handles the /api/auth endpoints
type AuthHandler struct {
	service AuthService
	cookies *auth.CookieManager
	logger  *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthService, cookies *auth.CookieManager, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		cookies: cookies,
		logger:  logger,
	}
}

// HandleLogin handles POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req LoginRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.logger.Info("login failed", zap.String("request_id", requestID))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("user logged in",
		zap.String("request_id", requestID),
		zap.String("user_id", result.User.ID.String()))
	h.writeTokens(w, result)
}

// HandleRegister handles POST /api/auth/register. Success is a 200 with an
// empty body.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if _, err := h.service.Register(r.Context(), services.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	}); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	// The client logs in separately; nothing is returned.
	w.WriteHeader(http.StatusOK)
}

// HandleRefresh handles POST /api/auth/refresh. The refresh cookie is
// rotated on success.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Refresh(r.Context(), auth.FromRequest(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	h.writeTokens(w, result)
}

// HandleLogout handles POST /api/auth/logout by clearing the refresh cookie.
// Issued tokens stay valid until they expire.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookies.Clear())
	if err := utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse{Message: "Logged out"}); err != nil {
		h.logger.Error("failed to write logout response", zap.Error(err))
	}
}

// HandleMe handles GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentityFromContext(ctx)
	if identity == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	user, err := h.service.Me(ctx, identity.Subject)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteJSON(w, http.StatusOK, toUserResponse(user)); err != nil {
		h.logger.Error("failed to write me response", zap.Error(err))
	}
}

func (h *AuthHandler) writeTokens(w http.ResponseWriter, result *services.AuthResult) {
	http.SetCookie(w, h.cookies.Issue(result.Tokens.RefreshToken))
	response := AuthResponse{
		AccessToken: result.Tokens.AccessToken,
		UserID:      result.User.ID,
		Email:       result.User.Email,
		Username:    result.User.Username,
	}
	if err := utils.WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("failed to write token response", zap.Error(err))
	}
}

func toUserResponse(user *models.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
		Role:      user.Role,
	}
}
