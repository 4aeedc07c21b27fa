package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lostboard/apiserver/internal/services"
	"go.uber.org/zap"
)

// AuthHandler provides registration and login endpoints.
type AuthHandler struct {
	authService *services.AuthService
	logger      *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(authService *services.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: logger}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, authService *services.AuthService, logger *zap.Logger) {
	handler := NewAuthHandler(authService, logger)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
}

// RequireAuth enforces bearer token authentication and injects the
// Principal into the request context.
func RequireAuth(tokens *services.TokenManager, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			claims, err := tokens.Verify(tokenString)
			if err != nil {
				if services.KindOf(err) == services.KindInternal {
					logger.Error("token verification failed", zap.Error(err))
					writeError(w, http.StatusInternalServerError, "token verification unavailable")
					return
				}
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := withPrincipal(r.Context(), Principal{ID: claims.ID, Username: claims.Username})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Register creates a new user account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	_, err := h.authService.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "User registered successfully"})
}

// Login verifies credentials and returns a JWT. An unknown email and a wrong
// password are both client errors.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch services.KindOf(err) {
		case services.KindNotFound, services.KindUnauthenticated:
			var svcErr *services.Error
			errors.As(err, &svcErr)
			writeError(w, http.StatusBadRequest, svcErr.Message)
		default:
			writeServiceError(w, r, h.logger, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

var (
	errNoToken        = errors.New("no token provided")
	errMalformedToken = errors.New("malformed token")
)

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errNoToken
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errMalformedToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errMalformedToken
	}
	return token, nil
}
