package services

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ruralpay/wallet/internal/config"
	"github.com/ruralpay/wallet/internal/identity"
	"github.com/ruralpay/wallet/internal/middleware"
	"github.com/ruralpay/wallet/internal/models"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"
)

type AuthService struct {
	users     identity.Directory
	redis     *redis.Client
	validator *validator.Validate
	jwt       config.JWTConfig
	argon2    config.Argon2Config
	now       func() time.Time
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Username string `json:"username" validate:"required" example:"alice"`             // Username
	Password string `json:"password" validate:"required,min=6" example:"password123"` // User password
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,alphanum" example:"alice"` // Unique login name
	Password string `json:"password" validate:"required,min=6" example:"password123"`           // User password
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token string      `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	User  models.User `json:"user"`                                                    // User information
}

func NewAuthService(users identity.Directory, redisClient *redis.Client, jwtConfig config.JWTConfig, argon2Config config.Argon2Config) *AuthService {
	return &AuthService{
		users:     users,
		redis:     redisClient,
		validator: validator.New(),
		jwt:       jwtConfig,
		argon2:    argon2Config,
		now:       time.Now,
	}
}

func (s *AuthService) sendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	SendErrorResponse(w, message, statusCode, validationErr)
}

// Register handles user registration
// @Summary Register a new user
// @Description Register a new wallet user with a username and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 201 {object} AuthResponse "Registration successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 409 {object} ErrorResponse "Username already exists"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	var req RegisterRequest
	if msg, ok := DecodeJSON(w, r, &req); !ok {
		s.sendErrorResponse(w, msg, http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	user, err := s.createUser(r.Context(), req.Username, req.Password, models.RoleUser)
	if errors.Is(err, identity.ErrUsernameTaken) {
		log.Printf("[AUTH] Registration refused, username %s exists", req.Username)
		s.sendErrorResponse(w, "Username already exists", http.StatusConflict, nil)
		return
	}
	if err != nil {
		log.Printf("[AUTH] User creation failed for %s: %v", req.Username, err)
		s.sendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	token, err := s.generateJWT(user)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %s: %v", user.ID, err)
		s.sendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Registration successful for user %s (%s)", user.ID, user.Username)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: *user})
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate user with username and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if msg, ok := DecodeJSON(w, r, &req); !ok {
		s.sendErrorResponse(w, msg, http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	user, err := s.users.ResolveUserByName(r.Context(), req.Username)
	if errors.Is(err, identity.ErrUserNotFound) {
		log.Printf("[AUTH] User not found: %s", req.Username)
		s.sendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}
	if err != nil {
		log.Printf("[AUTH] User lookup failed for %s: %v", req.Username, err)
		s.sendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	if !s.verifyPassword(req.Password, user.PasswordHash) {
		log.Printf("[AUTH] Invalid password for user: %s", req.Username)
		s.sendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := s.generateJWT(user)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %s: %v", user.ID, err)
		s.sendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for user %s", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: *user})
}

// Logout handles user logout
// @Summary Logout user
// @Description Logout user and blacklist token
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := middleware.BearerToken(r.Header.Get("Authorization")); ok && s.redis != nil {
		// Blacklist token until its expiration
		if err := s.redis.Set(r.Context(), middleware.BlacklistKey(token), "1", s.jwt.Expiry).Err(); err != nil {
			log.Printf("[AUTH] Failed to blacklist token: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// EnsureAdmin creates the administrator account unless a user with that name
// already exists.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) error {
	_, err := s.users.ResolveUserByName(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, identity.ErrUserNotFound) {
		return err
	}

	user, err := s.createUser(ctx, username, password, models.RoleAdmin)
	if errors.Is(err, identity.ErrUsernameTaken) {
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("[AUTH] Admin account %s created", user.Username)
	return nil
}

func (s *AuthService) createUser(ctx context.Context, username, password, role string) (*models.User, error) {
	hashedPassword, err := s.hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return s.users.CreateUser(ctx, username, hashedPassword, role)
}

func (s *AuthService) generateJWT(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"role":    user.Role,
		"exp":     s.now().Add(s.jwt.Expiry).Unix(),
	})

	return token.SignedString([]byte(s.jwt.SecretKey))
}

func (s *AuthService) hashPassword(password string) (string, error) {
	salt := make([]byte, s.argon2.SaltLength)
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := s.deriveKey(password, salt)
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func (s *AuthService) verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(hash, s.deriveKey(password, salt)) == 1
}

func (s *AuthService) deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, s.argon2.Time, s.argon2.Memory, s.argon2.Threads, s.argon2.KeyLength)
}
