package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/vikar-api/internal/models"
	"github.com/noah-isme/vikar-api/internal/repository"
	appErrors "github.com/noah-isme/vikar-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
}

// AuthService registers accounts and issues access and refresh tokens.
type AuthService struct {
	repo      authUserRepository
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       Clock
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{repo: repo, validator: validate, logger: logger, config: config, now: utcNow}
}

// HashPassword returns the bcrypt hash stored for new accounts.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a company or worker account. Admins are bootstrapped
// through the operator CLI only.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.UserInfo, error) {
	req.Email = normalizeEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	role, err := models.ParseRole(req.Role)
	if err != nil || role == models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role must be COMPANY or WORKER")
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}
	user := &models.User{
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     req.FullName,
		Role:         role,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
		}
		return nil, appErrors.Internal(err, "failed to create user")
	}

	emitAudit(ctx, s.repo, s.logger, user.ID, models.AuditActionRegister, "auth", user.ID, map[string]string{"role": string(role)})
	info := userInfo(user)
	return &info, nil
}

// Login authenticates a user and returns issued tokens. Suspended workers can
// still log in; the suspension is reported in the user info.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Internal(err, "failed to fetch user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}
	if !user.Active {
		return nil, appErrors.ErrInactiveAccount
	}

	resp, err := s.issueSession(ctx, user, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLastLogin(ctx, user.ID, resp.IssuedAt); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	s.recordAuth(ctx, user.ID, models.AuditActionLogin, `{"status":"success"}`, req.IP, req.UserAgent)
	return resp, nil
}

// Refresh rotates a refresh token and issues a new token pair.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	stored, err := s.repo.FindRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return nil, appErrors.Internal(err, "failed to fetch refresh token")
	}
	now := s.now()
	if stored.Revoked || now.After(stored.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is expired or revoked")
	}

	user, err := s.repo.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated user no longer exists")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.ErrInactiveAccount
	}

	if err := s.repo.RevokeRefreshToken(ctx, stored.ID, now); err != nil {
		return nil, appErrors.Internal(err, "failed to revoke refresh token")
	}
	return s.issueSession(ctx, user, req.IP, req.UserAgent)
}

// Logout revokes the provided refresh token.
func (s *AuthService) Logout(ctx context.Context, userID string, req models.RefreshTokenRequest) error {
	stored, err := s.repo.FindRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return appErrors.Internal(err, "failed to load refresh token")
	}
	if stored.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
	}
	if err := s.repo.RevokeRefreshToken(ctx, stored.ID, s.now()); err != nil {
		return appErrors.Internal(err, "failed to revoke refresh token")
	}
	s.recordAuth(ctx, userID, models.AuditActionLogout, `{"status":"logout"}`, req.IP, req.UserAgent)
	return nil
}

// Me returns the profile of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, lookupError(err, "user not found", "failed to load user")
	}
	info := userInfo(user)
	return &info, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if _, err := models.ParseRole(string(claims.Role)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token role")
	}
	return claims, nil
}

func (s *AuthService) issueSession(ctx context.Context, user *models.User, ip, userAgent string) (*models.LoginResponse, error) {
	issuedAt := s.now()
	accessToken, err := s.signAccessToken(user, issuedAt)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create access token")
	}
	value, err := randomToken()
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create refresh token")
	}
	refresh := &models.RefreshToken{
		UserID:    user.ID,
		Token:     value,
		ExpiresAt: issuedAt.Add(s.config.RefreshTokenExpiry),
		CreatedAt: issuedAt,
		IPAddress: ip,
		UserAgent: userAgent,
	}
	if err := s.repo.CreateRefreshToken(ctx, refresh); err != nil {
		return nil, appErrors.Internal(err, "failed to persist refresh token")
	}
	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refresh.Token,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     issuedAt,
		User:         userInfo(user),
	}, nil
}

func (s *AuthService) signAccessToken(user *models.User, issuedAt time.Time) (string, error) {
	claims := &models.JWTClaims{
		UserID:   user.ID,
		Role:     user.Role,
		Email:    user.Email,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
}

func (s *AuthService) recordAuth(ctx context.Context, userID, action, payload, ip, userAgent string) {
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "auth",
		ResourceID: &userID,
		NewValues:  []byte(payload),
		IPAddress:  ip,
		UserAgent:  userAgent,
	}); err != nil {
		s.logger.Warn("failed to record auth audit log", zap.String("action", action), zap.Error(err))
	}
}

func userInfo(user *models.User) models.UserInfo {
	return models.UserInfo{
		ID:          user.ID,
		Email:       user.Email,
		FullName:    user.FullName,
		Role:        user.Role,
		BannedUntil: user.BannedUntil,
	}
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
