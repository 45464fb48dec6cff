package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/VasantLong/cgms2025/internal/config"
	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/ports"
	"github.com/VasantLong/cgms2025/internal/response"
)

// Claims extends JWT standard claims with the caller's role and permissions.
type Claims struct {
	jwt.RegisteredClaims
	Username    string             `json:"username"`
	Role        model.Role         `json:"role"`
	Permissions []model.Permission `json:"permissions"`
}

// UserSN returns the numeric subject of the token.
func (c *Claims) UserSN() (int, error) {
	return strconv.Atoi(c.Subject)
}

// AuthService handles authentication, JWT and principal resolution.
type AuthService struct {
	cfg   *config.Config
	users ports.UserStore
	cache ports.Cache
	log   zerolog.Logger
	now   func() time.Time
}

// NewAuthService creates a new AuthService. cache may be nil.
func NewAuthService(cfg *config.Config, users ports.UserStore, cache ports.Cache, log zerolog.Logger) *AuthService {
	return &AuthService{
		cfg:   cfg,
		users: users,
		cache: cache,
		log:   log.With().Str("component", "auth_service").Logger(),
		now:   time.Now,
	}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Login verifies credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := s.CheckPassword(user.PasswordHash, req.Password); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.GenerateToken(user)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int("user_sn", user.SN).Str("role", string(user.Role)).Msg("User logged in")
	return &model.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
		User:        *user,
		Permissions: user.Role.Permissions(),
	}, nil
}

// GenerateToken creates a signed HS256 JWT for user.
func (s *AuthService) GenerateToken(user *model.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.JWTExpiry)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.Itoa(user.SN),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username:    user.Username,
		Role:        user.Role,
		Permissions: user.Role.Permissions(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
// Expired tokens yield an error wrapping jwt.ErrTokenExpired.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Principal resolves the user behind validated claims. The user record is
// cached per token id so a role change applies within the cache TTL.
func (s *AuthService) Principal(ctx context.Context, claims *Claims) (*model.User, error) {
	key := config.CacheKey.PrincipalKey(claims.ID)
	if s.cache != nil {
		if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var u model.User
			if err := json.Unmarshal(raw, &u); err == nil {
				return &u, nil
			}
		} else if err != nil {
			s.log.Warn().Err(err).Msg("Principal cache unavailable")
		}
	}

	sn, err := claims.UserSN()
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.users.GetByID(ctx, sn)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("load principal: %w", err)
	}

	if s.cache != nil {
		if raw, err := json.Marshal(user); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.cfg.UserCacheTTL); err != nil {
				s.log.Warn().Err(err).Msg("Failed to cache principal")
			}
		}
	}
	return user, nil
}

// CreateUser registers an operator account.
func (s *AuthService) CreateUser(ctx context.Context, username, password string, role model.Role) (*model.User, error) {
	username = strings.TrimSpace(username)
	fields := map[string]string{}
	if username == "" {
		fields["username"] = "is required"
	}
	if len(password) < 8 {
		fields["password"] = "must be at least 8 characters"
	}
	if !role.Valid() {
		fields["role"] = "must be one of admin, secretary, teacher, viewer"
	}
	if len(fields) > 0 {
		return nil, invalid("invalid user", fields)
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{Username: username, PasswordHash: hash, Role: role}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return nil, conflict(response.ErrDuplicate, "username "+username+" is already taken", err)
		}
		return nil, err
	}
	return u, nil
}

// RoleAuthorizer grants permissions by the principal's role.
type RoleAuthorizer struct{}

// Can implements ports.Authorizer.
func (RoleAuthorizer) Can(principal *model.User, p model.Permission) bool {
	return principal != nil && principal.Role.Can(p)
}
