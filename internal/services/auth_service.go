package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	db         *gorm.DB
	cfg        *config.Config
	clock      clock.Clock
	moderation *ModerationService
}

func NewAuthService(db *gorm.DB, cfg *config.Config, clk clock.Clock, moderation *ModerationService) *AuthService {
	return &AuthService{
		db:         db,
		cfg:        cfg,
		clock:      clk,
		moderation: moderation,
	}
}

// NewUser validates registration input and builds an unsaved user with a
// hashed password. Fixture seeding shares it with Register.
func (s *AuthService) NewUser(req *dto.RegisterRequest) (*models.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}
	username, err := NormalizeUsername(req.Username)
	if err != nil {
		return nil, err
	}
	displayName := req.DisplayName
	if strings.TrimSpace(displayName) == "" {
		displayName = username
	}
	displayName, err = s.moderation.CheckDisplayName(displayName)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return &models.User{
		ID:          uuid.New(),
		Email:       email,
		Password:    string(hash),
		Username:    username,
		DisplayName: displayName,
		AvatarURI:   DefaultAvatarURI(username),
		Role:        "user",
	}, nil
}

// CreateUser inserts a prepared user, translating uniqueness violations.
func (s *AuthService) CreateUser(ctx context.Context, user *models.User) error {
	db := s.db.WithContext(ctx)

	var taken int64
	if err := db.Model(&models.User{}).Unscoped().Where("email = ?", user.Email).Count(&taken).Error; err != nil {
		return storeErr("check email", err)
	}
	if taken > 0 {
		return ErrEmailTaken
	}
	if err := db.Model(&models.User{}).Unscoped().Where("username = ?", user.Username).Count(&taken).Error; err != nil {
		return storeErr("check username", err)
	}
	if taken > 0 {
		return ErrUsernameTaken
	}

	now := s.clock.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if err := db.Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrUsernameTaken
		}
		return storeErr("create user", err)
	}
	return nil
}

func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	user, err := s.NewUser(req)
	if err != nil {
		return nil, err
	}
	if err := s.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	slog.Info("user registered", "action", "register", "user_id", user.ID.String())
	return s.generateTokenPair(ctx, user)
}

func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.generateTokenPair(ctx, &user)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *AuthService) Refresh(ctx context.Context, req *dto.RefreshRequest) (*dto.AuthResponse, error) {
	tokenHash := hashToken(req.RefreshToken)
	db := s.db.WithContext(ctx)

	var stored models.RefreshToken
	if err := db.Where("token_hash = ? AND revoked = ?", tokenHash, false).First(&stored).Error; err != nil {
		return nil, ErrInvalidToken
	}

	result := db.Model(&models.RefreshToken{}).
		Where("id = ? AND revoked = ?", stored.ID, false).
		Update("revoked", true)
	if result.Error != nil {
		return nil, storeErr("revoke refresh token", result.Error)
	}
	// A concurrent refresh already spent this token.
	if result.RowsAffected == 0 {
		return nil, ErrInvalidToken
	}
	if s.clock.Now().After(stored.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	var user models.User
	if err := db.First(&user, "id = ?", stored.UserID).Error; err != nil {
		return nil, ErrInvalidToken
	}

	return s.generateTokenPair(ctx, &user)
}

func (s *AuthService) Logout(ctx context.Context, req *dto.LogoutRequest) error {
	tokenHash := hashToken(req.RefreshToken)
	return s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ?", tokenHash).
		Update("revoked", true).Error
}

// DeleteAccount soft-deletes the user after a password check. Revealed
// ratings the user gave stay counted in other users' scores; blocks are
// kept so a re-registered identity cannot bypass them by id.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uuid.UUID, password string) error {
	if password == "" {
		return ErrPasswordRequired
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("(user_a = ? OR user_b = ?) AND status <> ?", userID, userID, models.ConnectionBlocked).
			Delete(&models.Connection{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		return storeErr("delete account", err)
	}
	slog.Info("account deleted", "action", "delete_account", "user_id", userID.String())
	return nil
}

func (s *AuthService) generateTokenPair(ctx context.Context, user *models.User) (*dto.AuthResponse, error) {
	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.generateRefreshToken(ctx, user)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         dto.NewUserResponse(user),
	}, nil
}

func (s *AuthService) generateAccessToken(user *models.User) (string, error) {
	now := s.clock.Now()
	claims := jwt.MapClaims{
		"sub":      user.ID.String(),
		"username": user.Username,
		"role":     user.Role,
		"iat":      now.Unix(),
		"exp":      now.Add(s.cfg.JWTAccessExpiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *AuthService) generateRefreshToken(ctx context.Context, user *models.User) (string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	rawToken := base64.URLEncoding.EncodeToString(rawBytes)
	now := s.clock.Now()

	record := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(rawToken),
		ExpiresAt: now.Add(s.cfg.JWTRefreshExpiry),
		CreatedAt: now,
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return rawToken, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

