package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"

	"github.com/careloop/careteam/internal/models"
	"github.com/careloop/careteam/pkg/crypto"
	apperrors "github.com/careloop/careteam/pkg/errors"
	"github.com/careloop/careteam/pkg/metrics"
)

// ErrEmailTaken signals a registration against an existing account email.
var ErrEmailTaken = apperrors.New("EMAIL_TAKEN", "An account with this email already exists", http.StatusConflict)

// RegisterUserInput captures new account attributes.
type RegisterUserInput struct {
	Email     string
	Password  string
	Role      models.Role
	FirstName string
	LastName  string
}

// UserService manages account records and credential checks.
type UserService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, audit *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db, audit: audit}, nil
}

// Register creates a new account with a hashed password.
func (s *UserService) Register(ctx context.Context, input RegisterUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if len(input.Password) < 8 {
		return nil, apperrors.NewBadRequest("password must be at least 8 characters")
	}
	if !input.Role.Valid() {
		return nil, apperrors.NewBadRequest("unknown account role")
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := models.User{
		Email:     email,
		Password:  hash,
		Role:      input.Role,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &user.ID,
		Action:   "user.register",
		Resource: user.ID,
		Result:   "success",
		Metadata: map[string]any{"role": string(user.Role)},
	})

	return &user, nil
}

// Authenticate verifies the email and password pair, returning the account on
// success. Unknown emails and wrong passwords report the same error.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", normaliseEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		recordAudit(s.audit, ctx, AuditEntry{
			UserID:   &user.ID,
			Action:   "user.login",
			Resource: user.ID,
			Result:   "failure",
		})
		return nil, apperrors.ErrInvalidCredentials
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &user.ID,
		Action:   "user.login",
		Resource: user.ID,
		Result:   "success",
	})

	return &user, nil
}

// GetByID loads an account by id.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	return &user, nil
}
