package services

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/vikasavnish/botbridge/internal/apperr"
	"github.com/vikasavnish/botbridge/internal/models"
	"github.com/vikasavnish/botbridge/internal/validation"
)

const roleAdmin = "admin"

// UserService defines the interface for user-related operations
type UserService interface {
	GetUser(ctx context.Context, id uint) (models.User, error)
	CreateUser(ctx context.Context, actorID uint, req models.CreateUserRequest) (models.User, error)
	IsUserAdmin(ctx context.Context, userID uint) (bool, error)
}

// userService implements the UserService interface
type userService struct {
	db       *gorm.DB
	validate *validation.Validator
}

// NewUserService creates a new user service
func NewUserService(db *gorm.DB, v *validation.Validator) UserService {
	return &userService{
		db:       db,
		validate: v,
	}
}

// GetUser returns a user by id
func (s *userService) GetUser(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	result := s.db.WithContext(ctx).Select("id, username, email, role").First(&user, id) // Exclude password field
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.User{}, apperr.NotFound("user %d not found", id)
	}
	if result.Error != nil {
		return models.User{}, apperr.Internal(errors.Wrap(result.Error, "get user"), "user lookup failed")
	}
	return user, nil
}

// CreateUser creates a new user. Only admins may create users.
func (s *userService) CreateUser(ctx context.Context, actorID uint, req models.CreateUserRequest) (models.User, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.User{}, err
	}
	admin, err := s.IsUserAdmin(ctx, actorID)
	if err != nil {
		return models.User{}, err
	}
	if !admin {
		return models.User{}, apperr.Forbidden("only admins can create users")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", req.Username).Count(&count).Error; err != nil {
		return models.User{}, apperr.Internal(errors.Wrap(err, "count users"), "user lookup failed")
	}
	if count > 0 {
		return models.User{}, apperr.Constraint("username %s already taken", req.Username)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, apperr.Internal(errors.Wrap(err, "hash password"), "user creation failed")
	}
	role := req.Role
	if role == "" {
		role = "user"
	}
	user := models.User{Username: req.Username, HashedPassword: string(hashed), Email: req.Email, Role: role}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return models.User{}, apperr.Internal(errors.Wrap(err, "create user"), "user creation failed")
	}
	return user, nil
}

// IsUserAdmin checks if a user has admin role
func (s *userService) IsUserAdmin(ctx context.Context, userID uint) (bool, error) {
	user, err := s.GetUser(ctx, userID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.Role == roleAdmin, nil
}
