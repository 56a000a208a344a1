package services

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/vikasavnish/botbridge/internal/apperr"
	"github.com/vikasavnish/botbridge/internal/keyspace"
	"github.com/vikasavnish/botbridge/internal/models"
)

// AccountDirectory answers whether a brokerage account belongs to a user.
type AccountDirectory interface {
	Owns(ctx context.Context, userID uint, accountNumber string) (bool, error)
}

// AccountService defines the interface for account-related operations
type AccountService interface {
	AccountDirectory
	ListAccounts(ctx context.Context, userID uint) ([]models.Account, error)
	RegisterAccount(ctx context.Context, userID uint, accountNumber, broker string) (models.Account, error)
}

// accountService implements AccountService on the relational store
type accountService struct {
	db *gorm.DB
}

// NewAccountService creates a new account service
func NewAccountService(db *gorm.DB) AccountService {
	return &accountService{
		db: db,
	}
}

func (s *accountService) Owns(ctx context.Context, userID uint, accountNumber string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ? AND account_number = ?", userID, accountNumber).
		Count(&count).Error
	if err != nil {
		return false, apperr.Internal(errors.Wrap(err, "lookup account"), "account lookup failed")
	}
	return count > 0, nil
}

// ListAccounts returns the accounts of a user ordered by account number
func (s *accountService) ListAccounts(ctx context.Context, userID uint) ([]models.Account, error) {
	var accounts []models.Account
	result := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("account_number").Find(&accounts)
	if result.Error != nil {
		return nil, apperr.Internal(errors.Wrap(result.Error, "list accounts"), "account lookup failed")
	}
	return accounts, nil
}

// RegisterAccount records a new account for the user. The account number
// must be usable as a key namespace.
func (s *accountService) RegisterAccount(ctx context.Context, userID uint, accountNumber, broker string) (models.Account, error) {
	accountNumber = strings.TrimSpace(accountNumber)
	if err := keyspace.ValidateAccount(accountNumber); err != nil {
		return models.Account{}, err
	}
	owned, err := s.Owns(ctx, userID, accountNumber)
	if err != nil {
		return models.Account{}, err
	}
	if owned {
		return models.Account{}, apperr.Constraint("account %s already registered", accountNumber)
	}

	account := models.Account{UserID: userID, AccountNumber: accountNumber, Broker: broker}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		return models.Account{}, apperr.Internal(errors.Wrap(err, "create account"), "account registration failed")
	}
	return account, nil
}

// ResolveNamespace validates accountNumber and checks that it belongs to the
// user before handing out its namespace.
func ResolveNamespace(ctx context.Context, dir AccountDirectory, userID uint, accountNumber string) (keyspace.Namespace, error) {
	ns, err := keyspace.New(userID, accountNumber)
	if err != nil {
		return keyspace.Namespace{}, err
	}
	owned, err := dir.Owns(ctx, userID, accountNumber)
	if err != nil {
		return keyspace.Namespace{}, err
	}
	if !owned {
		return keyspace.Namespace{}, apperr.Forbidden("account %s does not belong to this user", accountNumber)
	}
	return ns, nil
}
