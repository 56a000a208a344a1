package models

import (
	"time"

	"github.com/dgrijalva/jwt-go"
)

type User struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	Username       string `gorm:"unique" json:"username"`
	HashedPassword string `json:"-" gorm:"column:hashed_password"`
	Email          string `json:"email"`
	Role           string `json:"role"`
}

// Account is a brokerage account registered by a user. Only ownership is
// consulted here; the execution worker owns everything else about it.
type Account struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"index:idx_account_owner,unique" json:"userId"`
	AccountNumber string    `gorm:"index:idx_account_owner,unique;size:64" json:"accountNumber"`
	Broker        string    `json:"broker,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Claims for JWT authentication
type Claims struct {
	UserID   uint   `json:"userId"`
	Username string `json:"username"`
	jwt.StandardClaims
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RegisterAccountRequest struct {
	AccountNumber string `json:"accountNumber" validate:"required,max=64"`
	Broker        string `json:"broker,omitempty" validate:"omitempty,max=64"`
}

type CreateUserRequest struct {
	Username string `json:"username" validate:"required,max=64,keysafe"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=admin user"`
}
