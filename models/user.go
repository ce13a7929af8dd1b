package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/portal_backend/config"
	"bitbucket.org/mmdatafocus/portal_backend/utils"
	"github.com/google/uuid"
)

type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Username     string    `gorm:"size:255;not null;uniqueIndex" json:"username"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Email        string    `gorm:"size:255" json:"email"`
	Phone        string    `gorm:"size:64" json:"phone"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         UserRole  `gorm:"type:enum('admin','reviewer','staff');not null;default:'staff'" json:"role"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string `json:"username" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required"`
}

func (u *User) HasReviewerAuthority() bool {
	return u.Role.HasReviewerAuthority()
}

func (input *NewUser) validate() (UserRole, error) {
	role, err := ParseUserRole(input.Role)
	if err != nil {
		return "", utils.ValidationErrorf("%s", err.Error())
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return "", utils.ValidationErrorf("invalid phone number")
		}
	}
	return role, nil
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	role, err := input.validate()
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[User](ctx, "username = ?", input.Username)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.ValidationErrorf("username already taken")
	}

	hash, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		Username:     input.Username,
		Name:         input.Name,
		Email:        input.Email,
		Phone:        input.Phone,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	return utils.FetchModel[User](ctx, id)
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &user, nil
}

// Login verifies credentials, issues a JWT and registers a redis session
// token (Token:<token> -> username) for the session middleware.
func Login(ctx context.Context, username string, password string) (*User, string, string, error) {
	user, err := GetUserByUsername(ctx, username)
	if err != nil {
		return nil, "", "", utils.ForbiddenErrorf("invalid credentials")
	}
	if user.IsActive != nil && !*user.IsActive {
		return nil, "", "", utils.ForbiddenErrorf("account disabled")
	}
	if err := utils.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", "", utils.ForbiddenErrorf("invalid credentials")
	}

	jwtToken, err := utils.JwtGenerate(user.ID, string(user.Role))
	if err != nil {
		return nil, "", "", err
	}

	sessionToken := uuid.NewString()
	// session loss only degrades to JWT auth, so redis errors are not fatal
	if err := config.SetRedisValue("Token:"+sessionToken, user.Username, 24*time.Hour); err != nil {
		logger := config.GetLogger()
		config.LogError(logger, "models", "Login", "set session token", username, err)
	}

	return user, jwtToken, sessionToken, nil
}
