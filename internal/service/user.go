package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"estatechat/internal/models"
	"estatechat/internal/repository"
	"estatechat/internal/utils"
)

type UserService struct {
	userRepo   repository.UserRepository
	tokens     *utils.TokenManager
	log        *slog.Logger
	bcryptCost int
}

func NewUserService(userRepo repository.UserRepository, tokens *utils.TokenManager, log *slog.Logger) *UserService {
	return &UserService{userRepo: userRepo, tokens: tokens, log: log, bcryptCost: bcrypt.DefaultCost}
}

type RegisterInput struct {
	Email    string          `json:"email" binding:"required,email"`
	Password string          `json:"password" binding:"required,min=8,max=72"`
	Name     string          `json:"name" binding:"max=100"`
	Role     models.UserRole `json:"role"`
}

// Register 建立帳號並直接簽發 token，角色預設為 buyer
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, "", fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	role := in.Role
	if role == "" {
		role = models.RoleBuyer
	}
	if !role.Valid() || role == models.RoleAdmin {
		return nil, "", fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, role)
	}

	if _, err := s.userRepo.FindByEmail(ctx, email); err == nil {
		return nil, "", ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, "", fmt.Errorf("lookup user: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{Email: email, Password: string(hashed), Name: in.Name, Role: role}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	s.log.Info("user registered", slog.String("user_id", user.ID), slog.String("role", string(role)))
	return user, token, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	return user, token, nil
}

// Authenticate 驗證 REST 請求帶的 token
func (s *UserService) Authenticate(token string) (*utils.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrAuthenticationRequired
	}
	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
