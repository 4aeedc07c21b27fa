package services

import (
	"context"
	"errors"
	"strings"

	"github.com/lostboard/apiserver/internal/store"
	"github.com/lostboard/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, user types.User) error
}

// AuthService registers accounts and exchanges credentials for tokens.
type AuthService struct {
	users      UserRepository
	tokens     *TokenManager
	bcryptCost int
}

func NewAuthService(users UserRepository, tokens *TokenManager, bcryptCost int) *AuthService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{users: users, tokens: tokens, bcryptCost: bcryptCost}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token string           `json:"token"`
	User  types.PublicUser `json:"user"`
}

// Register creates an account. Username and email uniqueness is enforced by
// the store in the same statement as the insert.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return types.User{}, newError(KindInvalidArgument, "username, email and password are required")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return types.User{}, newError(KindInvalidArgument, "password is too long")
		}
		return types.User{}, internalError("failed to create user", err)
	}

	user, err := s.users.Create(ctx, types.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if conflict := conflictError(err); conflict != nil {
			return types.User{}, conflict
		}
		return types.User{}, internalError("failed to create user", err)
	}
	return user, nil
}

// Login verifies the password for the account registered with email.
func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{}, newError(KindInvalidArgument, "email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, newError(KindNotFound, "user not found")
		}
		return LoginResult{}, internalError("failed to authenticate", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, newError(KindUnauthenticated, "wrong password")
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, User: user.Public()}, nil
}

// conflictError translates a store uniqueness violation, or returns nil.
func conflictError(err error) *Error {
	var violation *store.UniqueViolation
	if errors.As(err, &violation) {
		return &Error{Kind: KindConflict, Message: violation.Error(), Err: err}
	}
	if errors.Is(err, store.ErrConflict) {
		return &Error{Kind: KindConflict, Message: "user already exists", Err: err}
	}
	return nil
}
