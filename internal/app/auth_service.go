package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pdfchat/internal/model"
	"pdfchat/internal/pkg/jwtutil"
	"pdfchat/internal/repository"
)

var (
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid email or password")
	ErrInvalidResetCode  = errors.New("invalid or expired reset code")
)

const (
	purposePasswordReset  = "password_reset"
	maxResetCodeAttempts  = 5
	minimumPasswordLength = 8
)

// Mailer delivers verification codes; implemented over SMTP.
type Mailer interface {
	SendResetCode(to, code string) error
}

// AuthService handles registration, login and password reset. Login
// reclaims the user's empty session and binds its id into the token,
// so every authenticated request starts on a single well-known ACTIVE
// session.
type AuthService struct {
	users        *repository.UserRepository
	sessions     *SessionService
	codes        *repository.VerificationCodeRepository
	mailer       Mailer
	log          *slog.Logger
	jwtSecret    string
	jwtExpiry    time.Duration
	resetCodeTTL time.Duration
}

type RegisterInput struct {
	Email    string
	Password string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResult struct {
	Token     string         `json:"token"`
	User      *model.User    `json:"user"`
	SessionID uint           `json:"session_id"`
	Session   *model.Session `json:"session,omitempty"`
}

func NewAuthService(
	users *repository.UserRepository,
	sessions *SessionService,
	codes *repository.VerificationCodeRepository,
	mailer Mailer,
	log *slog.Logger,
	jwtSecret string,
	jwtExpiry time.Duration,
	resetCodeTTL time.Duration,
) *AuthService {
	if resetCodeTTL <= 0 {
		resetCodeTTL = 15 * time.Minute
	}
	return &AuthService{
		users:        users,
		sessions:     sessions,
		codes:        codes,
		mailer:       mailer,
		log:          log,
		jwtSecret:    jwtSecret,
		jwtExpiry:    jwtExpiry,
		resetCodeTTL: resetCodeTTL,
	}
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	password := strings.TrimSpace(input.Password)
	if email == "" || len(password) < minimumPasswordLength {
		return nil, ErrInvalidInput
	}

	existing, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	user := &model.User{Email: email, PasswordHash: string(hash)}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}

	session, err := s.sessions.CreateSession(CreateSessionInput{UserID: user.ID})
	if err != nil {
		return nil, err
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiry, user.ID, session.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user, SessionID: session.ID, Session: session}, nil
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	password := strings.TrimSpace(input.Password)
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	session, err := s.sessions.GetOrCreateEmptySession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiry, user.ID, session.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user, SessionID: session.ID, Session: session}, nil
}

func (s *AuthService) GetUserByID(id uint) (*model.User, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	return s.users.GetByID(id)
}

// RequestPasswordReset mails a short-lived code to the address. It
// succeeds silently for unknown addresses so the endpoint does not leak
// which emails are registered.
func (s *AuthService) RequestPasswordReset(email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ErrInvalidInput
	}

	user, err := s.users.GetByEmail(email)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	code, err := generateResetCode()
	if err != nil {
		return err
	}
	record := &model.VerificationCode{
		UserID:    user.ID,
		Code:      code,
		Purpose:   purposePasswordReset,
		ExpiresAt: time.Now().UTC().Add(s.resetCodeTTL),
	}
	if err := s.codes.Create(record); err != nil {
		return err
	}

	if s.mailer != nil {
		if err := s.mailer.SendResetCode(email, code); err != nil {
			return fmt.Errorf("send reset code failed: %w", err)
		}
	}
	s.log.Info("password reset code issued", "user_id", user.ID)
	return nil
}

func (s *AuthService) ResetPassword(email, code, newPassword string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	newPassword = strings.TrimSpace(newPassword)
	if email == "" || code == "" || len(newPassword) < minimumPasswordLength {
		return ErrInvalidInput
	}

	user, err := s.users.GetByEmail(email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrInvalidResetCode
	}

	record, err := s.codes.GetLatestActive(user.ID, purposePasswordReset, time.Now().UTC())
	if err != nil {
		return err
	}
	if record == nil || record.Attempts >= maxResetCodeAttempts {
		return ErrInvalidResetCode
	}
	if record.Code != code {
		_ = s.codes.IncrementAttempts(record.ID)
		return ErrInvalidResetCode
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password failed: %w", err)
	}
	if err := s.users.UpdatePassword(user.ID, string(hash)); err != nil {
		return err
	}
	return s.codes.MarkUsed(record.ID)
}

func generateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate reset code failed: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
