package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account/internal/account/entity"
	accountrepo "github.com/ovaphlow/pitchfork/service-account/internal/account/repo"
	activityentity "github.com/ovaphlow/pitchfork/service-account/internal/activity/entity"
	"github.com/ovaphlow/pitchfork/service-account/internal/resetcode"
	"github.com/ovaphlow/pitchfork/service-account/internal/session"
	"github.com/ovaphlow/pitchfork/service-account/pkg/utilities"
)

// AccountStore is the credential store used by the services.
type AccountStore interface {
	Insert(ctx context.Context, a *entity.Account) error
	FindByID(ctx context.Context, id int64) (*entity.Account, error)
	FindByUsername(ctx context.Context, username string) (*entity.Account, error)
	FindByUsernameAndMobile(ctx context.Context, username, mobile string) (*entity.Account, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash, algo string, at time.Time) (bool, error)
}

// AuditLog receives lifecycle events. Neither method may fail the caller.
// AppendDetached must not do I/O on the caller's goroutine.
type AuditLog interface {
	Append(ctx context.Context, accountID int64, action activityentity.Action, details string)
	AppendDetached(ctx context.Context, accountID int64, action activityentity.Action, details string)
}

// ResetCodes issues and consumes one-time reset codes.
type ResetCodes interface {
	Issue(ctx context.Context, accountID int64) (string, error)
	Consume(ctx context.Context, accountID int64, code string) error
}

// Session is the result of a successful login.
type Session struct {
	Account   entity.PublicAccount
	Token     string
	ExpiresAt time.Time
}

// ResetInput carries a password reset request. Code is only consulted when
// reset codes are required.
type ResetInput struct {
	Username     string `json:"username"`
	MobileNumber string `json:"mobileNumber"`
	NewPassword  string `json:"newPassword"`
	Code         string `json:"code,omitempty"`
}

// AuthService orchestrates registration, login and password reset.
type AuthService struct {
	accounts AccountStore
	audit    AuditLog
	hasher   PasswordHasher
	sessions *session.Issuer
	ids      *utilities.IDGenerator
	logger   *zap.SugaredLogger
	now      func() time.Time

	codes            ResetCodes
	sender           resetcode.Sender
	requireResetCode bool

	// dummyHash is verified when the username is unknown so that path costs
	// the same as a wrong password.
	dummyHash string
}

func NewAuthService(accounts AccountStore, audit AuditLog, hasher PasswordHasher, sessions *session.Issuer, ids *utilities.IDGenerator, logger *zap.SugaredLogger) (*AuthService, error) {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	dummy, _, err := hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &AuthService{
		accounts:  accounts,
		audit:     audit,
		hasher:    hasher,
		sessions:  sessions,
		ids:       ids,
		logger:    logger,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// WithResetCodes enables RequestResetCode. With require set, ResetPassword
// also demands a valid code.
func (s *AuthService) WithResetCodes(codes ResetCodes, sender resetcode.Sender, require bool) *AuthService {
	s.codes = codes
	s.sender = sender
	s.requireResetCode = require
	return s
}

// RequiresResetCode reports whether ResetPassword needs a one-time code.
func (s *AuthService) RequiresResetCode() bool { return s.requireResetCode }

// Register creates an account and records USER_REGISTRATION.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*entity.PublicAccount, error) {
	in = in.normalized()
	if err := in.validate(); err != nil {
		return nil, err
	}
	hash, algo, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.internal("hash password", err)
	}
	id, createdAt := s.ids.NextWithTime()
	a := &entity.Account{
		ID:                id,
		Username:          in.Username,
		PasswordHash:      hash,
		PasswordAlgo:      algo,
		MobileNumber:      in.MobileNumber,
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		Email:             in.Email,
		CreatedAt:         createdAt,
		PasswordUpdatedAt: createdAt,
	}
	if err := s.accounts.Insert(ctx, a); err != nil {
		if errors.Is(err, accountrepo.ErrDuplicateUsername) {
			return nil, ErrDuplicateUsername
		}
		if errors.Is(err, accountrepo.ErrDuplicateEmail) {
			return nil, invalidInput("email already exists")
		}
		return nil, s.internal("insert account", err)
	}
	s.audit.Append(ctx, a.ID, activityentity.ActionRegistration,
		fmt.Sprintf("User registered: %s (Username: %s)", a.Email, a.Username))

	pub := a.Public()
	return &pub, nil
}

// Login verifies credentials. Unknown usernames and wrong passwords both
// yield ErrInvalidCredentials; only the latter is recorded, as LOGIN_FAILED,
// because there is no account to attach the event to. That event is written
// off the request path so both failures cost one lookup and one bcrypt check.
func (s *AuthService) Login(ctx context.Context, username, password string) (*Session, error) {
	username = normalizeUsername(username)
	a, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.hasher.Verify(s.dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, s.internal("find account", err)
	}

	if !s.hasher.Verify(a.PasswordHash, password) {
		s.audit.AppendDetached(ctx, a.ID, activityentity.ActionLoginFailed, "Failed login attempt for: "+a.Username)
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.sessions.Issue(a.ID, a.Username)
	if err != nil {
		return nil, s.internal("issue session", err)
	}
	s.audit.Append(ctx, a.ID, activityentity.ActionLogin, "User logged in: "+a.Username)

	return &Session{Account: a.Public(), Token: token, ExpiresAt: exp}, nil
}

// ResetPassword replaces the password of the account matching both username
// and mobile number. No session is issued; the caller logs in again.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetInput) error {
	if err := validatePassword(in.NewPassword); err != nil {
		return err
	}
	if s.requireResetCode && strings.TrimSpace(in.Code) == "" {
		return invalidInput("reset code is required")
	}
	username := normalizeUsername(in.Username)
	mobile := strings.TrimSpace(in.MobileNumber)

	a, err := s.accounts.FindByUsernameAndMobile(ctx, username, mobile)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidCredentials
		}
		return s.internal("find account for reset", err)
	}

	if s.requireResetCode {
		if s.codes == nil {
			return ErrUnavailable
		}
		if err := s.codes.Consume(ctx, a.ID, strings.TrimSpace(in.Code)); err != nil {
			if errors.Is(err, resetcode.ErrUnavailable) {
				s.logger.Errorw("reset code store failed", "err", err, "account_id", a.ID)
				return ErrUnavailable
			}
			s.logger.Debugw("reset code rejected", "err", err, "account_id", a.ID)
			return ErrInvalidCredentials
		}
	}

	hash, algo, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return s.internal("hash password", err)
	}
	ok, err := s.accounts.UpdatePasswordHash(ctx, a.ID, hash, algo, s.now())
	if err != nil {
		return s.internal("update password", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}
	s.audit.Append(ctx, a.ID, activityentity.ActionPasswordReset, "Password reset for user: "+a.Username)
	return nil
}

// RequestResetCode sends a one-time code to the account's mobile number.
// It returns nil whether or not the identity matched, so callers cannot
// probe for accounts.
func (s *AuthService) RequestResetCode(ctx context.Context, username, mobile string) error {
	if s.codes == nil || s.sender == nil {
		return ErrUnavailable
	}
	username = normalizeUsername(username)
	mobile = strings.TrimSpace(mobile)
	if username == "" {
		return invalidInput("username is required")
	}
	if err := validateMobile(mobile); err != nil {
		return err
	}

	a, err := s.accounts.FindByUsernameAndMobile(ctx, username, mobile)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return s.internal("find account for reset code", err)
	}
	code, err := s.codes.Issue(ctx, a.ID)
	if err != nil {
		if errors.Is(err, resetcode.ErrRateLimited) {
			s.logger.Warnw("reset code rate limited", "account_id", a.ID)
			return nil
		}
		s.logger.Errorw("issue reset code", "err", err, "account_id", a.ID)
		return ErrUnavailable
	}
	if err := s.sender.Send(ctx, a.MobileNumber, code); err != nil {
		s.logger.Errorw("send reset code", "err", err, "account_id", a.ID)
		return ErrUnavailable
	}
	return nil
}

// Authenticate resolves a session token to the current account. Tokens issued
// before the last password change are rejected.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*entity.PublicAccount, error) {
	claims, err := s.sessions.Verify(token)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	id, _ := claims.AccountID()
	a, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, s.internal("find account for session", err)
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.Before(a.PasswordUpdatedAt.Truncate(time.Second)) {
		return nil, ErrInvalidCredentials
	}
	pub := a.Public()
	return &pub, nil
}

// internal logs the cause and hides it from the caller.
func (s *AuthService) internal(op string, err error) error {
	s.logger.Errorw(op+" failed", "err", err)
	return ErrInternal
}
