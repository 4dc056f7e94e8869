package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referly/internal/auth/domain"
	"github.com/smallbiznis/referly/internal/auth/password"
	"github.com/smallbiznis/referly/internal/clock"
	userdomain "github.com/smallbiznis/referly/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sessionTokenBytes = 32
	sessionTTL        = 7 * 24 * time.Hour

	// touchInterval bounds last_seen_at writes to one per session per window.
	touchInterval = 5 * time.Minute
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Users       userdomain.Service
	SessionRepo domain.SessionRepository
	GenID       *snowflake.Node
	Clock       clock.Clock
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	users       userdomain.Service
	sessionRepo domain.SessionRepository
	genID       *snowflake.Node
	clock       clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("auth.service"),
		users:       p.Users,
		sessionRepo: p.SessionRepo,
		genID:       p.GenID,
		clock:       p.Clock,
	}
}

// Register signs up a contractor account with a local password.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (userdomain.User, error) {
	if err := password.Validate(req.Password); err != nil {
		return userdomain.User{}, domain.ErrWeakPassword
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return userdomain.User{}, err
	}

	return s.users.CreateContractor(ctx, userdomain.CreateContractorRequest{
		Email:        req.Email,
		PasswordHash: hashed,
		DisplayName:  req.DisplayName,
		CompanyName:  req.CompanyName,
		Phone:        req.Phone,
	})
}

// Login checks a password and opens a session. Homeowner accounts created by
// a contractor have no password and cannot log in until one is set.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	if strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	switch {
	case errors.Is(err, userdomain.ErrNotFound), errors.Is(err, userdomain.ErrInvalidEmail):
		password.VerifyAbsent(req.Password)
		return nil, domain.ErrInvalidCredentials
	case err != nil:
		return nil, err
	}

	if user.PasswordHash == nil {
		password.VerifyAbsent(req.Password)
		return nil, domain.ErrInvalidCredentials
	}
	if !password.Verify(req.Password, *user.PasswordHash) {
		s.log.Debug("login rejected", zap.String("user_id", user.ID.String()), zap.String("role", string(user.Role)))
		return nil, domain.ErrInvalidCredentials
	}

	rawToken, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &domain.Session{
		ID:               s.genID.Generate(),
		UserID:           user.ID,
		SessionTokenHash: hashToken(rawToken),
		UserAgent:        strings.TrimSpace(req.UserAgent),
		IPAddress:        strings.TrimSpace(req.IPAddress),
		ExpiresAt:        now.Add(sessionTTL),
		CreatedAt:        now,
		LastSeenAt:       now,
	}
	if err := s.sessionRepo.Insert(ctx, s.db, session); err != nil {
		return nil, err
	}

	return &domain.LoginResult{
		User:      user,
		RawToken:  rawToken,
		ExpiresAt: session.ExpiresAt,
		SessionID: session.ID,
	}, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	session, err := s.lookup(ctx, rawToken)
	if err != nil {
		return err
	}
	revoked, err := s.sessionRepo.Revoke(ctx, s.db, session.ID, s.clock.Now())
	if err != nil {
		return err
	}
	if !revoked {
		return domain.ErrSessionRevoked
	}
	return nil
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Principal, error) {
	session, err := s.lookup(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := session.Usable(now); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, userdomain.ErrNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}

	if now.Sub(session.LastSeenAt) >= touchInterval {
		if err := s.sessionRepo.Touch(ctx, s.db, session.ID, now); err != nil {
			s.log.Warn("failed to record session activity", zap.String("session_id", session.ID.String()), zap.Error(err))
		} else {
			session.LastSeenAt = now
		}
	}

	return &domain.Principal{Session: *session, User: user}, nil
}

func (s *Service) PurgeExpiredSessions(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}
	deleted, err := s.sessionRepo.DeleteExpired(ctx, s.db, cutoff, limit)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.Info("purged sessions", zap.Int64("count", deleted), zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}

func (s *Service) lookup(ctx context.Context, rawToken string) (*domain.Session, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}
	session, err := s.sessionRepo.FindByTokenHash(ctx, s.db, hashToken(token))
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrInvalidSession
	}
	return session, nil
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
