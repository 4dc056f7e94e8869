package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referly/internal/clock"
	"github.com/smallbiznis/referly/internal/config"
	"github.com/smallbiznis/referly/internal/notification"
	"github.com/smallbiznis/referly/internal/referral/code"
	"github.com/smallbiznis/referly/internal/user/domain"
	"github.com/smallbiznis/referly/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Codes    code.Generator
	Notifier notification.Dispatcher
	Clock    clock.Clock
	Config   config.Config
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	codes    code.Generator
	notifier notification.Dispatcher
	clock    clock.Clock
	cfg      config.Config
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("user.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		codes:    p.Codes,
		notifier: p.Notifier,
		clock:    p.Clock,
		cfg:      p.Config,
	}
}

func (s *Service) CreateContractor(ctx context.Context, req domain.CreateContractorRequest) (domain.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.User{}, domain.ErrInvalidEmail
	}
	company := strings.TrimSpace(req.CompanyName)
	if company == "" {
		return domain.User{}, domain.ErrInvalidName
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = company
	}

	now := s.clock.Now()
	user := domain.User{
		ID:          s.genID.Generate(),
		Email:       email,
		DisplayName: displayName,
		Role:        domain.RoleContractor,
		CompanyName: &company,
		Phone:       optionalString(req.Phone),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.PasswordHash != "" {
		hash := req.PasswordHash
		user.PasswordHash = &hash
	}

	if err := s.insertUnique(ctx, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (s *Service) CreateHomeowner(ctx context.Context, req domain.CreateHomeownerRequest) (domain.User, error) {
	contractor, err := s.loadContractor(ctx, req.ContractorID)
	if err != nil {
		return domain.User{}, err
	}

	user, err := s.createHomeowner(ctx, contractor, req)
	if err != nil {
		return domain.User{}, err
	}

	s.sendWelcome(ctx, contractor, user)
	return user, nil
}

func (s *Service) createHomeowner(ctx context.Context, contractor *domain.User, req domain.CreateHomeownerRequest) (domain.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.User{}, domain.ErrInvalidEmail
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return domain.User{}, domain.ErrInvalidName
	}
	role := req.Role
	if role == "" {
		role = domain.RoleExistingHomeowner
	}
	if !role.IsHomeowner() {
		return domain.User{}, domain.ErrInvalidRole
	}

	standing, err := code.IssueUnique(ctx, s.codes, code.GenerateInput{ContractorName: contractor.Company()},
		func(ctx context.Context, candidate string) (bool, error) {
			return s.repo.ReferralCodeExists(ctx, s.db, candidate)
		}, s.cfg.Referral.CodeMaxAttempts, nil)
	if err != nil {
		return domain.User{}, err
	}

	now := s.clock.Now()
	contractorID := contractor.ID
	user := domain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		DisplayName:  name,
		Role:         role,
		Address:      optionalString(req.Address),
		Phone:        optionalString(req.Phone),
		ReferralCode: &standing,
		ContractorID: &contractorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.insertUnique(ctx, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (s *Service) ImportHomeowners(ctx context.Context, contractorID snowflake.ID, format domain.ImportFormat, r io.Reader) (domain.ImportResult, error) {
	contractor, err := s.loadContractor(ctx, contractorID)
	if err != nil {
		return domain.ImportResult{}, err
	}

	rows, err := ParseImport(format, r)
	if err != nil {
		return domain.ImportResult{}, err
	}

	result := domain.ImportResult{Created: []domain.User{}, Errors: []domain.ImportRowError{}}
	for _, row := range rows {
		user, err := s.createHomeowner(ctx, contractor, domain.CreateHomeownerRequest{
			ContractorID: contractorID,
			Email:        row.Email,
			DisplayName:  row.Username,
			Address:      row.Address,
			Phone:        row.Phone,
		})
		if err != nil {
			result.Errors = append(result.Errors, rowError(row.Row, err))
			continue
		}
		result.Created = append(result.Created, user)
		s.sendWelcome(ctx, contractor, user)
	}

	s.log.Info("homeowner import finished",
		zap.String("contractor_id", contractorID.String()),
		zap.Int("created", len(result.Created)),
		zap.Int("failed", len(result.Errors)),
	)
	return result, nil
}

func (s *Service) ListHomeowners(ctx context.Context, contractorID snowflake.ID) ([]domain.User, error) {
	items, err := s.repo.ListByContractor(ctx, s.db, contractorID, "")
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(items))
	for _, item := range items {
		if item == nil || !item.Role.IsHomeowner() {
			continue
		}
		users = append(users, *item)
	}
	return users, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.User, error) {
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *user, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return domain.User{}, domain.ErrInvalidEmail
	}
	user, err := s.repo.FindByEmail(ctx, s.db, normalized)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *user, nil
}

func (s *Service) loadContractor(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	if id == 0 {
		return nil, domain.ErrInvalidContractor
	}
	contractor, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if contractor == nil || contractor.Role != domain.RoleContractor {
		return nil, domain.ErrInvalidContractor
	}
	return contractor, nil
}

func (s *Service) insertUnique(ctx context.Context, user *domain.User) error {
	existing, err := s.repo.FindByEmail(ctx, s.db, user.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.ErrUserExists
	}
	if err := s.repo.Insert(ctx, s.db, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrUserExists
		}
		return err
	}
	return nil
}

func (s *Service) sendWelcome(ctx context.Context, contractor *domain.User, user domain.User) {
	if s.notifier == nil || user.ReferralCode == nil {
		return
	}
	recipient := notification.Recipient{Name: user.DisplayName, Email: user.Email}
	if user.Phone != nil {
		recipient.Phone = *user.Phone
	}
	err := s.notifier.Send(ctx, recipient, notification.Message{
		Kind:         notification.KindHomeownerWelcome,
		ReferralCode: *user.ReferralCode,
		CompanyName:  contractor.Company(),
		Link:         s.publicLink(*user.ReferralCode),
	})
	if err != nil {
		s.log.Warn("failed to notify homeowner",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) publicLink(referralCode string) string {
	if s.cfg.PublicURL == "" {
		return ""
	}
	return s.cfg.PublicURL + "/public/referrals/" + referralCode
}

func rowError(row int, err error) domain.ImportRowError {
	field := ""
	switch {
	case errors.Is(err, domain.ErrInvalidEmail), errors.Is(err, domain.ErrUserExists):
		field = "email"
	case errors.Is(err, domain.ErrInvalidName):
		field = "username"
	}
	return domain.ImportRowError{Row: row, Field: field, Message: fmt.Sprintf("Error in row %d: %v", row, err)}
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
