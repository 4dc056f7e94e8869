package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/referly/internal/actorcontext"
	"github.com/smallbiznis/referly/internal/analytics/domain"
	"github.com/smallbiznis/referly/internal/clock"
	"github.com/smallbiznis/referly/pkg/db/pagination"
	"github.com/smallbiznis/referly/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("analytics.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Record(ctx context.Context, in domain.RecordInput) error {
	if in.ContractorID == 0 {
		return domain.ErrInvalidContractor
	}
	if _, ok := domain.ParseEventType(string(in.Type)); !ok {
		return domain.ErrInvalidEventType
	}

	payload := map[string]any{}
	for key, value := range in.Data {
		if key == "" {
			continue
		}
		payload[key] = value
	}
	correlation.AnnotateEventData(ctx, payload)

	now := s.clock.Now()
	correlationID := correlation.ExtractCorrelationID(ctx)
	if correlationID == "" {
		correlationID = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	}
	event := domain.Event{
		ID:            s.genID.Generate(),
		ContractorID:  in.ContractorID,
		Type:          in.Type,
		ReferralID:    in.ReferralID,
		CorrelationID: correlationID,
		Data:          datatypes.JSONMap(payload),
		CreatedAt:     now,
	}
	if actor, ok := actorcontext.ActorFromContext(ctx); ok {
		actorID := actor.UserID
		role := string(actor.Role)
		event.ActorID = &actorID
		event.ActorRole = &role
	}

	if err := s.repo.Insert(ctx, s.db, &event); err != nil {
		s.log.Warn("failed to record analytics event",
			zap.String("event_type", string(in.Type)),
			zap.String("contractor_id", in.ContractorID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if req.ContractorID == 0 {
		return domain.ListResponse{}, domain.ErrInvalidContractor
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return domain.ListResponse{}, domain.ErrInvalidTimeRange
	}

	var eventType domain.EventType
	if raw := strings.TrimSpace(req.Type); raw != "" {
		parsed, ok := domain.ParseEventType(raw)
		if !ok {
			return domain.ListResponse{}, domain.ErrInvalidEventType
		}
		eventType = parsed
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListResponse{}, domain.ErrInvalidPageToken
	}
	pageSize := req.Limit(defaultPageSize, maxPageSize)

	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		ContractorID: req.ContractorID,
		Type:         eventType,
		ReferralID:   req.ReferralID,
		StartAt:      req.StartAt,
		EndAt:        req.EndAt,
		Cursor:       cursor,
		Limit:        pageSize,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	items, pageInfo, err := pagination.Trim(items, pageSize, func(item *domain.Event) pagination.Cursor {
		return pagination.Cursor{ID: item.ID, CreatedAt: item.CreatedAt}
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	events := make([]domain.Event, 0, len(items))
	for _, item := range items {
		if item != nil {
			events = append(events, *item)
		}
	}
	return domain.ListResponse{Events: events, PageInfo: pageInfo}, nil
}
