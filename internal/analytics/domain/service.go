package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referly/internal/errs"
	"github.com/smallbiznis/referly/pkg/db/pagination"
)

type RecordInput struct {
	ContractorID snowflake.ID
	Type         EventType
	ReferralID   *snowflake.ID
	Data         map[string]any
}

type ListRequest struct {
	pagination.Pagination
	ContractorID snowflake.ID
	Type         string
	ReferralID   *snowflake.ID
	StartAt      *time.Time
	EndAt        *time.Time
}

type ListResponse struct {
	pagination.PageInfo
	Events []Event `json:"events"`
}

type Service interface {
	Record(ctx context.Context, in RecordInput) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidContractor = errs.New(errs.KindValidation, "invalid_contractor")
	ErrInvalidEventType  = errs.New(errs.KindValidation, "invalid_event_type")
	ErrInvalidPageToken  = errs.New(errs.KindValidation, "invalid_page_token")
	ErrInvalidTimeRange  = errs.New(errs.KindValidation, "invalid_time_range")
)
