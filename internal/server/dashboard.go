package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/smallbiznis/referly/internal/analytics/domain"
	"github.com/smallbiznis/referly/pkg/db/pagination"
)

type listAnalyticsEventsQuery struct {
	PageToken  string `form:"page_token"`
	PageSize   int    `form:"page_size"`
	EventType  string `form:"event_type"`
	ReferralID string `form:"referral_id"`
	StartAt    string `form:"start_at"`
	EndAt      string `form:"end_at"`
}

// GetReferralMetrics serves the dashboard widget for the caller's contractor.
func (s *Server) GetReferralMetrics(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	snapshot, err := s.metricSvc.Get(c.Request.Context(), actor.ContractorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) ListRewards(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	payouts, err := s.rewardSvc.List(c.Request.Context(), actor.ContractorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !actor.IsContractor() {
		// Homeowners only see what they were paid.
		own := payouts[:0]
		for _, payout := range payouts {
			if payout.RecipientID == actor.UserID {
				own = append(own, payout)
			}
		}
		payouts = own
	}
	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

func (s *Server) TriggerPayout(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	referralID, err := parseSnowflakeID(c.Param("referral_id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	payout, err := s.rewardSvc.TriggerPayout(c.Request.Context(), actor.ContractorID, referralID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payout)
}

func (s *Server) ListAnalyticsEvents(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query listAnalyticsEventsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	referralID, err := parseOptionalSnowflakeID(&query.ReferralID)
	if err != nil {
		AbortWithError(c, newValidationError("referral_id", "invalid_referral_id", "invalid referral_id"))
		return
	}
	startAt, err := parseOptionalTime(query.StartAt, s.cfg.Location(), false)
	if err != nil {
		AbortWithError(c, newValidationError("start_at", "invalid_start_at", "invalid start_at"))
		return
	}
	endAt, err := parseOptionalTime(query.EndAt, s.cfg.Location(), true)
	if err != nil {
		AbortWithError(c, newValidationError("end_at", "invalid_end_at", "invalid end_at"))
		return
	}

	resp, err := s.analyticsSvc.List(c.Request.Context(), analyticsdomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		ContractorID: actor.ContractorID,
		Type:         strings.TrimSpace(query.EventType),
		ReferralID:   referralID,
		StartAt:      startAt,
		EndAt:        endAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
