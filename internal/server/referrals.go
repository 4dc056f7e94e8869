package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/referly/internal/actorcontext"
	referraldomain "github.com/smallbiznis/referly/internal/referral/domain"
	"github.com/smallbiznis/referly/internal/referral/lifecycle"
	userdomain "github.com/smallbiznis/referly/internal/user/domain"
)

type createReferralRequest struct {
	ReferrerID      string `json:"referrer_id"`
	ReferredAddress string `json:"referred_address"`
	ReferredEmail   string `json:"referred_email"`
	ReferredPhone   string `json:"referred_phone"`
}

type updateReferralRequest struct {
	ReferredID              *string `json:"referred_id"`
	ReferredCustomerAddress *string `json:"referred_customer_address"`
	ReferredEmail           *string `json:"referred_email"`
	ReferredPhone           *string `json:"referred_phone"`
	Verified                *bool   `json:"verified"`
	InstallationDate        *string `json:"installation_date"`
	ClearInstallationDate   bool    `json:"clear_installation_date"`
	ExpectedVersion         *int64  `json:"expected_version"`
}

type verifyReferralRequest struct {
	Code             string  `json:"code"`
	ReferredID       *string `json:"referred_id"`
	ReferredAddress  string  `json:"referred_address"`
	InstallationDate string  `json:"installation_date"`
	Verified         *bool   `json:"verified"`
}

// ListReferrals returns the contractor's referrals, a referrer's own
// referrals, or the referrals naming a referred homeowner. An optional
// status query narrows the list.
func (s *Server) ListReferrals(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	ctx := c.Request.Context()

	var status lifecycle.Status
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		parsed, ok := lifecycle.ParseStatus(strings.ToLower(raw))
		if !ok {
			AbortWithError(c, newValidationError("status", "invalid_status", "status must be pending, wait_for_install or complete"))
			return
		}
		status = parsed
	}

	var (
		items []referraldomain.Referral
		err   error
	)
	switch actor.Role {
	case userdomain.RoleContractor:
		items, err = s.referralSvc.ListByContractor(ctx, actor.ContractorID)
	case userdomain.RoleExistingHomeowner:
		items, err = s.referralSvc.ListByReferrer(ctx, actor.UserID)
	case userdomain.RoleReferredHomeowner:
		items, err = s.referralSvc.ListByContractor(ctx, actor.ContractorID)
		items = referredTo(items, actor)
	default:
		AbortWithError(c, referraldomain.ErrForbidden)
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if status != "" {
		items = withStatus(items, status)
	}
	c.JSON(http.StatusOK, gin.H{"referrals": items})
}

func (s *Server) CreateReferral(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	referrerID := actor.UserID
	if actor.IsContractor() {
		parsed, err := parseSnowflakeID(req.ReferrerID)
		if err != nil {
			AbortWithError(c, newValidationError("referrer_id", "invalid_referrer_id", "referrer_id is required"))
			return
		}
		referrerID = parsed
	}

	referral, err := s.referralSvc.CreateReferral(c.Request.Context(), referraldomain.CreateReferralRequest{
		ContractorID:    actor.ContractorID,
		ReferrerID:      referrerID,
		ReferredAddress: req.ReferredAddress,
		ReferredEmail:   req.ReferredEmail,
		ReferredPhone:   req.ReferredPhone,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextReferralKey, referral.ReferralCode)
	c.JSON(http.StatusCreated, gin.H{
		"referral":   referral,
		"public_url": s.publicReferralURL(referral.ReferralCode),
	})
}

func (s *Server) GetReferral(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	referral, err := s.referralSvc.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !canViewReferral(actor, referral) {
		AbortWithError(c, referraldomain.ErrNotFound)
		return
	}

	c.Set(contextReferralKey, referral.ReferralCode)
	c.JSON(http.StatusOK, referral)
}

func (s *Server) UpdateReferral(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, referraldomain.ErrNotFound)
		return
	}

	var req updateReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	patch, err := s.patchFromRequest(req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	current, err := s.referralSvc.GetByID(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if current.ContractorID != actor.ContractorID {
		AbortWithError(c, referraldomain.ErrNotFound)
		return
	}

	updated, err := s.referralSvc.UpdateReferral(ctx, id, patch)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextReferralKey, updated.ReferralCode)
	c.JSON(http.StatusOK, updated)
}

// VerifyReferral records an installation against a code. A referred
// homeowner verifying is recorded as the referred party.
func (s *Server) VerifyReferral(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req verifyReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	installation, err := parseDate(req.InstallationDate, s.cfg.Location())
	if err != nil {
		AbortWithError(c, newValidationError("installation_date", "invalid_installation_date", "installation_date must be a date"))
		return
	}

	referredID, err := parseOptionalSnowflakeID(req.ReferredID)
	if err != nil {
		AbortWithError(c, newValidationError("referred_id", "invalid_referred_id", "invalid referred_id"))
		return
	}
	if actor.Role == userdomain.RoleReferredHomeowner {
		self := actor.UserID
		referredID = &self
	}

	referral, err := s.referralSvc.Verify(c.Request.Context(), referraldomain.VerifyRequest{
		Code:             req.Code,
		ContractorID:     actor.ContractorID,
		ReferredID:       referredID,
		ReferredAddress:  req.ReferredAddress,
		InstallationDate: installation,
		Verified:         req.Verified,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextReferralKey, referral.ReferralCode)
	c.JSON(http.StatusOK, referral)
}

func (s *Server) patchFromRequest(req updateReferralRequest) (referraldomain.Patch, error) {
	referredID, err := parseOptionalSnowflakeID(req.ReferredID)
	if err != nil {
		return referraldomain.Patch{}, newValidationError("referred_id", "invalid_referred_id", "invalid referred_id")
	}

	patch := referraldomain.Patch{
		ReferredID:              referredID,
		ReferredCustomerAddress: req.ReferredCustomerAddress,
		ReferredEmail:           req.ReferredEmail,
		ReferredPhone:           req.ReferredPhone,
		Verified:                req.Verified,
		ClearInstallationDate:   req.ClearInstallationDate,
		ExpectedVersion:         req.ExpectedVersion,
	}
	if req.InstallationDate != nil {
		var installation time.Time
		installation, err = parseDate(*req.InstallationDate, s.cfg.Location())
		if err != nil {
			return referraldomain.Patch{}, newValidationError("installation_date", "invalid_installation_date", "installation_date must be a date")
		}
		patch.InstallationDate = &installation
	}
	return patch, nil
}

func (s *Server) publicReferralURL(code string) string {
	return strings.TrimRight(s.cfg.PublicURL, "/") + "/public/referrals/" + code
}

func canViewReferral(actor actorcontext.Actor, referral referraldomain.Referral) bool {
	if referral.ContractorID != actor.ContractorID {
		return false
	}
	switch actor.Role {
	case userdomain.RoleContractor:
		return true
	case userdomain.RoleExistingHomeowner:
		return referral.ReferrerID == actor.UserID
	case userdomain.RoleReferredHomeowner:
		return referral.ReferredID != nil && *referral.ReferredID == actor.UserID
	default:
		return false
	}
}

func referredTo(items []referraldomain.Referral, actor actorcontext.Actor) []referraldomain.Referral {
	out := make([]referraldomain.Referral, 0, len(items))
	for _, item := range items {
		if canViewReferral(actor, item) {
			out = append(out, item)
		}
	}
	return out
}

func withStatus(items []referraldomain.Referral, status lifecycle.Status) []referraldomain.Referral {
	out := make([]referraldomain.Referral, 0, len(items))
	for _, item := range items {
		if item.Status == status {
			out = append(out, item)
		}
	}
	return out
}
