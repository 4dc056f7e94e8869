package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// LookupReferral tells an anonymous visitor whether a code is usable and which
// contractor issued it. Nothing else about the referral is exposed.
func (s *Server) LookupReferral(c *gin.Context) {
	code := c.Param("code")
	c.Set(contextReferralKey, code)

	result, err := s.referralSvc.LookupPublic(c.Request.Context(), code)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, result)
}
