package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/referly/internal/auth/domain"
	"go.uber.org/zap"
)

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	CompanyName string `json:"company_name"`
	Phone       string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register signs up a contractor account.
func (s *Server) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.CompanyName) == "" {
		AbortWithError(c, newValidationError("company_name", "required", "company_name is required"))
		return
	}

	user, err := s.authsvc.Register(c.Request.Context(), authdomain.RegisterRequest{
		Email:       strings.TrimSpace(req.Email),
		Password:    req.Password,
		DisplayName: strings.TrimSpace(req.DisplayName),
		CompanyName: strings.TrimSpace(req.CompanyName),
		Phone:       strings.TrimSpace(req.Phone),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Email:     strings.TrimSpace(req.Email),
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.RawToken, result.ExpiresAt)
	c.JSON(http.StatusOK, gin.H{
		"user":       result.User,
		"expires_at": result.ExpiresAt,
	})
}

// Logout revokes the session when there is one; it always clears the cookie.
func (s *Server) Logout(c *gin.Context) {
	if token, ok := s.sessions.ReadToken(c); ok {
		if err := s.authsvc.Logout(c.Request.Context(), token); err != nil {
			s.log.Debug("logout with unknown session", zap.Error(err))
		}
	}
	s.sessions.Clear(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) Me(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	user, err := s.userSvc.GetByID(c.Request.Context(), actor.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
