package server

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	userdomain "github.com/smallbiznis/referly/internal/user/domain"
)

const maxImportBytes = 5 << 20

type createHomeownerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	Role        string `json:"role"`
}

func (s *Server) CreateHomeowner(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createHomeownerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	role := userdomain.RoleExistingHomeowner
	if raw := strings.TrimSpace(req.Role); raw != "" {
		parsed, err := userdomain.ParseRole(raw)
		if err != nil || !parsed.IsHomeowner() {
			AbortWithError(c, newValidationError("role", "invalid_role", "role must be a homeowner role"))
			return
		}
		role = parsed
	}

	user, err := s.userSvc.CreateHomeowner(c.Request.Context(), userdomain.CreateHomeownerRequest{
		ContractorID: actor.ContractorID,
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		Address:      req.Address,
		Phone:        req.Phone,
		Role:         role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// ImportHomeowners accepts a multipart upload in the "file" field. The format
// comes from the "format" form value or, failing that, the file extension.
func (s *Server) ImportHomeowners(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	header, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "required", "file is required"))
		return
	}

	format, ok := importFormat(c.PostForm("format"), header.Filename)
	if !ok {
		AbortWithError(c, newValidationError("format", "invalid_format", "format must be csv or xlsx"))
		return
	}

	file, err := header.Open()
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	defer file.Close()

	result, err := s.userSvc.ImportHomeowners(c.Request.Context(), actor.ContractorID, format, file)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if len(result.Errors) > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, result)
}

func (s *Server) ListHomeowners(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	users, err := s.userSvc.ListHomeowners(c.Request.Context(), actor.ContractorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"homeowners": users})
}

func importFormat(explicit, filename string) (userdomain.ImportFormat, bool) {
	raw := strings.ToLower(strings.TrimSpace(explicit))
	if raw == "" {
		raw = strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	}
	switch userdomain.ImportFormat(raw) {
	case userdomain.ImportFormatCSV:
		return userdomain.ImportFormatCSV, true
	case userdomain.ImportFormatXLSX:
		return userdomain.ImportFormatXLSX, true
	default:
		return "", false
	}
}
