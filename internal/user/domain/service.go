package domain

import (
	"context"
	"io"

	"github.com/bwmarrin/snowflake"
)

type CreateContractorRequest struct {
	Email        string
	PasswordHash string
	DisplayName  string
	CompanyName  string
	Phone        string
}

type CreateHomeownerRequest struct {
	ContractorID snowflake.ID
	Email        string
	DisplayName  string
	Address      string
	Phone        string
	Role         Role
}

// ImportFormat selects how homeowner uploads are parsed.
type ImportFormat string

const (
	ImportFormatCSV  ImportFormat = "csv"
	ImportFormatXLSX ImportFormat = "xlsx"
)

type ImportRowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ImportResult struct {
	Created []User           `json:"created"`
	Errors  []ImportRowError `json:"errors"`
}

type Service interface {
	CreateContractor(ctx context.Context, req CreateContractorRequest) (User, error)
	CreateHomeowner(ctx context.Context, req CreateHomeownerRequest) (User, error)
	ImportHomeowners(ctx context.Context, contractorID snowflake.ID, format ImportFormat, r io.Reader) (ImportResult, error)
	ListHomeowners(ctx context.Context, contractorID snowflake.ID) ([]User, error)
	GetByID(ctx context.Context, id snowflake.ID) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
}
