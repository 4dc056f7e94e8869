package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/referly/internal/clock"
	"github.com/smallbiznis/referly/internal/config"
	"github.com/smallbiznis/referly/internal/notification"
	notificationmocks "github.com/smallbiznis/referly/internal/notification/mocks"
	"github.com/smallbiznis/referly/internal/referral/code"
	referraldomain "github.com/smallbiznis/referly/internal/referral/domain"
	"github.com/smallbiznis/referly/internal/user/domain"
	"github.com/smallbiznis/referly/internal/user/repository"
	"github.com/smallbiznis/referly/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T, notifier notification.Dispatcher) domain.Service {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.User{}, &referraldomain.Referral{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	gen, err := code.New(code.Options{})
	require.NoError(t, err)

	cfg := config.Config{PublicURL: "https://referly.test"}
	cfg.Referral.CodeMaxAttempts = code.MaxAttempts

	return New(Params{
		DB:       conn,
		Log:      zaptest.NewLogger(t),
		GenID:    node,
		Repo:     repository.Provide(),
		Codes:    gen,
		Notifier: notifier,
		Clock:    clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		Config:   cfg,
	})
}

func createContractor(t *testing.T, svc domain.Service) domain.User {
	t.Helper()
	contractor, err := svc.CreateContractor(context.Background(), domain.CreateContractorRequest{
		Email:       "Owner@Acme.example",
		CompanyName: "Acme Roofing",
	})
	require.NoError(t, err)
	return contractor
}

func TestCreateContractor(t *testing.T) {
	svc := newTestService(t, nil)
	contractor := createContractor(t, svc)

	assert.Equal(t, domain.RoleContractor, contractor.Role)
	assert.Equal(t, "owner@acme.example", contractor.Email)
	assert.Equal(t, "Acme Roofing", contractor.Company())

	_, err := svc.CreateContractor(context.Background(), domain.CreateContractorRequest{
		Email:       "owner@acme.example",
		CompanyName: "Other",
	})
	assert.ErrorIs(t, err, domain.ErrUserExists)
}

func TestCreateHomeownerIssuesStandingCode(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := notificationmocks.NewMockDispatcher(ctrl)
	svc := newTestService(t, notifier)
	contractor := createContractor(t, svc)

	notifier.EXPECT().
		Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, to notification.Recipient, msg notification.Message) error {
			assert.Equal(t, "pat@example.com", to.Email)
			assert.Equal(t, notification.KindHomeownerWelcome, msg.Kind)
			assert.Equal(t, "Acme Roofing", msg.CompanyName)
			assert.True(t, strings.HasPrefix(msg.Link, "https://referly.test/public/referrals/"))
			return nil
		})

	homeowner, err := svc.CreateHomeowner(context.Background(), domain.CreateHomeownerRequest{
		ContractorID: contractor.ID,
		Email:        "pat@example.com",
		DisplayName:  "Pat",
		Address:      "1 Main St",
	})
	require.NoError(t, err)
	require.NotNil(t, homeowner.ReferralCode)
	assert.True(t, code.Valid(*homeowner.ReferralCode))
	assert.Equal(t, domain.RoleExistingHomeowner, homeowner.Role)
	assert.True(t, homeowner.BelongsTo(contractor.ID))

	list, err := svc.ListHomeowners(context.Background(), contractor.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateHomeownerRejectsNonContractor(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := notificationmocks.NewMockDispatcher(ctrl)
	notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)
	svc := newTestService(t, notifier)
	contractor := createContractor(t, svc)

	homeowner, err := svc.CreateHomeowner(context.Background(), domain.CreateHomeownerRequest{
		ContractorID: contractor.ID,
		Email:        "pat@example.com",
		DisplayName:  "Pat",
	})
	require.NoError(t, err)

	_, err = svc.CreateHomeowner(context.Background(), domain.CreateHomeownerRequest{
		ContractorID: homeowner.ID,
		Email:        "sam@example.com",
		DisplayName:  "Sam",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidContractor)

	_, err = svc.CreateHomeowner(context.Background(), domain.CreateHomeownerRequest{
		ContractorID: contractor.ID,
		Email:        "sam@example.com",
		DisplayName:  "Sam",
		Role:         domain.RoleContractor,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestNotificationFailureDoesNotFailCreate(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := notificationmocks.NewMockDispatcher(ctrl)
	notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(notification.ErrDeliveryFailed)
	svc := newTestService(t, notifier)
	contractor := createContractor(t, svc)

	_, err := svc.CreateHomeowner(context.Background(), domain.CreateHomeownerRequest{
		ContractorID: contractor.ID,
		Email:        "pat@example.com",
		DisplayName:  "Pat",
	})
	assert.NoError(t, err)
}

func TestImportHomeownersCSV(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := notificationmocks.NewMockDispatcher(ctrl)
	notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
	svc := newTestService(t, notifier)
	contractor := createContractor(t, svc)

	csv := "Username,Email,Address,Phone\n" +
		"Pat,pat@example.com,1 Main St,+15550001111\n" +
		"Bad,not-an-email,2 Main St,\n" +
		"\n" +
		"Sam,sam@example.com,3 Main St,\n"

	result, err := svc.ImportHomeowners(context.Background(), contractor.ID, domain.ImportFormatCSV, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Len(t, result.Created, 2)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 3, result.Errors[0].Row)
	assert.Equal(t, "email", result.Errors[0].Field)
}

func TestImportHomeownersMissingHeaders(t *testing.T) {
	svc := newTestService(t, nil)
	contractor := createContractor(t, svc)

	_, err := svc.ImportHomeowners(context.Background(), contractor.ID, domain.ImportFormatCSV, strings.NewReader("name,email\nPat,pat@example.com\n"))
	require.ErrorIs(t, err, domain.ErrInvalidImport)
	assert.Contains(t, err.Error(), "username")
	assert.Contains(t, err.Error(), "address")
}

func TestParseImportXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"username", "email", "address"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Pat", "pat@example.com", "1 Main St"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	rows, err := ParseImport(domain.ImportFormatXLSX, &buf)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Row)
	assert.Equal(t, "Pat", rows[0].Username)
	assert.Equal(t, "1 Main St", rows[0].Address)
	assert.Equal(t, "", rows[0].Phone)
}
