package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referly/internal/clock"
	"github.com/smallbiznis/referly/internal/config"
	referraldomain "github.com/smallbiznis/referly/internal/referral/domain"
	"github.com/smallbiznis/referly/internal/referral/lifecycle"
	"github.com/smallbiznis/referly/internal/referralmetric/domain"
	"github.com/smallbiznis/referly/internal/referralmetric/repository"
	"github.com/smallbiznis/referly/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fakeSource struct {
	mu      sync.Mutex
	samples map[snowflake.ID][]domain.Sample
}

func (f *fakeSource) Samples(_ context.Context, contractorID snowflake.ID) ([]domain.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Sample(nil), f.samples[contractorID]...), nil
}

func (f *fakeSource) LatestUpdate(_ context.Context, contractorID snowflake.ID) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *time.Time
	for _, s := range f.samples[contractorID] {
		if latest == nil || s.UpdatedAt.After(*latest) {
			ts := s.UpdatedAt
			latest = &ts
		}
	}
	return latest, nil
}

func (f *fakeSource) add(contractorID snowflake.ID, s domain.Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.samples == nil {
		f.samples = map[snowflake.ID][]domain.Sample{}
	}
	f.samples[contractorID] = append(f.samples[contractorID], s)
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestConversionRateBP(t *testing.T) {
	cases := []struct {
		converted, total, want int64
	}{
		{0, 0, 0},
		{0, 5, 0},
		{1, 1, 10000},
		{2, 3, 6667},
		{1, 3, 3333},
		{1, 8, 1250},
		{1, 20000, 1},
		{1, 40000, 0},
		{5, 7, 7143},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ConversionRateBP(tc.converted, tc.total), "%d/%d", tc.converted, tc.total)
	}
}

func TestAggregate(t *testing.T) {
	today := *day(2024, 3, 10)
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	samples := []domain.Sample{
		{InstallationDate: day(2024, 3, 5), CreatedAt: created, UpdatedAt: created},
		{InstallationDate: day(2024, 3, 8), CreatedAt: created, UpdatedAt: created.Add(time.Hour)},
		{InstallationDate: day(2024, 4, 1), CreatedAt: created, UpdatedAt: created},
		{CreatedAt: created, UpdatedAt: created},
	}
	metric := Aggregate(7, samples, today, time.UTC)

	assert.Equal(t, int64(4), metric.TotalReferrals)
	assert.Equal(t, int64(2), metric.ConvertedReferrals)
	assert.Equal(t, "50.00", metric.ConversionRate())
	require.NotNil(t, metric.AverageTimeToConversion)
	// (4 + 7) / 2 floors to 5.
	assert.Equal(t, int64(5), *metric.AverageTimeToConversion)
	require.NotNil(t, metric.SourceUpdatedAt)
	assert.True(t, metric.SourceUpdatedAt.Equal(created.Add(time.Hour)))
	assert.True(t, metric.ComputedOn.Equal(today))
}

func TestAggregateEmpty(t *testing.T) {
	metric := Aggregate(7, nil, *day(2024, 3, 10), time.UTC)
	assert.Equal(t, int64(0), metric.TotalReferrals)
	assert.Equal(t, "0.00", metric.ConversionRate())
	assert.Nil(t, metric.AverageTimeToConversion)
	assert.Nil(t, metric.SourceUpdatedAt)
}

func TestAggregateScenarios(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	today := *day(2024, 3, 10)

	verifiedYesterday := []domain.Sample{{InstallationDate: day(2024, 3, 9), Verified: true, CreatedAt: now, UpdatedAt: now}}
	metric := Aggregate(1, verifiedYesterday, today, time.UTC)
	assert.Equal(t, int64(1), metric.TotalReferrals)
	assert.Equal(t, int64(1), metric.ConvertedReferrals)
	assert.Equal(t, "100.00", metric.ConversionRate())

	tomorrow := []domain.Sample{{InstallationDate: day(2024, 3, 11), CreatedAt: now, UpdatedAt: now}}
	metric = Aggregate(1, tomorrow, today, time.UTC)
	assert.Equal(t, "0.00", metric.ConversionRate())
	assert.Nil(t, metric.AverageTimeToConversion)
}

func newSQLiteService(t *testing.T, source domain.ReferralSource, clk clock.Clock) (*Service, *gorm.DB) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.ReferralMetric{}, &referraldomain.Referral{}))
	if source == nil {
		source = repository.NewReferralSource(conn)
	}
	svc := New(Params{
		DB:     conn,
		Log:    zaptest.NewLogger(t),
		Repo:   repository.Provide(),
		Source: source,
		Clock:  clk,
		Config: config.Config{TimeZone: "UTC"},
	})
	return svc.(*Service), conn
}

func TestRecomputeIsIdempotent(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	source := &fakeSource{}
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	source.add(1, domain.Sample{InstallationDate: day(2024, 3, 4), CreatedAt: created, UpdatedAt: created})
	source.add(1, domain.Sample{CreatedAt: created, UpdatedAt: created})
	source.add(1, domain.Sample{CreatedAt: created, UpdatedAt: created})

	svc, _ := newSQLiteService(t, source, clk)
	ctx := context.Background()

	first, err := svc.Recompute(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "33.33", first.ConversionRate())
	assert.Equal(t, int64(3), *first.AverageTimeToConversion)

	clk.Advance(time.Hour)
	second, err := svc.Recompute(ctx, 1)
	require.NoError(t, err)
	assert.True(t, first.SameFigures(second))
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt), "unchanged snapshot must not be rewritten")
}

func TestRecomputeUpsertsSingleRow(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	source := &fakeSource{}
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	source.add(1, domain.Sample{CreatedAt: created, UpdatedAt: created})

	svc, conn := newSQLiteService(t, source, clk)
	ctx := context.Background()

	_, err := svc.Recompute(ctx, 1)
	require.NoError(t, err)

	source.add(1, domain.Sample{InstallationDate: day(2024, 3, 2), Verified: true, CreatedAt: created, UpdatedAt: created.Add(time.Minute)})
	metric, err := svc.Recompute(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "50.00", metric.ConversionRate())

	var count int64
	require.NoError(t, conn.Model(&domain.ReferralMetric{}).Where("contractor_id = ?", 1).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGetRecomputesWhenStale(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	svc, conn := newSQLiteService(t, nil, clk)
	ctx := context.Background()

	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	install := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	require.NoError(t, conn.Create(&referraldomain.Referral{
		ID:               1,
		ReferralCode:     "AAAA1111",
		ContractorID:     5,
		ReferrerID:       6,
		Status:           lifecycle.StatusWaitForInstall,
		InstallationDate: &install,
		Version:          1,
		CreatedAt:        created,
		UpdatedAt:        created,
	}).Error)

	metric, err := svc.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "0.00", metric.ConversionRate())

	// The installation day arrives; the stored snapshot is from an earlier day.
	clk.Set(time.Date(2024, 3, 12, 8, 0, 0, 0, time.UTC))
	metric, err = svc.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "100.00", metric.ConversionRate())
	require.NotNil(t, metric.AverageTimeToConversion)
	assert.Equal(t, int64(11), *metric.AverageTimeToConversion)

	// A newer referral write invalidates the watermark on the same day.
	require.NoError(t, conn.Create(&referraldomain.Referral{
		ID:           2,
		ReferralCode: "BBBB2222",
		ContractorID: 5,
		ReferrerID:   6,
		Status:       lifecycle.StatusPending,
		Version:      1,
		CreatedAt:    created,
		UpdatedAt:    clk.Now(),
	}).Error)
	metric, err = svc.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), metric.TotalReferrals)
	assert.Equal(t, "50.00", metric.ConversionRate())

	again, err := svc.Get(ctx, 5)
	require.NoError(t, err)
	assert.True(t, metric.SameFigures(again))
}
