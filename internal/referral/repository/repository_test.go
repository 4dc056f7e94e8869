package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referly/internal/referral/domain"
	"github.com/smallbiznis/referly/internal/referral/lifecycle"
	"github.com/smallbiznis/referly/pkg/db"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupRepo(t *testing.T) (*gorm.DB, domain.Repository) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Referral{}))
	require.NoError(t, conn.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, referral_code TEXT)`).Error)
	return conn, Provide()
}

func newReferral(id snowflake.ID, code string, contractorID snowflake.ID, address string) *domain.Referral {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ref := &domain.Referral{
		ID:           id,
		ReferralCode: code,
		ContractorID: contractorID,
		ReferrerID:   99,
		Status:       lifecycle.StatusPending,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if address != "" {
		ref.ReferredCustomerAddress = &address
		ref.ReferredAddressKey = domain.AddressKey(address)
	}
	return ref
}

func TestUpdateVersionedRejectsStaleVersion(t *testing.T) {
	conn, repo := setupRepo(t)
	ctx := context.Background()

	ref := newReferral(1, "ABCD1234", 10, "")
	require.NoError(t, repo.Insert(ctx, conn, ref))

	next := *ref
	next.Verified = true
	next.Version = 2
	ok, err := repo.UpdateVersioned(ctx, conn, &next, 1)
	require.NoError(t, err)
	require.True(t, ok)

	stale := *ref
	stale.Version = 2
	ok, err = repo.UpdateVersioned(ctx, conn, &stale, 1)
	require.NoError(t, err)
	require.False(t, ok)

	stored, err := repo.FindByID(ctx, conn, 1)
	require.NoError(t, err)
	require.True(t, stored.Verified)
	require.Equal(t, int64(2), stored.Version)
}

func TestAddressUniquePerContractor(t *testing.T) {
	conn, repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, conn, newReferral(1, "AAAA1111", 10, "12 Oak St")))
	// Same address under another contractor is allowed.
	require.NoError(t, repo.Insert(ctx, conn, newReferral(2, "BBBB2222", 20, "12 Oak St")))

	err := repo.Insert(ctx, conn, newReferral(3, "CCCC3333", 10, "  12  OAK st "))
	require.Error(t, err)
	require.True(t, db.IsDuplicateKeyErr(err))

	taken, err := repo.AddressTaken(ctx, conn, 10, *domain.AddressKey("12 oak st"), 0)
	require.NoError(t, err)
	require.True(t, taken)

	taken, err = repo.AddressTaken(ctx, conn, 10, *domain.AddressKey("12 oak st"), 1)
	require.NoError(t, err)
	require.False(t, taken)

	// Rows without an address never collide.
	require.NoError(t, repo.Insert(ctx, conn, newReferral(4, "DDDD4444", 10, "")))
	require.NoError(t, repo.Insert(ctx, conn, newReferral(5, "EEEE5555", 10, "")))
}

func TestCodeExistsChecksStandingCodes(t *testing.T) {
	conn, repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, conn, newReferral(1, "AAAA1111", 10, "")))
	require.NoError(t, conn.Exec(`INSERT INTO users (id, referral_code) VALUES (7, 'HOME0001')`).Error)

	for code, want := range map[string]bool{"AAAA1111": true, "HOME0001": true, "ZZZZ9999": false} {
		got, err := repo.CodeExists(ctx, conn, code)
		require.NoError(t, err)
		require.Equal(t, want, got, code)
	}
}

func TestListDuePromotions(t *testing.T) {
	conn, repo := setupRepo(t)
	ctx := context.Background()

	past := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
	future := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	due := newReferral(1, "AAAA1111", 10, "")
	due.Status = lifecycle.StatusWaitForInstall
	due.InstallationDate = &past
	later := newReferral(2, "BBBB2222", 10, "")
	later.Status = lifecycle.StatusWaitForInstall
	later.InstallationDate = &future
	require.NoError(t, repo.Insert(ctx, conn, due))
	require.NoError(t, repo.Insert(ctx, conn, later))
	require.NoError(t, repo.Insert(ctx, conn, newReferral(3, "CCCC3333", 10, "")))

	items, err := repo.ListDuePromotions(ctx, conn, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, snowflake.ID(1), items[0].ID)
}

func TestFindMissingReturnsNil(t *testing.T) {
	conn, repo := setupRepo(t)
	ref, err := repo.FindByCode(context.Background(), conn, "NOPE0000")
	require.NoError(t, err)
	require.Nil(t, ref)
	ref, err = repo.FindByIDForUpdate(context.Background(), conn, 42)
	require.NoError(t, err)
	require.Nil(t, ref)
}
