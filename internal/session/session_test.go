package session

import (
	"context"
	"testing"
	"time"

	"redux-portal/internal/domain"
	"redux-portal/internal/netid"
	"redux-portal/internal/repository"
	"redux-portal/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSiteID = "5f0c4bcd-9f3b-4d5d-8df0-1f4e7c1a2b3c"

func newTestStore(t *testing.T) (*Store, *repository.MemorySessionsRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := repository.NewMemorySessionsRepo()
	return NewStore(store.NewRedisKV(client), repo, DefaultTTL, zap.NewNop()), repo, mr
}

func TestCreateOrReuseIsIdempotentAcrossMACFormats(t *testing.T) {
	s, repo, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateOrReuse(ctx, CreateParams{
		TenantID:  "t1",
		SiteID:    testSiteID,
		ClientMAC: "aa:bb:cc:dd:ee:ff",
		SSID:      "Guest",
		OrigURL:   "http://example.com/start",
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	require.Equal(t, domain.SessionStarted, first.Status)
	require.Equal(t, "AA:BB:CC:DD:EE:FF", first.ClientMAC)

	// Same device re-probes with a different separator convention.
	second, err := s.CreateOrReuse(ctx, CreateParams{
		TenantID:  "t1",
		SiteID:    testSiteID,
		ClientMAC: "AABB.CCDD.EEFF",
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, repo.CountBySiteAndMAC(testSiteID, "AA:BB:CC:DD:EE:FF"))
}

func TestCreateOrReuseRejectsBadMAC(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.CreateOrReuse(context.Background(), CreateParams{
		SiteID:    testSiteID,
		ClientMAC: "not-a-mac",
	})
	require.ErrorIs(t, err, netid.ErrInvalidMAC)

	_, err = s.CreateOrReuse(context.Background(), CreateParams{
		SiteID:    testSiteID,
		ClientMAC: "aa:bb:cc:dd:ee:ff",
		APMAC:     "zz:zz",
	})
	require.ErrorIs(t, err, netid.ErrInvalidMAC)
}

func TestCreateOrReuseIgnoresStaleCacheEntry(t *testing.T) {
	s, repo, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateOrReuse(ctx, CreateParams{
		TenantID:  "t1",
		SiteID:    testSiteID,
		ClientMAC: "aa:bb:cc:dd:ee:ff",
	})
	require.NoError(t, err)

	// Durable row disappears (cleanup job, manual delete) while the
	// cache entry is still live: a fresh session must be created.
	repo.Delete(first.ID)

	second, err := s.CreateOrReuse(ctx, CreateParams{
		TenantID:  "t1",
		SiteID:    testSiteID,
		ClientMAC: "aa:bb:cc:dd:ee:ff",
	})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}

func TestCreateOrReuseAfterCacheExpiry(t *testing.T) {
	s, repo, mr := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateOrReuse(ctx, CreateParams{
		TenantID:  "t1",
		SiteID:    testSiteID,
		ClientMAC: "aa:bb:cc:dd:ee:ff",
	})
	require.NoError(t, err)

	mr.FastForward(DefaultTTL + time.Second)

	second, err := s.CreateOrReuse(ctx, CreateParams{
		TenantID:  "t1",
		SiteID:    testSiteID,
		ClientMAC: "aa:bb:cc:dd:ee:ff",
	})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, 2, repo.CountBySiteAndMAC(testSiteID, "AA:BB:CC:DD:EE:FF"))
}

func TestSetStatusUpdatesCacheAndRow(t *testing.T) {
	s, repo, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateOrReuse(ctx, CreateParams{
		TenantID:  "t1",
		SiteID:    testSiteID,
		ClientMAC: "aa:bb:cc:dd:ee:ff",
	})
	require.NoError(t, err)

	require.NoError(t, s.SetStatus(ctx, testSiteID, "aabbccddeeff", domain.SessionAuthorized))

	row, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionAuthorized, row.Status)

	// The reused session must reflect the durable status.
	again, err := s.CreateOrReuse(ctx, CreateParams{
		TenantID:  "t1",
		SiteID:    testSiteID,
		ClientMAC: "AA-BB-CC-DD-EE-FF",
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, domain.SessionAuthorized, again.Status)
}

func TestSetStatusWithoutCacheEntry(t *testing.T) {
	s, repo, mr := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateOrReuse(ctx, CreateParams{
		TenantID:  "t1",
		SiteID:    testSiteID,
		ClientMAC: "aa:bb:cc:dd:ee:ff",
	})
	require.NoError(t, err)

	mr.FlushAll()

	require.NoError(t, s.SetStatus(ctx, testSiteID, "aa:bb:cc:dd:ee:ff", domain.SessionFailed))
	row, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionFailed, row.Status)
}
