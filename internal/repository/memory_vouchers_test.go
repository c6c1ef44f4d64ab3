package repository

import (
	"context"
	"sync"
	"testing"

	"redux-portal/internal/domain"

	"github.com/stretchr/testify/require"
)

func seedVoucher(t *testing.T, repo *MemoryVouchersRepo, siteID, code string, maxUses int) {
	t.Helper()
	ctx := context.Background()
	batch := &domain.VoucherBatch{
		TenantID:       "tenant-1",
		SiteID:         siteID,
		Name:           "Promo",
		MaxUsesPerCode: maxUses,
	}
	require.NoError(t, repo.CreateBatch(ctx, batch))
	require.NoError(t, repo.CreateVoucher(ctx, &domain.Voucher{BatchID: batch.ID, Code: code}))
}

func TestRedeemNormalizesCode(t *testing.T) {
	repo := NewMemoryVouchersRepo()
	seedVoucher(t, repo, "site-1", "ABC123", 2)

	redemption, reason, err := repo.Redeem(context.Background(), RedeemParams{
		TenantID:  "tenant-1",
		SiteID:    "site-1",
		Code:      "  abc123 ",
		ClientMAC: "AA:BB:CC:DD:EE:FF",
	})
	require.NoError(t, err)
	require.Equal(t, domain.ReasonNone, reason)
	require.NotNil(t, redemption)

	v, err := repo.GetVoucherByCode(context.Background(), "ABC123")
	require.NoError(t, err)
	require.Equal(t, 1, v.Uses)
}

func TestRedeemWrongSite(t *testing.T) {
	repo := NewMemoryVouchersRepo()
	seedVoucher(t, repo, "site-1", "ABC123", 1)

	_, reason, err := repo.Redeem(context.Background(), RedeemParams{
		TenantID: "tenant-1",
		SiteID:   "site-2",
		Code:     "ABC123",
	})
	require.NoError(t, err)
	require.Equal(t, domain.ReasonVoucherNotFound, reason)
}

func TestRedeemExactlyOnceUnderConcurrency(t *testing.T) {
	repo := NewMemoryVouchersRepo()
	seedVoucher(t, repo, "site-1", "ONCE", 1)

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan domain.Reason, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, reason, err := repo.Redeem(context.Background(), RedeemParams{
				TenantID:  "tenant-1",
				SiteID:    "site-1",
				Code:      "once",
				ClientMAC: "AA:BB:CC:DD:EE:FF",
			})
			require.NoError(t, err)
			results <- reason
		}()
	}
	wg.Wait()
	close(results)

	succeeded, exhausted := 0, 0
	for reason := range results {
		switch reason {
		case domain.ReasonNone:
			succeeded++
		case domain.ReasonVoucherExhausted:
			exhausted++
		default:
			t.Fatalf("unexpected reason %q", reason)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, attempts-1, exhausted)

	v, err := repo.GetVoucherByCode(context.Background(), "ONCE")
	require.NoError(t, err)
	require.Equal(t, 1, v.Uses)
}
