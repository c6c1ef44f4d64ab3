// Command seed inserts a demo tenant/site/voucher batch for local
// development. Re-running is safe; rows are upserted by their natural
// keys.
package main

import (
	"database/sql"
	"fmt"
	"log"

	"redux-portal/internal/config"
	"redux-portal/internal/database"

	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer db.Close()

	var tenantID string
	err = db.QueryRow(
		`INSERT INTO tenants (slug, name, status)
		 VALUES ('demo', 'Demo Tenant', 'ACTIVE')
		 ON CONFLICT (slug) DO UPDATE SET status = 'ACTIVE', updated_at = now()
		 RETURNING id::text`,
	).Scan(&tenantID)
	if err != nil {
		log.Fatalf("Failed to seed tenant: %v", err)
	}

	var siteID string
	err = db.QueryRow(
		`INSERT INTO sites
			(tenant_id, slug, display_name, enabled, unifi_base_url, unifi_site_id, unifi_api_key_ref,
			 default_time_limit_minutes, enable_tos_only)
		 VALUES ($1::uuid, 'lobby', 'Demo Lobby WiFi', true,
			 'https://unifi.local/proxy/network/integration', 'default', 'DEMO_UNIFI_API_KEY',
			 120, true)
		 ON CONFLICT (tenant_id, slug) DO UPDATE SET updated_at = now()
		 RETURNING id::text`,
		tenantID,
	).Scan(&siteID)
	if err != nil {
		log.Fatalf("Failed to seed site: %v", err)
	}

	// voucher_batches has no unique constraint on its name, so the
	// upsert is a lookup-then-insert.
	var batchID string
	err = db.QueryRow(
		`SELECT id::text FROM voucher_batches WHERE site_id = $1::uuid AND name = 'demo-batch'`,
		siteID,
	).Scan(&batchID)
	if err == sql.ErrNoRows {
		err = db.QueryRow(
			`INSERT INTO voucher_batches (tenant_id, site_id, name, max_uses_per_code)
			 VALUES ($1::uuid, $2::uuid, 'demo-batch', 1)
			 RETURNING id::text`,
			tenantID, siteID,
		).Scan(&batchID)
	}
	if err != nil {
		log.Fatalf("Failed to seed voucher batch: %v", err)
	}

	codes := []string{"DEMO01", "DEMO02", "DEMO03"}
	for _, code := range codes {
		if _, err := db.Exec(
			`INSERT INTO vouchers (batch_id, code)
			 VALUES ($1::uuid, $2)
			 ON CONFLICT (code) DO NOTHING`,
			batchID, code,
		); err != nil {
			log.Fatalf("Failed to seed voucher %s: %v", code, err)
		}
	}

	fmt.Printf("Seeded tenant=demo site=lobby batch=%s codes=%v\n", batchID, codes)
}
