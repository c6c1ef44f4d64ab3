package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"redux-portal/internal/domain"

	"github.com/google/uuid"
)

// Memory repos back the same interfaces as the Postgres ones without a
// database. They serve unit tests and DB-less local runs; the voucher
// ledger serializes on a mutex instead of a row lock, which preserves
// the exactly-once property in-process.

type MemorySitesRepo struct {
	mu    sync.RWMutex
	sites map[string]*domain.Site // key: tenantSlug + "/" + siteSlug
}

func NewMemorySitesRepo() *MemorySitesRepo {
	return &MemorySitesRepo{sites: map[string]*domain.Site{}}
}

var _ SitesRepo = (*MemorySitesRepo)(nil)

func (r *MemorySitesRepo) AddSite(site *domain.Site) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if site.ID == "" {
		site.ID = uuid.NewString()
	}
	r.sites[site.TenantSlug+"/"+site.Slug] = site
}

func (r *MemorySitesRepo) GetSiteBySlugs(_ context.Context, tenantSlug, siteSlug string) (*domain.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	site, ok := r.sites[tenantSlug+"/"+siteSlug]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *site
	return &cp, nil
}

type MemorySessionsRepo struct {
	mu       sync.RWMutex
	sessions map[string]*domain.PortalSession // key: session id
}

func NewMemorySessionsRepo() *MemorySessionsRepo {
	return &MemorySessionsRepo{sessions: map[string]*domain.PortalSession{}}
}

var _ SessionsRepo = (*MemorySessionsRepo)(nil)

func (r *MemorySessionsRepo) Create(_ context.Context, s *domain.PortalSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = domain.SessionStarted
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *MemorySessionsRepo) GetByID(_ context.Context, id string) (*domain.PortalSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemorySessionsRepo) GetBySiteAndID(_ context.Context, siteID, id string) (*domain.PortalSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok || s.SiteID != siteID {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemorySessionsRepo) SetStatus(_ context.Context, siteID, clientMAC string, status domain.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.SiteID == siteID && s.ClientMAC == clientMAC {
			s.Status = status
			s.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

// CountBySiteAndMAC reports how many durable rows exist for the pair;
// used by session-store tests.
func (r *MemorySessionsRepo) CountBySiteAndMAC(siteID, clientMAC string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if s.SiteID == siteID && s.ClientMAC == clientMAC {
			n++
		}
	}
	return n
}

// Delete removes a durable row; used by tests exercising the
// cache-present/row-missing path.
func (r *MemorySessionsRepo) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

type memoryVoucher struct {
	voucher domain.Voucher
	batch   *domain.VoucherBatch
}

type MemoryVouchersRepo struct {
	mu       sync.Mutex
	batches  map[string]*domain.VoucherBatch
	vouchers map[string]*memoryVoucher // key: code
}

func NewMemoryVouchersRepo() *MemoryVouchersRepo {
	return &MemoryVouchersRepo{
		batches:  map[string]*domain.VoucherBatch{},
		vouchers: map[string]*memoryVoucher{},
	}
}

var _ VouchersRepo = (*MemoryVouchersRepo)(nil)

func (r *MemoryVouchersRepo) CreateBatch(_ context.Context, b *domain.VoucherBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = time.Now().UTC()
	cp := *b
	r.batches[b.ID] = &cp
	return nil
}

func (r *MemoryVouchersRepo) CreateVoucher(_ context.Context, v *domain.Voucher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.Code = strings.ToUpper(strings.TrimSpace(v.Code))
	v.CreatedAt = time.Now().UTC()
	batch, ok := r.batches[v.BatchID]
	if !ok {
		return ErrNotFound
	}
	cp := *v
	r.vouchers[v.Code] = &memoryVoucher{voucher: cp, batch: batch}
	return nil
}

func (r *MemoryVouchersRepo) GetVoucherByCode(_ context.Context, code string) (*domain.Voucher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.vouchers[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, ErrNotFound
	}
	cp := entry.voucher
	return &cp, nil
}

func (r *MemoryVouchersRepo) Redeem(_ context.Context, p RedeemParams) (*domain.VoucherRedemption, domain.Reason, error) {
	code := strings.ToUpper(strings.TrimSpace(p.Code))

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.vouchers[code]
	if !ok || entry.batch.SiteID != p.SiteID {
		return nil, domain.ReasonVoucherNotFound, nil
	}
	if entry.voucher.Disabled {
		return nil, domain.ReasonVoucherDisabled, nil
	}
	if entry.batch.ExpiresAt != nil && !entry.batch.ExpiresAt.After(time.Now()) {
		return nil, domain.ReasonVoucherExpired, nil
	}
	if entry.voucher.Uses >= entry.batch.MaxUsesPerCode {
		return nil, domain.ReasonVoucherExhausted, nil
	}

	entry.voucher.Uses++
	redemption := &domain.VoucherRedemption{
		ID:              uuid.NewString(),
		TenantID:        p.TenantID,
		SiteID:          p.SiteID,
		VoucherID:       entry.voucher.ID,
		PortalSessionID: p.PortalSessionID,
		ClientMAC:       p.ClientMAC,
		RedeemedAt:      time.Now().UTC(),
	}
	return redemption, domain.ReasonNone, nil
}

type MemoryIdentitiesRepo struct {
	mu         sync.Mutex
	identities []*domain.GuestIdentity
}

func NewMemoryIdentitiesRepo() *MemoryIdentitiesRepo {
	return &MemoryIdentitiesRepo{}
}

var _ IdentitiesRepo = (*MemoryIdentitiesRepo)(nil)

func (r *MemoryIdentitiesRepo) UpsertEmail(_ context.Context, tenantID, email string) (*domain.GuestIdentity, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.identities {
		if id.TenantID == tenantID && id.Email == email {
			id.UpdatedAt = time.Now().UTC()
			cp := *id
			return &cp, nil
		}
	}
	identity := &domain.GuestIdentity{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Email:     email,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	r.identities = append(r.identities, identity)
	cp := *identity
	return &cp, nil
}

func (r *MemoryIdentitiesRepo) UpsertSubject(_ context.Context, tenantID, sub, email, displayName string) (*domain.GuestIdentity, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.identities {
		if id.TenantID == tenantID && id.OidcSub == sub {
			id.Email = email
			id.DisplayName = displayName
			id.UpdatedAt = time.Now().UTC()
			cp := *id
			return &cp, nil
		}
	}
	identity := &domain.GuestIdentity{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		OidcSub:     sub,
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	r.identities = append(r.identities, identity)
	cp := *identity
	return &cp, nil
}

type MemoryAuthEventsRepo struct {
	mu     sync.RWMutex
	events []*domain.AuthEvent
}

func NewMemoryAuthEventsRepo() *MemoryAuthEventsRepo {
	return &MemoryAuthEventsRepo{}
}

var _ AuthEventsRepo = (*MemoryAuthEventsRepo)(nil)

func (r *MemoryAuthEventsRepo) Append(_ context.Context, e *domain.AuthEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()
	cp := *e
	r.events = append(r.events, &cp)
	return nil
}

func (r *MemoryAuthEventsRepo) ListBySite(_ context.Context, siteID string, limit int) ([]*domain.AuthEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*domain.AuthEvent{}
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if r.events[i].SiteID == siteID {
			cp := *r.events[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

type MemoryOidcRepo struct {
	mu       sync.RWMutex
	settings map[string]*domain.SiteOidcSetting // key: site id
	provider map[string]*domain.OidcProvider    // key: provider id
}

func NewMemoryOidcRepo() *MemoryOidcRepo {
	return &MemoryOidcRepo{
		settings: map[string]*domain.SiteOidcSetting{},
		provider: map[string]*domain.OidcProvider{},
	}
}

var _ OidcRepo = (*MemoryOidcRepo)(nil)

func (r *MemoryOidcRepo) AddProvider(p *domain.OidcProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	r.provider[p.ID] = p
}

func (r *MemoryOidcRepo) AddSetting(s *domain.SiteOidcSetting) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	r.settings[s.SiteID] = s
}

func (r *MemoryOidcRepo) GetEnabledSetting(_ context.Context, siteID string) (*domain.SiteOidcSetting, *domain.OidcProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	setting, ok := r.settings[siteID]
	if !ok || !setting.Enabled {
		return nil, nil, ErrNotFound
	}
	provider, ok := r.provider[setting.ProviderID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	sc := *setting
	pc := *provider
	return &sc, &pc, nil
}
