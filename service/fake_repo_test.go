package service

import (
	"Orbit/dao"
	"Orbit/models"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
)

// fakeRepo 内存实现，Transaction 出错时恢复快照
type fakeRepo struct {
	mu   *sync.Mutex
	inTx bool
	st   *fakeState
}

type fakeState struct {
	seq         uint64
	sources     map[uint64]*models.PointSource
	tags        map[uint64]*models.Tag
	txns        []models.PointTransaction
	contracts   map[uint64]*models.WithdrawalContract
	requests    map[uint64]*models.WithdrawalRequest
	allocations map[uint64]*models.PointAllocation
	grants      map[uint64]*models.PendingPointGrant
	users       map[uint64]*models.Users

	// failSourcesFor 给这些用户建积分桶时返回错误
	failSourcesFor map[uint64]bool
}

var errInjected = errors.New("injected failure")

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		mu: &sync.Mutex{},
		st: &fakeState{
			sources:        map[uint64]*models.PointSource{},
			tags:           map[uint64]*models.Tag{},
			contracts:      map[uint64]*models.WithdrawalContract{},
			requests:       map[uint64]*models.WithdrawalRequest{},
			allocations:    map[uint64]*models.PointAllocation{},
			grants:         map[uint64]*models.PendingPointGrant{},
			users:          map[uint64]*models.Users{},
			failSourcesFor: map[uint64]bool{},
		},
	}
}

var _ dao.Repository = (*fakeRepo)(nil)

func (s *fakeState) clone() *fakeState {
	c := *s
	c.sources = make(map[uint64]*models.PointSource, len(s.sources))
	for id, v := range s.sources {
		c.sources[id] = cloneSource(v)
	}
	c.tags = make(map[uint64]*models.Tag, len(s.tags))
	for id, v := range s.tags {
		t := *v
		c.tags[id] = &t
	}
	c.txns = make([]models.PointTransaction, 0, len(s.txns))
	for _, t := range s.txns {
		c.txns = append(c.txns, cloneTxn(t))
	}
	c.contracts = make(map[uint64]*models.WithdrawalContract, len(s.contracts))
	for id, v := range s.contracts {
		x := *v
		c.contracts[id] = &x
	}
	c.requests = make(map[uint64]*models.WithdrawalRequest, len(s.requests))
	for id, v := range s.requests {
		x := *v
		c.requests[id] = &x
	}
	c.allocations = make(map[uint64]*models.PointAllocation, len(s.allocations))
	for id, v := range s.allocations {
		x := *v
		c.allocations[id] = &x
	}
	c.grants = make(map[uint64]*models.PendingPointGrant, len(s.grants))
	for id, v := range s.grants {
		x := *v
		c.grants[id] = &x
	}
	c.users = make(map[uint64]*models.Users, len(s.users))
	for id, v := range s.users {
		c.users[id] = cloneUser(v)
	}
	return &c
}

func cloneSource(s *models.PointSource) *models.PointSource {
	c := *s
	c.Tags = append([]models.Tag(nil), s.Tags...)
	return &c
}

func cloneTxn(t models.PointTransaction) models.PointTransaction {
	t.Sources = append([]models.TransactionSource(nil), t.Sources...)
	return t
}

func cloneUser(u *models.Users) *models.Users {
	c := *u
	c.Bindings = append([]models.UserBinding(nil), u.Bindings...)
	return &c
}

func (f *fakeRepo) lock() func() {
	if f.inTx {
		return func() {}
	}
	f.mu.Lock()
	return f.mu.Unlock
}

func (f *fakeRepo) nextID() uint64 {
	f.st.seq++
	return f.st.seq
}

func (f *fakeRepo) Transaction(ctx context.Context, fn func(tx dao.Repository) error) error {
	if f.inTx {
		return fn(f)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := f.st.clone()
	if err := fn(&fakeRepo{mu: f.mu, inTx: true, st: f.st}); err != nil {
		*f.st = *snap
		return err
	}
	return nil
}

// ---- points ----

func (f *fakeRepo) CreateSource(ctx context.Context, src *models.PointSource) error {
	defer f.lock()()
	if src.Owner.Kind == models.OwnerUser && f.st.failSourcesFor[src.Owner.ID] {
		return errInjected
	}
	src.ID = f.nextID()
	f.st.sources[src.ID] = cloneSource(src)
	return nil
}

func (f *fakeRepo) FindSource(ctx context.Context, id uint64) (*models.PointSource, error) {
	defer f.lock()()
	s, ok := f.st.sources[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return cloneSource(s), nil
}

func (f *fakeRepo) LockSource(ctx context.Context, id uint64) (*models.PointSource, error) {
	return f.FindSource(ctx, id)
}

func (f *fakeRepo) activeSources(owner models.Owner, now time.Time) []*models.PointSource {
	var out []*models.PointSource
	for _, s := range f.st.sources {
		if s.Owner == owner && s.Active(now) {
			out = append(out, cloneSource(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (f *fakeRepo) LockEligibleSources(ctx context.Context, owner models.Owner, now time.Time) ([]*models.PointSource, error) {
	defer f.lock()()
	return f.activeSources(owner, now), nil
}

func (f *fakeRepo) ListActiveSources(ctx context.Context, owner models.Owner, now time.Time) ([]*models.PointSource, error) {
	defer f.lock()()
	return f.activeSources(owner, now), nil
}

func (f *fakeRepo) DeductSource(ctx context.Context, id uint64, amount int64) error {
	defer f.lock()()
	s, ok := f.st.sources[id]
	if !ok || s.RemainingAmount < amount {
		return dao.ErrStaleSource
	}
	s.RemainingAmount -= amount
	return nil
}

func (f *fakeRepo) FindTagByRef(ctx context.Context, ref string) (*models.Tag, error) {
	defer f.lock()()
	var found *models.Tag
	for _, t := range f.st.tags {
		if t.Slug == models.Slugify(ref) || t.Name == ref {
			if found == nil || t.ID < found.ID {
				found = t
			}
		}
	}
	if found == nil {
		return nil, nil
	}
	c := *found
	return &c, nil
}

func (f *fakeRepo) CreateTag(ctx context.Context, tag *models.Tag) error {
	defer f.lock()()
	for _, t := range f.st.tags {
		if t.Slug == tag.Slug {
			return errors.New("duplicate slug")
		}
	}
	tag.ID = f.nextID()
	c := *tag
	f.st.tags[tag.ID] = &c
	return nil
}

func (f *fakeRepo) CreateTransaction(ctx context.Context, txn *models.PointTransaction) error {
	defer f.lock()()
	txn.ID = f.nextID()
	for i := range txn.Sources {
		txn.Sources[i].TransactionID = txn.ID
	}
	f.st.txns = append(f.st.txns, cloneTxn(*txn))
	return nil
}

func (f *fakeRepo) ListTransactions(ctx context.Context, owner models.Owner, cursor uint64, limit int) ([]models.PointTransaction, error) {
	defer f.lock()()
	var out []models.PointTransaction
	for i := len(f.st.txns) - 1; i >= 0 && len(out) < limit; i-- {
		t := f.st.txns[i]
		if t.Owner != owner || (cursor > 0 && t.ID >= cursor) {
			continue
		}
		out = append(out, cloneTxn(t))
	}
	return out, nil
}

// ---- withdrawal ----

func (f *fakeRepo) FindContract(ctx context.Context, owner models.Owner) (*models.WithdrawalContract, error) {
	defer f.lock()()
	for _, c := range f.st.contracts {
		if c.Owner == owner {
			x := *c
			return &x, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) LockContract(ctx context.Context, owner models.Owner) (*models.WithdrawalContract, error) {
	return f.FindContract(ctx, owner)
}

func (f *fakeRepo) LockContractByRecordID(ctx context.Context, recordID string) (*models.WithdrawalContract, error) {
	defer f.lock()()
	for _, c := range f.st.contracts {
		if c.RecordID == recordID {
			x := *c
			return &x, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) SaveContract(ctx context.Context, c *models.WithdrawalContract) error {
	defer f.lock()()
	if c.ID == 0 {
		c.ID = f.nextID()
	}
	x := *c
	f.st.contracts[c.ID] = &x
	return nil
}

func (f *fakeRepo) CountPendingRequests(ctx context.Context, owner models.Owner) (int64, error) {
	defer f.lock()()
	var n int64
	for _, r := range f.st.requests {
		if r.Owner == owner && r.Status == models.WithdrawalPending {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) CreateWithdrawalRequests(ctx context.Context, reqs []*models.WithdrawalRequest) error {
	defer f.lock()()
	for _, r := range reqs {
		r.ID = f.nextID()
		x := *r
		f.st.requests[r.ID] = &x
	}
	return nil
}

func (f *fakeRepo) LockWithdrawalRequest(ctx context.Context, id uint64) (*models.WithdrawalRequest, error) {
	defer f.lock()()
	r, ok := f.st.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	x := *r
	return &x, nil
}

func (f *fakeRepo) SaveWithdrawalRequest(ctx context.Context, req *models.WithdrawalRequest) error {
	defer f.lock()()
	x := *req
	f.st.requests[req.ID] = &x
	return nil
}

func (f *fakeRepo) ListWithdrawalRequests(ctx context.Context, owner models.Owner, cursor uint64, limit int) ([]models.WithdrawalRequest, error) {
	defer f.lock()()
	var out []models.WithdrawalRequest
	for _, r := range f.st.requests {
		if r.Owner == owner && (cursor == 0 || r.ID < cursor) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- allocation ----

func (f *fakeRepo) CreateAllocation(ctx context.Context, a *models.PointAllocation) error {
	defer f.lock()()
	a.ID = f.nextID()
	x := *a
	f.st.allocations[a.ID] = &x
	return nil
}

func (f *fakeRepo) FindAllocation(ctx context.Context, id uint64) (*models.PointAllocation, error) {
	defer f.lock()()
	a, ok := f.st.allocations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	x := *a
	return &x, nil
}

func (f *fakeRepo) TransitionAllocation(ctx context.Context, id uint64, from, to models.AllocationStatus) (bool, error) {
	defer f.lock()()
	a, ok := f.st.allocations[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	return true, nil
}

func (f *fakeRepo) SaveAllocation(ctx context.Context, a *models.PointAllocation) error {
	defer f.lock()()
	x := *a
	f.st.allocations[a.ID] = &x
	return nil
}

func (f *fakeRepo) CreatePendingGrant(ctx context.Context, g *models.PendingPointGrant) error {
	defer f.lock()()
	g.ID = f.nextID()
	x := *g
	f.st.grants[g.ID] = &x
	return nil
}

func (f *fakeRepo) FindUnclaimedGrants(ctx context.Context, match dao.GrantMatch) ([]models.PendingPointGrant, error) {
	defer f.lock()()
	var out []models.PendingPointGrant
	for _, g := range f.st.grants {
		if g.IsClaimed {
			continue
		}
		hit := (match.Login != "" && g.ExternalLogin == match.Login) ||
			(match.Email != "" && g.Email == match.Email)
		for _, b := range match.Bindings {
			if b.Platform != "" && b.ExternalID != "" && g.Platform == b.Platform && g.ExternalID == b.ExternalID {
				hit = true
			}
		}
		if hit {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) LockPendingGrant(ctx context.Context, id uint64) (*models.PendingPointGrant, error) {
	defer f.lock()()
	g, ok := f.st.grants[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	x := *g
	return &x, nil
}

func (f *fakeRepo) SavePendingGrant(ctx context.Context, g *models.PendingPointGrant) error {
	defer f.lock()()
	x := *g
	f.st.grants[g.ID] = &x
	return nil
}

func (f *fakeRepo) ListClaimedGrants(ctx context.Context, userID uint64) ([]models.PendingPointGrant, error) {
	defer f.lock()()
	var out []models.PendingPointGrant
	for _, g := range f.st.grants {
		if g.IsClaimed && g.ClaimedBy != nil && *g.ClaimedBy == userID {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- accounts ----

func (f *fakeRepo) addUser(u *models.Users) *models.Users {
	defer f.lock()()
	if u.ID == 0 {
		u.ID = f.nextID()
	}
	f.st.users[u.ID] = cloneUser(u)
	return u
}

func (f *fakeRepo) FindAccount(ctx context.Context, id uint64) (*models.Users, error) {
	defer f.lock()()
	u, ok := f.st.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return cloneUser(u), nil
}

func (f *fakeRepo) FindAccountByUsername(ctx context.Context, username string) (*models.Users, error) {
	defer f.lock()()
	for _, u := range f.st.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) FindOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) FindAccountsByBindings(ctx context.Context, platform string, externalIDs []string) (map[string]*models.Users, error) {
	defer f.lock()()
	out := map[string]*models.Users{}
	for _, id := range externalIDs {
		for _, u := range f.st.users {
			for _, b := range u.Bindings {
				if b.Platform == platform && b.ExternalID == id {
					out[id] = cloneUser(u)
				}
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) FindAccountsByUsernames(ctx context.Context, usernames []string) (map[string]*models.Users, error) {
	defer f.lock()()
	out := map[string]*models.Users{}
	for _, name := range usernames {
		for _, u := range f.st.users {
			if u.Username == name {
				out[name] = cloneUser(u)
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) ListAccountsAfter(ctx context.Context, afterID uint64, limit int) ([]models.Users, error) {
	defer f.lock()()
	var out []models.Users
	for _, u := range f.st.users {
		if u.ID > afterID {
			out = append(out, *cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- helpers ----

func (f *fakeRepo) source(id uint64) *models.PointSource {
	defer f.lock()()
	return cloneSource(f.st.sources[id])
}

func (f *fakeRepo) transactions(owner models.Owner) []models.PointTransaction {
	defer f.lock()()
	var out []models.PointTransaction
	for _, t := range f.st.txns {
		if t.Owner == owner {
			out = append(out, cloneTxn(t))
		}
	}
	return out
}

// memCache BalanceCache 的内存实现
type memCache struct {
	mu          sync.Mutex
	data        map[models.Owner]models.Balance
	versions    map[models.Owner]int64
	invalidated int
}

func newMemCache() *memCache {
	return &memCache{data: map[models.Owner]models.Balance{}, versions: map[models.Owner]int64{}}
}

func (m *memCache) Version(ctx context.Context, owner models.Owner) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[owner]
}

func (m *memCache) Get(ctx context.Context, owner models.Owner) (models.Balance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[owner]
	return b, ok
}

func (m *memCache) Set(ctx context.Context, owner models.Owner, balance models.Balance, version int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versions[owner] != version {
		return
	}
	m.data[owner] = balance
}

func (m *memCache) Invalidate(ctx context.Context, owner models.Owner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, owner)
	m.versions[owner]++
	m.invalidated++
}

// tickClock 每次调用前进一秒，保证创建时间严格递增
func tickClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestLedger(repo *fakeRepo) (*PointService, *memCache) {
	cache := newMemCache()
	svc := NewPointService(repo, cache)
	svc.now = tickClock()
	return svc, cache
}
