package service

import (
	"Orbit/dao"
	"Orbit/models"
	"Orbit/pkg/log"
	"Orbit/types"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// BalanceCache 余额展示缓存，积分变动后必须失效
type BalanceCache interface {
	Get(ctx context.Context, owner models.Owner) (models.Balance, bool)
	Version(ctx context.Context, owner models.Owner) int64
	// Set 版本号与 Version 读到的不一致时放弃回写
	Set(ctx context.Context, owner models.Owner, balance models.Balance, version int64)
	Invalidate(ctx context.Context, owner models.Owner)
}

type GrantInput struct {
	Owner       models.Owner
	Amount      int64
	Description string
	Tags        []string // 标签名或 slug，不存在时自动创建
	ExpiresAt   *time.Time
}

type SpendInput struct {
	Owner       models.Owner
	Amount      int64
	Description string
	PriorityTag string
	// Kind 默认 SPEND，提现为 WITHDRAW
	Kind models.TransactionKind
	// SourceIDs 非空时只允许从这些积分桶扣减
	SourceIDs []uint64
}

type PointService struct {
	Repo  dao.Repository
	Cache BalanceCache
	now   func() time.Time
}

var _ IPointService = (*PointService)(nil)

type IPointService interface {
	Grant(ctx context.Context, in GrantInput) (*models.PointSource, error)
	Spend(ctx context.Context, in SpendInput) (*models.PointTransaction, error)
	Balance(ctx context.Context, owner models.Owner) (models.Balance, error)
	ListPointRecords(ctx context.Context, owner models.Owner, cursor uint64, limit int) (*types.ListPointsRecord, error)
}

func NewPointService(repo dao.Repository, cache BalanceCache) *PointService {
	return &PointService{Repo: repo, Cache: cache, now: time.Now}
}

// Grant 发放积分：新建一个积分桶并记一笔 EARN 流水
func (p *PointService) Grant(ctx context.Context, in GrantInput) (*models.PointSource, error) {
	var src *models.PointSource
	err := p.Repo.Transaction(ctx, func(tx dao.Repository) error {
		var err error
		src, err = p.GrantTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.Invalidate(ctx, in.Owner)
	return src, nil
}

// GrantTx 在调用方的事务内发放积分，提交后需调用 Invalidate
func (p *PointService) GrantTx(ctx context.Context, tx dao.Repository, in GrantInput) (*models.PointSource, error) {
	if in.Amount <= 0 {
		return nil, invalidOperation("grant amount must be positive, got %d", in.Amount)
	}
	if !in.Owner.Valid() {
		return nil, invalidOperation("unknown owner %s", in.Owner)
	}

	tags, err := p.resolveTags(ctx, tx, in.Tags)
	if err != nil {
		return nil, err
	}

	now := p.now()
	src := &models.PointSource{
		Owner:           in.Owner,
		InitialAmount:   in.Amount,
		RemainingAmount: in.Amount,
		Description:     in.Description,
		ExpiresAt:       in.ExpiresAt,
		Tags:            tags,
		CreatedAt:       now,
	}
	if err := tx.CreateSource(ctx, src); err != nil {
		return nil, fmt.Errorf("create point source: %w", err)
	}

	txn := &models.PointTransaction{
		Owner:       in.Owner,
		Amount:      in.Amount,
		Kind:        models.KindEarn,
		Description: in.Description,
		Sources:     []models.TransactionSource{{SourceID: src.ID, Amount: in.Amount}},
		CreatedAt:   now,
	}
	if err := tx.CreateTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("create earn transaction: %w", err)
	}

	pointsMovedTotal.WithLabelValues(string(models.KindEarn)).Add(float64(in.Amount))
	return src, nil
}

// resolveTags 按 slug 或名称查找标签，不存在则创建，结果去重
func (p *PointService) resolveTags(ctx context.Context, tx dao.Repository, refs []string) ([]models.Tag, error) {
	tags := make([]models.Tag, 0, len(refs))
	seen := make(map[uint64]struct{}, len(refs))

	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" || models.Slugify(ref) == "" {
			continue
		}
		tag, err := tx.FindTagByRef(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("find tag %q: %w", ref, err)
		}
		if tag == nil {
			tag = &models.Tag{Name: ref, Slug: models.Slugify(ref)}
			if err := tx.CreateTag(ctx, tag); err != nil {
				// 并发创建同名标签时唯一索引冲突，重新查一次
				existing, findErr := tx.FindTagByRef(ctx, ref)
				if findErr != nil || existing == nil {
					return nil, fmt.Errorf("create tag %q: %w", ref, err)
				}
				tag = existing
			}
		}
		if _, ok := seen[tag.ID]; ok {
			continue
		}
		seen[tag.ID] = struct{}{}
		tags = append(tags, *tag)
	}
	return tags, nil
}

// Spend 扣减积分，余额不足时整体失败
func (p *PointService) Spend(ctx context.Context, in SpendInput) (*models.PointTransaction, error) {
	var txn *models.PointTransaction
	err := p.Repo.Transaction(ctx, func(tx dao.Repository) error {
		var err error
		txn, err = p.SpendTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.Invalidate(ctx, in.Owner)
	return txn, nil
}

// SpendTx 在调用方事务内扣减。扣减顺序：优先标签 -> 默认标签 -> 其余，每一轮都按创建时间先进先出
func (p *PointService) SpendTx(ctx context.Context, tx dao.Repository, in SpendInput) (*models.PointTransaction, error) {
	if in.Amount <= 0 {
		return nil, invalidOperation("spend amount must be positive, got %d", in.Amount)
	}
	if !in.Owner.Valid() {
		return nil, invalidOperation("unknown owner %s", in.Owner)
	}
	kind := in.Kind
	if kind == "" {
		kind = models.KindSpend
	}

	now := p.now()
	sources, err := tx.LockEligibleSources(ctx, in.Owner, now)
	if err != nil {
		return nil, fmt.Errorf("lock point sources: %w", err)
	}
	sources = restrictSources(sources, in.SourceIDs)
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].CreatedAt.Equal(sources[j].CreatedAt) {
			return sources[i].ID < sources[j].ID
		}
		return sources[i].CreatedAt.Before(sources[j].CreatedAt)
	})

	var balance int64
	for _, src := range sources {
		balance += src.RemainingAmount
	}
	if balance < in.Amount {
		return nil, fmt.Errorf("%w: balance %d, need %d", ErrInsufficientPoints, balance, in.Amount)
	}

	phases := make([]func(*models.PointSource) bool, 0, 3)
	if in.PriorityTag != "" {
		phases = append(phases, func(s *models.PointSource) bool { return s.HasTag(in.PriorityTag) })
	}
	phases = append(phases,
		func(s *models.PointSource) bool { return s.HasDefaultTag() },
		func(*models.PointSource) bool { return true },
	)

	need := in.Amount
	touched := make(map[uint64]struct{}, len(sources))
	consumed := make([]models.TransactionSource, 0, len(sources))

	for _, match := range phases {
		for _, src := range sources {
			if need == 0 {
				break
			}
			if _, ok := touched[src.ID]; ok || src.RemainingAmount <= 0 || !match(src) {
				continue
			}
			take := min(src.RemainingAmount, need)
			if err := tx.DeductSource(ctx, src.ID, take); err != nil {
				return nil, fmt.Errorf("deduct point source %d: %w", src.ID, err)
			}
			src.RemainingAmount -= take
			touched[src.ID] = struct{}{}
			consumed = append(consumed, models.TransactionSource{SourceID: src.ID, Amount: take})
			need -= take
		}
	}
	if need > 0 {
		log.L.Error("spend could not be satisfied after balance check",
			zap.String("owner", in.Owner.String()),
			zap.Int64("amount", in.Amount),
			zap.Int64("left", need),
		)
		return nil, fmt.Errorf("%w: %d points left undeducted for %s", ErrLedgerInconsistent, need, in.Owner)
	}

	txn := &models.PointTransaction{
		Owner:       in.Owner,
		Amount:      -in.Amount,
		Kind:        kind,
		Description: in.Description,
		Sources:     consumed,
		CreatedAt:   now,
	}
	if err := tx.CreateTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("create %s transaction: %w", kind, err)
	}

	pointsMovedTotal.WithLabelValues(string(kind)).Add(float64(in.Amount))
	return txn, nil
}

func restrictSources(sources []*models.PointSource, ids []uint64) []*models.PointSource {
	if len(ids) == 0 {
		return sources
	}
	allowed := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	filtered := sources[:0]
	for _, src := range sources {
		if _, ok := allowed[src.ID]; ok {
			filtered = append(filtered, src)
		}
	}
	return filtered
}

// Balance 展示用余额，优先读缓存
func (p *PointService) Balance(ctx context.Context, owner models.Owner) (models.Balance, error) {
	var version int64
	if p.Cache != nil {
		if b, ok := p.Cache.Get(ctx, owner); ok {
			return b, nil
		}
		version = p.Cache.Version(ctx, owner)
	}

	sources, err := p.Repo.ListActiveSources(ctx, owner, p.now())
	if err != nil {
		return models.Balance{}, fmt.Errorf("list point sources: %w", err)
	}
	var b models.Balance
	for _, src := range sources {
		b.Total += src.RemainingAmount
		if src.Withdrawable() {
			b.Withdrawable += src.RemainingAmount
		}
	}

	if p.Cache != nil {
		p.Cache.Set(ctx, owner, b, version)
	}
	return b, nil
}

func (p *PointService) Invalidate(ctx context.Context, owner models.Owner) {
	if p.Cache != nil {
		p.Cache.Invalidate(ctx, owner)
	}
}

func (p *PointService) ListPointRecords(ctx context.Context, owner models.Owner, cursor uint64, limit int) (*types.ListPointsRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	txns, err := p.Repo.ListTransactions(ctx, owner, cursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list point transactions: %w", err)
	}

	resp := &types.ListPointsRecord{
		Records: make([]types.PointRecord, 0, len(txns)),
		HasMore: false,
	}

	if len(txns) > limit {
		resp.HasMore = true
		txns = txns[:limit]
		resp.NextCursor = txns[len(txns)-1].ID
	}

	for _, t := range txns {
		orderType := "INCOME"
		if t.Amount < 0 {
			orderType = "EXPENSE"
		}
		resp.Records = append(resp.Records, types.PointRecord{
			ID:          t.ID,
			Amount:      t.Amount,
			Kind:        string(t.Kind),
			Description: t.Description,
			OrderType:   orderType,
			SourceIDs:   t.SourceIDs(),
			CreatedAt:   t.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return resp, nil
}
