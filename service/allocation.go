package service

import (
	"Orbit/dao"
	"Orbit/models"
	"Orbit/pkg/contribution"
	"Orbit/pkg/labels"
	"Orbit/pkg/log"
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PointsPerScore 每 1 分贡献度折算的积分
const PointsPerScore = 300

var pointsPerScore = decimal.NewFromInt(PointsPerScore)

// TagEvaluator 标签表达式求值
type TagEvaluator interface {
	EvaluateProjectTags(ctx context.Context, slugs []string, op models.SetOp) (labels.Set, error)
	EvaluateUserTags(ctx context.Context, slugs []string, op models.SetOp) (labels.Set, error)
}

// ContributionSource 贡献度数据源
type ContributionSource interface {
	GetContributions(ctx context.Context, projectIDs []string, startMonth, endMonth string) ([]contribution.Contribution, error)
}

type CreateAllocationInput struct {
	InitiatorID     uint64
	// FundingOwner 源积分桶的归属方，为空时取发起人自己
	FundingOwner    *models.Owner
	SourceID        uint64
	TotalAmount     int64
	ProjectScope    models.TagScope
	UserScope       models.TagScope
	StartMonth      string
	EndMonth        string
	AdjustmentRatio *decimal.Decimal
	Overrides       map[string]int64
}

// RecipientPreview 预览结果中的一个接收方
type RecipientPreview struct {
	Platform   string
	ActorID    string
	ActorLogin string
	Email      string
	Score      decimal.Decimal
	// Account 为 nil 表示未注册，执行时生成待认领记录
	Account          *models.Users
	Key              string
	CalculatedPoints int64
	AdjustedPoints   int64
	Overridden       bool

	// 缩放前的积分，可能超出 int64
	adjusted decimal.Decimal
}

type AllocationService struct {
	Repo          dao.Repository
	Ledger        *PointService
	Labels        TagEvaluator
	Contributions ContributionSource
	now           func() time.Time
}

var _ IAllocationService = (*AllocationService)(nil)

type IAllocationService interface {
	Create(ctx context.Context, in CreateAllocationInput) (*models.PointAllocation, error)
	Find(ctx context.Context, id uint64) (*models.PointAllocation, error)
	Preview(ctx context.Context, alloc *models.PointAllocation) ([]RecipientPreview, error)
	Execute(ctx context.Context, id uint64) (*models.PointAllocation, error)
}

func NewAllocationService(repo dao.Repository, ledger *PointService, evaluator TagEvaluator, source ContributionSource) *AllocationService {
	return &AllocationService{
		Repo:          repo,
		Ledger:        ledger,
		Labels:        evaluator,
		Contributions: source,
		now:           time.Now,
	}
}

func (s *AllocationService) Create(ctx context.Context, in CreateAllocationInput) (*models.PointAllocation, error) {
	if in.TotalAmount <= 0 {
		return nil, invalidOperation("total amount must be positive, got %d", in.TotalAmount)
	}
	projectScope, err := normalizeScope(in.ProjectScope)
	if err != nil {
		return nil, err
	}
	if projectScope.Empty() {
		return nil, invalidOperation("project tags are required")
	}
	userScope, err := normalizeScope(in.UserScope)
	if err != nil {
		return nil, err
	}

	start, err := time.Parse("2006-01", in.StartMonth)
	if err != nil {
		return nil, invalidOperation("bad start month %q", in.StartMonth)
	}
	end, err := time.Parse("2006-01", in.EndMonth)
	if err != nil {
		return nil, invalidOperation("bad end month %q", in.EndMonth)
	}
	if end.Before(start) {
		return nil, invalidOperation("end month %s is before start month %s", in.EndMonth, in.StartMonth)
	}

	var ratio decimal.NullDecimal
	if in.AdjustmentRatio != nil {
		if in.AdjustmentRatio.IsNegative() {
			return nil, invalidOperation("adjustment ratio must not be negative")
		}
		ratio = decimal.NewNullDecimal(*in.AdjustmentRatio)
	}
	overrides := make(map[string]int64, len(in.Overrides))
	for key, points := range in.Overrides {
		key = strings.TrimSpace(key)
		if key == "" || points < 0 {
			return nil, invalidOperation("bad override %q=%d", key, points)
		}
		overrides[key] = points
	}

	src, err := s.Repo.FindSource(ctx, in.SourceID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invalidOperation("point source %d not found", in.SourceID)
	}
	if err != nil {
		return nil, err
	}
	funding := models.UserOwner(in.InitiatorID)
	if in.FundingOwner != nil {
		if !in.FundingOwner.Valid() {
			return nil, invalidOperation("bad funding owner %s", in.FundingOwner)
		}
		funding = *in.FundingOwner
	}
	if src.Owner != funding {
		return nil, invalidOperation("point source %d does not belong to %s", in.SourceID, funding)
	}

	alloc := &models.PointAllocation{
		InitiatorID:     in.InitiatorID,
		SourceID:        in.SourceID,
		TotalAmount:     in.TotalAmount,
		ProjectScope:    datatypes.NewJSONType(projectScope),
		UserScope:       datatypes.NewJSONType(userScope),
		StartMonth:      in.StartMonth,
		EndMonth:        in.EndMonth,
		AdjustmentRatio: ratio,
		Overrides:       datatypes.NewJSONType(overrides),
		Status:          models.AllocationPending,
		Snapshot:        datatypes.NewJSONType([]models.AllocationItem{}),
	}
	if err := s.Repo.CreateAllocation(ctx, alloc); err != nil {
		return nil, fmt.Errorf("create allocation: %w", err)
	}
	return alloc, nil
}

func normalizeScope(scope models.TagScope) (models.TagScope, error) {
	slugs := make([]string, 0, len(scope.Slugs))
	for _, slug := range scope.Slugs {
		if slug = models.Slugify(slug); slug != "" {
			slugs = append(slugs, slug)
		}
	}
	op := models.SetOp(strings.ToUpper(string(scope.Op)))
	if op == "" {
		op = models.SetOr
	}
	if !op.Valid() {
		return models.TagScope{}, invalidOperation("unknown tag operator %q", scope.Op)
	}
	return models.TagScope{Slugs: slugs, Op: op}, nil
}

func (s *AllocationService) Find(ctx context.Context, id uint64) (*models.PointAllocation, error) {
	alloc, err := s.Repo.FindAllocation(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invalidOperation("allocation %d not found", id)
	}
	return alloc, err
}

// Preview 计算每个接收方应得积分，不产生任何写入
func (s *AllocationService) Preview(ctx context.Context, alloc *models.PointAllocation) ([]RecipientPreview, error) {
	projectScope := alloc.ProjectScope.Data()
	projects, err := s.Labels.EvaluateProjectTags(ctx, projectScope.Slugs, projectScope.Op)
	if err != nil {
		return nil, fmt.Errorf("evaluate project tags: %w", err)
	}
	if len(projects) == 0 {
		return nil, nil
	}

	contributions, err := s.Contributions.GetContributions(ctx, projects.Slice(), alloc.StartMonth, alloc.EndMonth)
	if err != nil {
		// 上游不可用时按无贡献处理
		log.L.Warn("fetch contributions failed",
			zap.Uint64("allocation_id", alloc.ID),
			zap.Error(err),
		)
		contributions = nil
	}

	if userScope := alloc.UserScope.Data(); !userScope.Empty() {
		allowed, err := s.Labels.EvaluateUserTags(ctx, userScope.Slugs, userScope.Op)
		if err != nil {
			return nil, fmt.Errorf("evaluate user tags: %w", err)
		}
		filtered := contributions[:0]
		for _, c := range contributions {
			if allowed.Has(c.ActorLogin) || allowed.Has(c.ActorID) {
				filtered = append(filtered, c)
			}
		}
		contributions = filtered
	}

	recipients := mergeContributions(contributions)
	totalScore := decimal.Zero
	for _, r := range recipients {
		totalScore = totalScore.Add(r.Score)
	}
	if !totalScore.IsPositive() {
		return nil, nil
	}

	if err := s.attachAccounts(ctx, recipients); err != nil {
		return nil, err
	}

	recipients = mergeByAccount(recipients)

	overrides := alloc.Overrides.Data()
	for i := range recipients {
		r := &recipients[i]
		calculated := decimal.Max(r.Score.Mul(pointsPerScore).Floor(), decimal.Zero)
		r.CalculatedPoints = clampInt64(calculated)
		r.adjusted = calculated
		if alloc.AdjustmentRatio.Valid {
			r.adjusted = calculated.Mul(alloc.AdjustmentRatio.Decimal).Floor()
		}
		if points, ok := overrides[r.Key]; ok {
			r.adjusted = decimal.NewFromInt(points)
			r.Overridden = true
		}
	}

	ScaleToBudget(recipients, alloc.TotalAmount)
	return recipients, nil
}

// ScaleToBudget 总数超出预算时按比例向下取整缩减，覆盖值同样缩减，不做余数补齐。
// 求和与缩放都在 decimal 上做，结果不超过 budget，转 int64 不会溢出
func ScaleToBudget(recipients []RecipientPreview, budget int64) {
	sum := decimal.Zero
	for _, r := range recipients {
		sum = sum.Add(r.adjusted)
	}
	total := decimal.NewFromInt(budget)
	scale := sum.GreaterThan(total) && sum.IsPositive()
	for i := range recipients {
		v := recipients[i].adjusted
		if scale {
			v, _ = v.Mul(total).QuoRem(sum, 0)
		}
		recipients[i].AdjustedPoints = clampInt64(v)
	}
}

func clampInt64(d decimal.Decimal) int64 {
	if d.GreaterThan(maxInt64) {
		return math.MaxInt64
	}
	if d.IsNegative() {
		return 0
	}
	return d.IntPart()
}

var maxInt64 = decimal.NewFromInt(math.MaxInt64)

// mergeByAccount 多个外部身份匹配到同一账号时合并为一条，避免重复发放
func mergeByAccount(recipients []RecipientPreview) []RecipientPreview {
	index := make(map[uint64]int, len(recipients))
	out := recipients[:0]
	for _, r := range recipients {
		if r.Account == nil {
			out = append(out, r)
			continue
		}
		if i, ok := index[r.Account.ID]; ok {
			out[i].Score = out[i].Score.Add(r.Score)
			if out[i].Email == "" {
				out[i].Email = r.Email
			}
			continue
		}
		index[r.Account.ID] = len(out)
		out = append(out, r)
	}
	return out
}

// mergeContributions 同一外部身份跨项目的贡献度合并
func mergeContributions(contributions []contribution.Contribution) []RecipientPreview {
	index := make(map[string]int, len(contributions))
	out := make([]RecipientPreview, 0, len(contributions))
	for _, c := range contributions {
		id := c.ActorID
		if id == "" {
			id = "login:" + c.ActorLogin
		}
		key := c.Platform + "/" + id
		if i, ok := index[key]; ok {
			out[i].Score = out[i].Score.Add(c.Score)
			if out[i].Email == "" {
				out[i].Email = c.Email
			}
			continue
		}
		index[key] = len(out)
		out = append(out, RecipientPreview{
			Platform:   c.Platform,
			ActorID:    c.ActorID,
			ActorLogin: c.ActorLogin,
			Email:      c.Email,
			Score:      c.Score,
		})
	}
	return out
}

// attachAccounts 先按第三方绑定匹配账号，再按用户名匹配，并生成覆盖值使用的 key
func (s *AllocationService) attachAccounts(ctx context.Context, recipients []RecipientPreview) error {
	byPlatform := make(map[string][]string)
	for _, r := range recipients {
		if r.ActorID != "" {
			byPlatform[r.Platform] = append(byPlatform[r.Platform], r.ActorID)
		}
	}
	for platform, ids := range byPlatform {
		accounts, err := s.Repo.FindAccountsByBindings(ctx, platform, ids)
		if err != nil {
			return fmt.Errorf("find accounts on %s: %w", platform, err)
		}
		for i := range recipients {
			if recipients[i].Platform == platform && recipients[i].Account == nil {
				recipients[i].Account = accounts[recipients[i].ActorID]
			}
		}
	}

	var logins []string
	for _, r := range recipients {
		if r.Account == nil && r.ActorLogin != "" {
			logins = append(logins, r.ActorLogin)
		}
	}
	if len(logins) > 0 {
		accounts, err := s.Repo.FindAccountsByUsernames(ctx, logins)
		if err != nil {
			return fmt.Errorf("find accounts by username: %w", err)
		}
		for i := range recipients {
			if recipients[i].Account == nil && recipients[i].ActorLogin != "" {
				recipients[i].Account = accounts[recipients[i].ActorLogin]
			}
		}
	}

	for i := range recipients {
		r := &recipients[i]
		switch {
		case r.Account != nil:
			r.Key = strconv.FormatUint(r.Account.ID, 10)
		case r.ActorLogin != "":
			r.Key = r.ActorLogin
		default:
			r.Key = r.ActorID
		}
	}
	return nil
}

// Execute 执行分配。单个接收方失败只计数，编排过程中的意外错误会把任务置为 failed
func (s *AllocationService) Execute(ctx context.Context, id uint64) (*models.PointAllocation, error) {
	ok, err := s.Repo.TransitionAllocation(ctx, id, models.AllocationPending, models.AllocationExecuting)
	if err != nil {
		return nil, fmt.Errorf("start allocation %d: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: allocation %d is not pending", ErrAllocationState, id)
	}

	var alloc *models.PointAllocation
	defer func() {
		if r := recover(); r != nil {
			s.markFailed(ctx, id, alloc, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	alloc, err = s.Repo.FindAllocation(ctx, id)
	if err != nil {
		s.markFailed(ctx, id, nil, err)
		return nil, err
	}
	if err := s.execute(ctx, alloc); err != nil {
		s.markFailed(ctx, id, alloc, err)
		return nil, err
	}
	return alloc, nil
}

func (s *AllocationService) execute(ctx context.Context, alloc *models.PointAllocation) error {
	alloc.Status = models.AllocationExecuting

	recipients, err := s.Preview(ctx, alloc)
	if err != nil {
		return err
	}
	src, err := s.Repo.FindSource(ctx, alloc.SourceID)
	if err != nil {
		return fmt.Errorf("find point source %d: %w", alloc.SourceID, err)
	}
	tags := src.TagSlugs()
	reason := fmt.Sprintf("Contribution reward %s ~ %s (allocation #%d)", alloc.StartMonth, alloc.EndMonth, alloc.ID)

	snapshot := make([]models.AllocationItem, 0, len(recipients))
	for _, r := range recipients {
		snapshot = append(snapshot, r.snapshot())
		if r.AdjustedPoints <= 0 {
			continue
		}

		if r.Account != nil {
			_, err := s.Ledger.Grant(ctx, GrantInput{
				Owner:       models.UserOwner(r.Account.ID),
				Amount:      r.AdjustedPoints,
				Description: reason,
				Tags:        tags,
			})
			if err != nil {
				alloc.FailedCount++
				allocationItemsTotal.WithLabelValues("failed").Inc()
				log.L.Error("allocation grant failed",
					zap.Uint64("allocation_id", alloc.ID),
					zap.Uint64("user_id", r.Account.ID),
					zap.Int64("amount", r.AdjustedPoints),
					zap.Error(err),
				)
				continue
			}
			alloc.SuccessCount++
			alloc.TotalPoints += r.AdjustedPoints
			allocationItemsTotal.WithLabelValues("granted").Inc()
			continue
		}

		grant := &models.PendingPointGrant{
			AllocationID:  alloc.ID,
			Platform:      r.Platform,
			ExternalID:    r.ActorID,
			ExternalLogin: r.ActorLogin,
			Email:         r.Email,
			Amount:        r.AdjustedPoints,
			Tags:          datatypes.NewJSONType(tags),
			Reason:        reason,
		}
		if err := s.Repo.CreatePendingGrant(ctx, grant); err != nil {
			alloc.FailedCount++
			allocationItemsTotal.WithLabelValues("failed").Inc()
			log.L.Error("create pending grant failed",
				zap.Uint64("allocation_id", alloc.ID),
				zap.String("login", r.ActorLogin),
				zap.Error(err),
			)
			continue
		}
		alloc.PendingCount++
		alloc.TotalPoints += r.AdjustedPoints
		allocationItemsTotal.WithLabelValues("pending").Inc()
	}

	now := s.now()
	alloc.Status = models.AllocationCompleted
	alloc.Snapshot = datatypes.NewJSONType(snapshot)
	alloc.ExecutedAt = &now
	alloc.Error = ""
	return s.Repo.SaveAllocation(ctx, alloc)
}

func (s *AllocationService) markFailed(ctx context.Context, id uint64, alloc *models.PointAllocation, cause error) {
	log.L.Error("allocation execution failed", zap.Uint64("allocation_id", id), zap.Error(cause))

	var err error
	if alloc == nil {
		_, err = s.Repo.TransitionAllocation(ctx, id, models.AllocationExecuting, models.AllocationFailed)
	} else {
		msg := cause.Error()
		if len(msg) > 512 {
			msg = msg[:512]
		}
		alloc.Status = models.AllocationFailed
		alloc.Error = msg
		err = s.Repo.SaveAllocation(ctx, alloc)
	}
	if err != nil {
		log.L.Error("mark allocation failed", zap.Uint64("allocation_id", id), zap.Error(err))
	}
}

func (r RecipientPreview) snapshot() models.AllocationItem {
	item := models.AllocationItem{
		Platform:          r.Platform,
		ActorID:           r.ActorID,
		ActorLogin:        r.ActorLogin,
		ContributionScore: r.Score.InexactFloat64(),
		Key:               r.Key,
		CalculatedPoints:  r.CalculatedPoints,
		AdjustedPoints:    r.AdjustedPoints,
		Overridden:        r.Overridden,
	}
	if r.Account != nil {
		id := r.Account.ID
		item.UserID = &id
	}
	return item
}
