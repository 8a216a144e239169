package service

import (
	"Orbit/models"
	"Orbit/pkg/contribution"
	"Orbit/pkg/labels"
	"context"
	"errors"
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvaluator struct {
	projects map[string]labels.Set
	users    map[string]labels.Set
	err      error
}

func (f *fakeEvaluator) EvaluateProjectTags(ctx context.Context, slugs []string, op models.SetOp) (labels.Set, error) {
	return f.eval(f.projects, slugs, op)
}

func (f *fakeEvaluator) EvaluateUserTags(ctx context.Context, slugs []string, op models.SetOp) (labels.Set, error) {
	return f.eval(f.users, slugs, op)
}

func (f *fakeEvaluator) eval(src map[string]labels.Set, slugs []string, op models.SetOp) (labels.Set, error) {
	if f.err != nil {
		return nil, f.err
	}
	sets := make([]labels.Set, 0, len(slugs))
	for _, s := range slugs {
		sets = append(sets, src[s])
	}
	return labels.Combine(op, sets...), nil
}

type fakeContributions struct {
	items []contribution.Contribution
	err   error
	asked []string
}

func (f *fakeContributions) GetContributions(ctx context.Context, projectIDs []string, startMonth, endMonth string) ([]contribution.Contribution, error) {
	f.asked = projectIDs
	return f.items, f.err
}

func score(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type allocationFixture struct {
	repo      *fakeRepo
	ledger    *PointService
	labels    *fakeEvaluator
	contribs  *fakeContributions
	svc       *AllocationService
	initiator uint64
	sourceID  uint64
}

func newAllocationFixture(t *testing.T) *allocationFixture {
	t.Helper()
	repo := newFakeRepo()
	ledger, _ := newTestLedger(repo)
	evaluator := &fakeEvaluator{
		projects: map[string]labels.Set{"oss": {"p1": {}, "p2": {}}},
		users:    map[string]labels.Set{},
	}
	contribs := &fakeContributions{}
	svc := NewAllocationService(repo, ledger, evaluator, contribs)
	svc.now = tickClock()

	admin := repo.addUser(&models.Users{Username: "admin"})
	src, err := ledger.Grant(context.Background(), GrantInput{
		Owner:  models.UserOwner(admin.ID),
		Amount: 100000,
		Tags:   []string{"Contribution Reward"},
	})
	require.NoError(t, err)

	return &allocationFixture{
		repo:      repo,
		ledger:    ledger,
		labels:    evaluator,
		contribs:  contribs,
		svc:       svc,
		initiator: admin.ID,
		sourceID:  src.ID,
	}
}

func (f *allocationFixture) create(t *testing.T, in CreateAllocationInput) *models.PointAllocation {
	t.Helper()
	in.InitiatorID = f.initiator
	in.SourceID = f.sourceID
	if in.ProjectScope.Empty() {
		in.ProjectScope = models.TagScope{Slugs: []string{"oss"}, Op: models.SetOr}
	}
	if in.StartMonth == "" {
		in.StartMonth, in.EndMonth = "2025-01", "2025-03"
	}
	alloc, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	return alloc
}

func TestPreview_ScalesDownToBudget(t *testing.T) {
	ctx := context.Background()
	f := newAllocationFixture(t)
	f.contribs.items = []contribution.Contribution{
		{Platform: "github", ActorID: "1", ActorLogin: "a", Score: score("5")},
		{Platform: "github", ActorID: "2", ActorLogin: "b", Score: score("5")},
		{Platform: "github", ActorID: "3", ActorLogin: "c", Score: score("3.3333333334")},
	}
	alloc := f.create(t, CreateAllocationInput{TotalAmount: 1000})

	items, err := f.svc.Preview(ctx, alloc)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.ElementsMatch(t, []string{"p1", "p2"}, f.contribs.asked)

	var sum int64
	for _, it := range items {
		sum += it.AdjustedPoints
		assert.Equal(t, it.CalculatedPoints/4, it.AdjustedPoints)
	}
	assert.Equal(t, []int64{1500, 1500, 1000}, []int64{items[0].CalculatedPoints, items[1].CalculatedPoints, items[2].CalculatedPoints})
	assert.Equal(t, []int64{375, 375, 250}, []int64{items[0].AdjustedPoints, items[1].AdjustedPoints, items[2].AdjustedPoints})
	assert.LessOrEqual(t, sum, int64(1000))
}

func TestPreview_RatioAndOverrides(t *testing.T) {
	ctx := context.Background()
	f := newAllocationFixture(t)
	bob := f.repo.addUser(&models.Users{
		Username: "bob",
		Bindings: []models.UserBinding{{Platform: "github", ExternalID: "42"}},
	})
	f.contribs.items = []contribution.Contribution{
		{Platform: "github", ActorID: "42", ActorLogin: "bobby", Score: score("1.01")},
		{Platform: "github", ActorID: "43", ActorLogin: "carol", Score: score("2")},
		{Platform: "github", ActorID: "44", ActorLogin: "dave", Score: score("1")},
	}
	ratio := decimal.RequireFromString("0.5")
	alloc := f.create(t, CreateAllocationInput{
		TotalAmount:     100000,
		AdjustmentRatio: &ratio,
		Overrides: map[string]int64{
			strconv.FormatUint(bob.ID, 10): 7,
			"dave":                         0,
		},
	})

	items, err := f.svc.Preview(ctx, alloc)
	require.NoError(t, err)
	require.Len(t, items, 3)

	byLogin := map[string]RecipientPreview{}
	for _, it := range items {
		byLogin[it.ActorLogin] = it
	}

	b := byLogin["bobby"]
	require.NotNil(t, b.Account)
	assert.Equal(t, bob.ID, b.Account.ID)
	assert.Equal(t, int64(303), b.CalculatedPoints)
	assert.Equal(t, int64(7), b.AdjustedPoints)
	assert.True(t, b.Overridden)

	c := byLogin["carol"]
	assert.Nil(t, c.Account)
	assert.Equal(t, "carol", c.Key)
	assert.Equal(t, int64(600), c.CalculatedPoints)
	assert.Equal(t, int64(300), c.AdjustedPoints)

	d := byLogin["dave"]
	assert.Equal(t, int64(0), d.AdjustedPoints)
	assert.True(t, d.Overridden)
}

func TestPreview_OverridesAreScaledToo(t *testing.T) {
	ctx := context.Background()
	f := newAllocationFixture(t)
	f.contribs.items = []contribution.Contribution{
		{Platform: "github", ActorID: "1", ActorLogin: "a", Score: score("1")},
		{Platform: "github", ActorID: "2", ActorLogin: "b", Score: score("1")},
	}
	alloc := f.create(t, CreateAllocationInput{TotalAmount: 300, Overrides: map[string]int64{"b": 900}})

	items, err := f.svc.Preview(ctx, alloc)
	require.NoError(t, err)
	require.Len(t, items, 2)
	// 300 + 900 = 1200 > 300
	assert.Equal(t, int64(75), items[0].AdjustedPoints)
	assert.Equal(t, int64(225), items[1].AdjustedPoints)
}

func TestPreview_EmptyCases(t *testing.T) {
	ctx := context.Background()

	t.Run("no projects", func(t *testing.T) {
		f := newAllocationFixture(t)
		f.contribs.items = []contribution.Contribution{{Platform: "github", ActorID: "1", Score: score("1")}}
		alloc := f.create(t, CreateAllocationInput{TotalAmount: 100, ProjectScope: models.TagScope{Slugs: []string{"nothing"}}})
		items, err := f.svc.Preview(ctx, alloc)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("upstream failure", func(t *testing.T) {
		f := newAllocationFixture(t)
		f.contribs.err = errors.New("timeout")
		alloc := f.create(t, CreateAllocationInput{TotalAmount: 100})
		items, err := f.svc.Preview(ctx, alloc)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("zero contribution", func(t *testing.T) {
		f := newAllocationFixture(t)
		f.contribs.items = []contribution.Contribution{{Platform: "github", ActorID: "1", Score: decimal.Zero}}
		alloc := f.create(t, CreateAllocationInput{TotalAmount: 100})
		items, err := f.svc.Preview(ctx, alloc)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("evaluator failure", func(t *testing.T) {
		f := newAllocationFixture(t)
		alloc := f.create(t, CreateAllocationInput{TotalAmount: 100})
		f.labels.err = errors.New("label store down")
		_, err := f.svc.Preview(ctx, alloc)
		assert.Error(t, err)
	})
}

func TestPreview_UserScopeFilter(t *testing.T) {
	ctx := context.Background()
	f := newAllocationFixture(t)
	f.labels.users = map[string]labels.Set{
		"core":    {"a": {}, "99": {}},
		"retired": {"a": {}},
	}
	f.contribs.items = []contribution.Contribution{
		{Platform: "github", ActorID: "1", ActorLogin: "a", Score: score("1")},
		{Platform: "github", ActorID: "99", ActorLogin: "b", Score: score("1")},
		{Platform: "github", ActorID: "3", ActorLogin: "c", Score: score("1")},
	}
	alloc := f.create(t, CreateAllocationInput{
		TotalAmount: 1000,
		UserScope:   models.TagScope{Slugs: []string{"core", "retired"}, Op: models.SetNot},
	})

	items, err := f.svc.Preview(ctx, alloc)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ActorLogin)
}

func TestExecute_GrantsAndPendingRecords(t *testing.T) {
	ctx := context.Background()
	f := newAllocationFixture(t)
	bob := f.repo.addUser(&models.Users{
		Username: "bob",
		Bindings: []models.UserBinding{{Platform: "github", ExternalID: "42"}},
	})
	f.contribs.items = []contribution.Contribution{
		{Platform: "github", ActorID: "42", ActorLogin: "bob-gh", Score: score("1")},
		{Platform: "github", ActorID: "43", ActorLogin: "carol", Email: "carol@example.com", Score: score("2")},
		{Platform: "github", ActorID: "44", ActorLogin: "tiny", Score: score("0.001")},
	}
	alloc := f.create(t, CreateAllocationInput{TotalAmount: 100000})

	done, err := f.svc.Execute(ctx, alloc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AllocationCompleted, done.Status)
	assert.Equal(t, 1, done.SuccessCount)
	assert.Equal(t, 1, done.PendingCount)
	assert.Equal(t, 0, done.FailedCount)
	assert.Equal(t, int64(900), done.TotalPoints)
	assert.NotNil(t, done.ExecutedAt)

	snapshot := done.Snapshot.Data()
	require.Len(t, snapshot, 3)
	assert.Equal(t, 1.0, snapshot[0].ContributionScore)
	require.NotNil(t, snapshot[0].UserID)
	assert.Equal(t, bob.ID, *snapshot[0].UserID)

	b, err := f.ledger.Balance(ctx, models.UserOwner(bob.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(300), b.Total)
	sources, err := f.repo.ListActiveSources(ctx, models.UserOwner(bob.ID), f.ledger.now())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, []string{"contribution-reward"}, sources[0].TagSlugs())
	assert.Contains(t, sources[0].Description, "2025-01 ~ 2025-03")

	grants, err := f.repo.FindUnclaimedGrants(ctx, MatchFor(&models.Users{Username: "carol"}))
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, int64(600), grants[0].Amount)
	assert.Equal(t, "carol@example.com", grants[0].Email)
	assert.Equal(t, []string{"contribution-reward"}, grants[0].Tags.Data())

	// 源积分桶只提供标签，不扣减
	assert.Equal(t, int64(100000), f.repo.source(f.sourceID).RemainingAmount)

	_, err = f.svc.Execute(ctx, alloc.ID)
	assert.ErrorIs(t, err, ErrAllocationState)
}

func TestExecute_CountsItemFailures(t *testing.T) {
	ctx := context.Background()
	f := newAllocationFixture(t)
	bob := f.repo.addUser(&models.Users{Username: "bob"})
	f.repo.st.failSourcesFor[bob.ID] = true
	f.contribs.items = []contribution.Contribution{
		{Platform: "github", ActorID: "42", ActorLogin: "bob", Score: score("1")},
		{Platform: "github", ActorID: "43", ActorLogin: "carol", Score: score("1")},
	}
	alloc := f.create(t, CreateAllocationInput{TotalAmount: 100000})

	done, err := f.svc.Execute(ctx, alloc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AllocationCompleted, done.Status)
	assert.Equal(t, 1, done.FailedCount)
	assert.Equal(t, 1, done.PendingCount)
	assert.Equal(t, int64(300), done.TotalPoints)
}

func TestExecute_MarksFailedOnOrchestrationError(t *testing.T) {
	ctx := context.Background()
	f := newAllocationFixture(t)
	alloc := f.create(t, CreateAllocationInput{TotalAmount: 100})
	f.labels.err = errors.New("label store down")

	_, err := f.svc.Execute(ctx, alloc.ID)
	require.Error(t, err)

	stored, err := f.repo.FindAllocation(ctx, alloc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AllocationFailed, stored.Status)
	assert.Contains(t, stored.Error, "label store down")
}

func TestCreateAllocation_Validation(t *testing.T) {
	ctx := context.Background()
	f := newAllocationFixture(t)
	other := f.repo.addUser(&models.Users{Username: "other"})
	negative := decimal.RequireFromString("-0.1")
	scope := models.TagScope{Slugs: []string{"oss"}}

	cases := map[string]CreateAllocationInput{
		"zero total":     {TotalAmount: 0, ProjectScope: scope, StartMonth: "2025-01", EndMonth: "2025-02"},
		"no projects":    {TotalAmount: 10, StartMonth: "2025-01", EndMonth: "2025-02"},
		"bad op":         {TotalAmount: 10, ProjectScope: models.TagScope{Slugs: []string{"oss"}, Op: "NAND"}, StartMonth: "2025-01", EndMonth: "2025-02"},
		"months swapped": {TotalAmount: 10, ProjectScope: scope, StartMonth: "2025-03", EndMonth: "2025-02"},
		"bad month":      {TotalAmount: 10, ProjectScope: scope, StartMonth: "2025/01", EndMonth: "2025-02"},
		"negative ratio": {TotalAmount: 10, ProjectScope: scope, StartMonth: "2025-01", EndMonth: "2025-02", AdjustmentRatio: &negative},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			in.InitiatorID = f.initiator
			in.SourceID = f.sourceID
			_, err := f.svc.Create(ctx, in)
			assert.ErrorIs(t, err, ErrInvalidOperation)
		})
	}

	_, err := f.svc.Create(ctx, CreateAllocationInput{
		InitiatorID: other.ID, SourceID: f.sourceID, TotalAmount: 10,
		ProjectScope: scope, StartMonth: "2025-01", EndMonth: "2025-02",
	})
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestScaleToBudget_NeverExceedsTotal(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for round := 0; round < 500; round++ {
		n := rnd.Intn(20) + 1
		items := make([]RecipientPreview, n)
		var sum int64
		before := make([]int64, n)
		for i := range items {
			before[i] = rnd.Int63n(5000)
			items[i].adjusted = decimal.NewFromInt(before[i])
			sum += before[i]
		}
		budget := rnd.Int63n(20000) + 1

		ScaleToBudget(items, budget)

		var after int64
		for i := range items {
			after += items[i].AdjustedPoints
			require.LessOrEqual(t, items[i].AdjustedPoints, before[i])
		}
		if sum > budget {
			require.LessOrEqual(t, after, budget)
		} else {
			require.Equal(t, sum, after)
		}
	}
}

func TestPreview_HugeOverrideStillScaled(t *testing.T) {
	ctx := context.Background()
	f := newAllocationFixture(t)
	f.contribs.items = []contribution.Contribution{
		{Platform: "github", ActorID: "1", ActorLogin: "a", Score: score("1")},
		{Platform: "github", ActorID: "2", ActorLogin: "b", Score: score("1")},
	}
	alloc := f.create(t, CreateAllocationInput{TotalAmount: 1000, Overrides: map[string]int64{"a": math.MaxInt64}})

	items, err := f.svc.Preview(ctx, alloc)
	require.NoError(t, err)
	require.Len(t, items, 2)

	var sum int64
	for _, it := range items {
		assert.GreaterOrEqual(t, it.AdjustedPoints, int64(0))
		sum += it.AdjustedPoints
	}
	assert.LessOrEqual(t, sum, int64(1000))
	assert.Equal(t, int64(999), items[0].AdjustedPoints)
	assert.Equal(t, int64(0), items[1].AdjustedPoints)
}

func TestPreview_HugeScoreGetsLargestShare(t *testing.T) {
	ctx := context.Background()
	f := newAllocationFixture(t)
	f.contribs.items = []contribution.Contribution{
		{Platform: "github", ActorID: "1", ActorLogin: "a", Score: score("1e17")},
		{Platform: "github", ActorID: "2", ActorLogin: "b", Score: score("1")},
	}
	alloc := f.create(t, CreateAllocationInput{TotalAmount: 1000})

	items, err := f.svc.Preview(ctx, alloc)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, int64(math.MaxInt64), items[0].CalculatedPoints)
	assert.Equal(t, int64(999), items[0].AdjustedPoints)
	assert.Equal(t, int64(0), items[1].AdjustedPoints)
}

func TestPreview_IdentitiesOfSameAccountMerged(t *testing.T) {
	ctx := context.Background()
	f := newAllocationFixture(t)
	bob := f.repo.addUser(&models.Users{
		Username: "bob",
		Bindings: []models.UserBinding{{Platform: "github", ExternalID: "42"}},
	})
	f.contribs.items = []contribution.Contribution{
		{Platform: "github", ActorID: "42", ActorLogin: "bob-gh", Score: score("1")},
		{Platform: "gitee", ActorID: "7", ActorLogin: "bob", Score: score("1")},
		{Platform: "github", ActorID: "43", ActorLogin: "carol", Score: score("1")},
	}
	alloc := f.create(t, CreateAllocationInput{TotalAmount: 100000})

	items, err := f.svc.Preview(ctx, alloc)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.NotNil(t, items[0].Account)
	assert.Equal(t, bob.ID, items[0].Account.ID)
	assert.Equal(t, int64(600), items[0].AdjustedPoints)

	overridden := f.create(t, CreateAllocationInput{
		TotalAmount: 100000,
		Overrides:   map[string]int64{strconv.FormatUint(bob.ID, 10): 500},
	})
	done, err := f.svc.Execute(ctx, overridden.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, done.SuccessCount)
	assert.Equal(t, 1, done.PendingCount)

	b, err := f.ledger.Balance(ctx, models.UserOwner(bob.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(500), b.Total)
}

func TestCreateAllocation_OrganizationFunded(t *testing.T) {
	ctx := context.Background()
	f := newAllocationFixture(t)
	org := models.OrganizationOwner(5)
	src, err := f.ledger.Grant(ctx, GrantInput{Owner: org, Amount: 5000})
	require.NoError(t, err)

	in := CreateAllocationInput{
		InitiatorID:  f.initiator,
		SourceID:     src.ID,
		TotalAmount:  1000,
		ProjectScope: models.TagScope{Slugs: []string{"oss"}},
		StartMonth:   "2025-01",
		EndMonth:     "2025-02",
	}
	_, err = f.svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidOperation)

	in.FundingOwner = &models.Owner{Kind: "team", ID: 5}
	_, err = f.svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidOperation)

	in.FundingOwner = &org
	alloc, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, src.ID, alloc.SourceID)
}
