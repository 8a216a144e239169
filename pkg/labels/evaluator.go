package labels

import (
	"Orbit/config"
	"Orbit/models"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/tidwall/gjson"
)

type Set map[string]struct{}

func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s Set) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// Evaluator 标签集合求值，每个 slug 单独拉取成员后在本地做集合运算
type Evaluator struct {
	endpoint string
	http     *http.Client
}

func NewEvaluator(conf *config.LabelsConfig) *Evaluator {
	timeout := time.Duration(conf.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Evaluator{
		endpoint: strings.TrimRight(conf.Endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
	}
}

func (e *Evaluator) EvaluateProjectTags(ctx context.Context, slugs []string, op models.SetOp) (Set, error) {
	return e.evaluate(ctx, "projects", slugs, op)
}

func (e *Evaluator) EvaluateUserTags(ctx context.Context, slugs []string, op models.SetOp) (Set, error) {
	return e.evaluate(ctx, "users", slugs, op)
}

func (e *Evaluator) evaluate(ctx context.Context, kind string, slugs []string, op models.SetOp) (Set, error) {
	slugs = uniqueSlugs(slugs)
	if len(slugs) == 0 {
		return Set{}, nil
	}

	sets := make([]Set, len(slugs))
	p := pool.New().WithMaxGoroutines(8).WithContext(ctx).WithCancelOnError()
	for i, slug := range slugs {
		p.Go(func(ctx context.Context) error {
			set, err := e.members(ctx, kind, slug)
			if err != nil {
				return fmt.Errorf("labels: fetch %s %q: %w", kind, slug, err)
			}
			sets[i] = set
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return Combine(op, sets...), nil
}

// members 拉取单个标签下的实体 id，标签不存在视为空集
func (e *Evaluator) members(ctx context.Context, kind, slug string) (Set, error) {
	u := fmt.Sprintf("%s/v1/labels/%s/%s/members", e.endpoint, kind, url.PathEscape(slug))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Set{}, nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	set := Set{}
	gjson.GetBytes(raw, "data.ids").ForEach(func(_, v gjson.Result) bool {
		id := v.String()
		if v.Type == gjson.Number {
			id = v.Raw
		}
		if id != "" {
			set[id] = struct{}{}
		}
		return true
	})
	return set, nil
}

// Combine 集合运算。NOT 为第一个集合减去其余集合的并集，XOR 为恰好出现在奇数个集合中的元素
func Combine(op models.SetOp, sets ...Set) Set {
	out := Set{}
	if len(sets) == 0 {
		return out
	}

	switch op {
	case models.SetAnd:
		for id := range sets[0] {
			in := true
			for _, s := range sets[1:] {
				if !s.Has(id) {
					in = false
					break
				}
			}
			if in {
				out[id] = struct{}{}
			}
		}
	case models.SetNot:
		for id := range sets[0] {
			excluded := false
			for _, s := range sets[1:] {
				if s.Has(id) {
					excluded = true
					break
				}
			}
			if !excluded {
				out[id] = struct{}{}
			}
		}
	case models.SetXor:
		counts := make(map[string]int)
		for _, s := range sets {
			for id := range s {
				counts[id]++
			}
		}
		for id, n := range counts {
			if n%2 == 1 {
				out[id] = struct{}{}
			}
		}
	default:
		for _, s := range sets {
			for id := range s {
				out[id] = struct{}{}
			}
		}
	}
	return out
}

func uniqueSlugs(slugs []string) []string {
	seen := make(map[string]struct{}, len(slugs))
	out := make([]string, 0, len(slugs))
	for _, s := range slugs {
		s = models.Slugify(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
