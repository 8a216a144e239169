package contribution

import (
	"Orbit/config"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Contribution 某个外部身份在时间窗口内的贡献度
type Contribution struct {
	Platform   string
	ActorID    string
	ActorLogin string
	Email      string
	Score      decimal.Decimal
}

type Client struct {
	endpoint string
	token    string
	http     *http.Client
}

func NewClient(conf *config.ContributionConfig) *Client {
	timeout := time.Duration(conf.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(conf.Endpoint, "/"),
		token:    conf.Token,
		http:     &http.Client{Timeout: timeout},
	}
}

// GetContributions 月份格式 2006-01，闭区间
func (c *Client) GetContributions(ctx context.Context, projectIDs []string, startMonth, endMonth string) ([]Contribution, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(map[string]any{
		"project_ids": projectIDs,
		"start_month": startMonth,
		"end_month":   endMonth,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/contributions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("contribution: unexpected status %d", resp.StatusCode)
	}
	return Parse(raw)
}

// Parse 解析 {"data":[{platform, actor_id, actor_login, email, score}]}，score 可以是数字或字符串
func Parse(raw []byte) ([]Contribution, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("contribution: invalid json response")
	}

	var (
		out      []Contribution
		parseErr error
	)
	gjson.GetBytes(raw, "data").ForEach(func(_, item gjson.Result) bool {
		score, err := decimal.NewFromString(rawString(item.Get("score")))
		if err != nil {
			parseErr = fmt.Errorf("contribution: score of %s: %w", item.Get("actor_login").String(), err)
			return false
		}
		out = append(out, Contribution{
			Platform:   item.Get("platform").String(),
			ActorID:    rawString(item.Get("actor_id")),
			ActorLogin: item.Get("actor_login").String(),
			Email:      strings.ToLower(strings.TrimSpace(item.Get("email").String())),
			Score:      score,
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

// rawString 数字保留原始文本，避免大整数 id 和小数精度丢失
func rawString(r gjson.Result) string {
	if r.Type == gjson.Number {
		return r.Raw
	}
	return r.String()
}
