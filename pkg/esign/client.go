package esign

import (
	"Orbit/config"
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// Party 签署方信息
type Party struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Mobile string `json:"mobile,omitempty"`
	IDCard string `json:"id_card,omitempty"`
}

type Client struct {
	conf *config.EsignConfig
	http *http.Client
}

func NewClient(conf *config.EsignConfig) *Client {
	timeout := time.Duration(conf.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		conf: conf,
		http: &http.Client{Timeout: timeout},
	}
}

// SignWithdrawalContract 发起提现协议签署，签署结果通过回调通知，recordID 原样带回
func (c *Client) SignWithdrawalContract(ctx context.Context, recordID string, party Party) error {
	body, err := json.Marshal(map[string]any{
		"app_id":      c.conf.AppID,
		"template_id": c.conf.TemplateID,
		"record_id":   recordID,
		"signer":      party,
	})
	if err != nil {
		return err
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conf.Endpoint+"/v1/contracts", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-App-Id", c.conf.AppID)
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", Sign(c.conf.AppSecret, ts, body))

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("esign: unexpected status %d: %s", resp.StatusCode, raw)
	}
	if code := gjson.GetBytes(raw, "code").Int(); code != 0 {
		return fmt.Errorf("esign: code %d: %s", code, gjson.GetBytes(raw, "message").String())
	}
	return nil
}

// Sign 请求签名 hex(hmac-sha256(secret, ts + body))
func Sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook 校验回调携带的共享密钥，未配置密钥时一律拒绝
func (c *Client) VerifyWebhook(secret string) bool {
	if c.conf.WebhookSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(c.conf.WebhookSecret)) == 1
}
