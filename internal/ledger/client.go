package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"MeetSync/internal/model"

	"github.com/sirupsen/logrus"
)

// Client 积分账本 API 客户端
// 账本负责余额托管；本服务只读余额、投递变动指令
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// Config 账本客户端配置
type Config struct {
	BaseURL string
	APIKey  string
	Timeout int // 秒
	Proxy   string
}

// NewClient 创建账本客户端
func NewClient(cfg Config, logger *logrus.Logger) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if cfg.Proxy != "" {
		if proxyURL, err := url.Parse(cfg.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	timeout := 10 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger,
	}
}

type balanceResponse struct {
	Data struct {
		MemberID uint64 `json:"member_id"`
		Balance  int    `json:"balance"`
	} `json:"data"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// CheckBalance 查询成员当前积分余额
func (c *Client) CheckBalance(ctx context.Context, memberID uint64) (int, error) {
	reqURL := fmt.Sprintf("%s/v1/points/%d", c.baseURL, memberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("查询余额失败 member_id=%d: %w", memberID, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("查询余额失败 member_id=%d status=%d body=%s", memberID, resp.StatusCode, string(body))
	}
	var br balanceResponse
	if err := json.Unmarshal(body, &br); err != nil {
		return 0, fmt.Errorf("解析余额响应失败: %w", err)
	}
	return br.Data.Balance, nil
}

// applyRequest 积分变动请求体，idempotencyKey 即指令 UUID，账本侧据此去重
type applyRequest struct {
	IdempotencyKey string `json:"idempotencyKey"`
	MemberID       uint64 `json:"member_id"`
	ChangeType     string `json:"change_type"`
	Amount         int    `json:"amount"`
	Reason         string `json:"reason"`
	ReasonID       uint64 `json:"reason_id"`
}

// Apply 投递一条积分变动指令（重复投递同一 UUID 账本侧不会重复记账）
func (c *Client) Apply(ctx context.Context, intent *model.PointChangeIntent) error {
	payload := applyRequest{
		IdempotencyKey: intent.IntentUUID,
		MemberID:       intent.MemberID,
		ChangeType:     string(intent.ChangeType),
		Amount:         intent.Amount,
		Reason:         string(intent.Reason),
		ReasonID:       intent.ReasonID,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/points/apply", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("投递积分指令失败 uuid=%s: %w", intent.IntentUUID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("投递积分指令失败 uuid=%s status=%d body=%s", intent.IntentUUID, resp.StatusCode, string(body))
	}
	c.logger.WithFields(logrus.Fields{
		"intent_uuid": intent.IntentUUID,
		"member_id":   intent.MemberID,
		"reason":      intent.Reason,
	}).Info("积分指令投递成功")
	return nil
}
