package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const defaultTelegramAPIBase = "https://api.telegram.org"

// Telegram 通过 Bot API sendMessage 推送 HTML 消息，是主通道。
type Telegram struct {
	token   string
	apiBase string
	client  *http.Client
}

var (
	_ Sender           = (*Telegram)(nil)
	_ FallbackProvider = (*Telegram)(nil)
)

func NewTelegram(botToken, apiBase string, timeout time.Duration) *Telegram {
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		apiBase = defaultTelegramAPIBase
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Telegram{
		token:   strings.TrimSpace(botToken),
		apiBase: apiBase,
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *Telegram) endpoint() string {
	return fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
}

type inlineKeyboard struct {
	InlineKeyboard Keyboard `json:"inline_keyboard"`
}

// Send 以 JSON 调用 sendMessage，响应 ok=false 视为失败。
func (t *Telegram) Send(ctx context.Context, chatID, text string, kb Keyboard) error {
	if t.token == "" || chatID == "" {
		return fmt.Errorf("telegram config incomplete")
	}
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	if len(kb) > 0 {
		payload["reply_markup"] = inlineKeyboard{InlineKeyboard: kb}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := postJSON(ctx, t.client, t.endpoint(), body)
	if err != nil {
		return err
	}
	if !gjson.GetBytes(resp, "ok").Bool() {
		desc := gjson.GetBytes(resp, "description").String()
		if desc == "" {
			desc = "ok=false"
		}
		return fmt.Errorf("telegram sendMessage: %s", desc)
	}
	return nil
}

// Fallback 返回原始 HTTP 通道，令牌由主通道重新推导。
func (t *Telegram) Fallback() Sender {
	if t.token == "" {
		return nil
	}
	return &rawTelegram{
		endpoint: t.endpoint(),
		client:   &http.Client{Timeout: t.client.Timeout},
	}
}

// rawTelegram 直接 POST sendMessage；reply_markup 以 JSON 字符串发送。
type rawTelegram struct {
	endpoint string
	client   *http.Client
}

func (r *rawTelegram) Send(ctx context.Context, chatID, text string, kb Keyboard) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if len(kb) > 0 {
		markup, err := json.Marshal(inlineKeyboard{InlineKeyboard: kb})
		if err != nil {
			return err
		}
		payload["reply_markup"] = string(markup)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = postJSON(ctx, r.client, r.endpoint, body)
	return err
}

func postJSON(ctx context.Context, client *http.Client, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return data, fmt.Errorf("telegram status=%d", resp.StatusCode)
	}
	return data, nil
}
