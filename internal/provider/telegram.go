package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

// sendMessageRequest is the JSON body of the Bot API sendMessage call.
type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// botResponse maps the Bot API envelope.
type botResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// TelegramSender delivers messenger text through the Telegram Bot API.
// The API base URL is injected from config so tests can point to a local mock.
type TelegramSender struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewTelegramSender(baseURL, token string, timeout time.Duration) *TelegramSender {
	return &TelegramSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts sendMessage for chatID and expects {"ok": true}.
func (p *TelegramSender) Send(ctx context.Context, chatID string, c domain.Content) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  c.Text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", p.baseURL, p.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	var botResp botResponse
	if err := json.NewDecoder(resp.Body).Decode(&botResp); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !botResp.OK {
		return fmt.Errorf("telegram rejected message: status %d: %s", resp.StatusCode, botResp.Description)
	}
	return nil
}

// compile-time check that TelegramSender implements Sender
var _ Sender = (*TelegramSender)(nil)
