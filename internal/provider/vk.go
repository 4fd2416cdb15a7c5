package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

const vkAPIVersion = "5.131"

type vkResponse struct {
	Response json.RawMessage `json:"response"`
	Error    *struct {
		Code int    `json:"error_code"`
		Msg  string `json:"error_msg"`
	} `json:"error"`
}

// VKSender delivers messenger text through the VK community messages API.
type VKSender struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewVKSender(baseURL, token string, timeout time.Duration) *VKSender {
	return &VKSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send calls messages.send for userID. random_id is fresh per call; VK uses
// it to drop exact resubmissions of the same request.
func (p *VKSender) Send(ctx context.Context, userID string, c domain.Content) error {
	form := url.Values{
		"user_id":      {userID},
		"message":      {c.Text},
		"random_id":    {strconv.FormatInt(int64(rand.Int32()), 10)},
		"access_token": {p.token},
		"v":            {vkAPIVersion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/method/messages.send", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected vk status: %d", resp.StatusCode)
	}

	var vkResp vkResponse
	if err := json.NewDecoder(resp.Body).Decode(&vkResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if vkResp.Error != nil {
		return fmt.Errorf("vk error %d: %s", vkResp.Error.Code, vkResp.Error.Msg)
	}
	return nil
}

// compile-time check that VKSender implements Sender
var _ Sender = (*VKSender)(nil)
