package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/segyhp/loan-servicing/internal/domain"
)

const defaultGatewayTimeout = 10 * time.Second

// GatewaySender posts WhatsApp or SMS messages to an HTTP messaging gateway.
type GatewaySender struct {
	channel domain.Channel
	url     string
	token   string
	client  *http.Client
}

type gatewayRequest struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Message string `json:"message"`
}

type gatewayResponse struct {
	Success   *bool  `json:"success"`
	MessageID string `json:"message_id"`
	ID        string `json:"id"`
	Error     string `json:"error"`
}

func NewGatewaySender(channel domain.Channel, url, token string, timeout time.Duration) *GatewaySender {
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &GatewaySender{
		channel: channel,
		url:     url,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *GatewaySender) Send(ctx context.Context, to, message string) (domain.SendReceipt, error) {
	payload, err := json.Marshal(gatewayRequest{Channel: string(g.channel), To: to, Message: message})
	if err != nil {
		return domain.SendReceipt{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return domain.SendReceipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return domain.SendReceipt{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return domain.SendReceipt{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.SendReceipt{}, fmt.Errorf("%s gateway returned %d: %s", g.channel, resp.StatusCode, bytes.TrimSpace(body))
	}

	var parsed gatewayResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			return domain.SendReceipt{}, fmt.Errorf("%s gateway response: %w", g.channel, err)
		}
	}

	receipt := domain.SendReceipt{Success: true, MessageID: parsed.MessageID}
	if receipt.MessageID == "" {
		receipt.MessageID = parsed.ID
	}
	if parsed.Success != nil && !*parsed.Success {
		receipt.Success = false
		if parsed.Error != "" {
			return receipt, fmt.Errorf("%s gateway rejected message: %s", g.channel, parsed.Error)
		}
	}
	return receipt, nil
}
