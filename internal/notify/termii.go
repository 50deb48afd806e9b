package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultTermiiEndpoint = "https://v3.api.termii.com/api/sms/send"

var (
	ErrInvalidPhoneNumber = errors.New("notify: invalid Nigerian phone number format")
	ErrSMSNotConfigured   = errors.New("notify: termii api key is not configured")
)

type TermiiConfig struct {
	APIKey   string `koanf:"api_key"`
	Endpoint string `koanf:"endpoint"`
	Sender   string `koanf:"sender"`
}

// TermiiClient sends plain SMS through the Termii HTTP API.
type TermiiClient struct {
	cfg  TermiiConfig
	http *http.Client
	log  *zap.Logger
}

func NewTermiiClient(cfg TermiiConfig, log *zap.Logger) *TermiiClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultTermiiEndpoint
	}
	if cfg.Sender == "" {
		cfg.Sender = "ICSC"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TermiiClient{cfg: cfg, http: &http.Client{Timeout: 15 * time.Second}, log: log}
}

type termiiRequest struct {
	APIKey  string `json:"api_key"`
	To      string `json:"to"`
	SMS     string `json:"sms"`
	From    string `json:"from"`
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

func (c *TermiiClient) Send(ctx context.Context, phone, message string) error {
	if c.cfg.APIKey == "" {
		return ErrSMSNotConfigured
	}
	to, err := NormalizePhoneNumber(phone)
	if err != nil {
		return err
	}
	body, err := json.Marshal(termiiRequest{
		APIKey:  c.cfg.APIKey,
		To:      to,
		SMS:     message,
		From:    c.cfg.Sender,
		Type:    "plain",
		Channel: "generic",
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send sms: provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	c.log.Debug("sms sent", zap.String("to", to))
	return nil
}

// NormalizePhoneNumber converts local (0...) and bare international (234...)
// Nigerian numbers to +234 form.
func NormalizePhoneNumber(phone string) (string, error) {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case strings.HasPrefix(d, "0") && len(d) > 1:
		return "+234" + d[1:], nil
	case strings.HasPrefix(d, "234") && len(d) > 3:
		return "+" + d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, phone)
}
