// Package notify posts conversation summaries to Microsoft Teams incoming
// webhooks.
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
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/HyphaGroup/codexd/internal/metrics"
)

// MaxContentChars keeps the card under the Teams payload limit
const MaxContentChars = 24000

const (
	footer       = "Sent from codexd"
	maxErrorBody = 4096
)

var (
	ErrEmptyWebhook = errors.New("webhook URL is empty")
	ErrRateLimited  = errors.New("notification rate limit exceeded")
)

// Teams sends Adaptive Card messages
type Teams struct {
	client     *http.Client
	limiter    *rate.Limiter
	defaultURL string
}

// NewTeams creates a sender allowing perMinute messages (burst of one
// minute's worth). defaultURL is used when Send gets an empty URL.
func NewTeams(defaultURL string, perMinute float64) *Teams {
	var limiter *rate.Limiter
	if perMinute > 0 {
		burst := int(perMinute)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(perMinute/60), burst)
	}
	return &Teams{
		client:     &http.Client{Timeout: 15 * time.Second},
		limiter:    limiter,
		defaultURL: defaultURL,
	}
}

// SendResult reports the webhook response
type SendResult struct {
	Status    int  `json:"status"`
	Truncated bool `json:"truncated"`
}

// Send posts title and content as an Adaptive Card. A non-2xx response is
// an error carrying the response body.
func (t *Teams) Send(ctx context.Context, webhookURL, title, content string) (*SendResult, error) {
	if strings.TrimSpace(webhookURL) == "" {
		webhookURL = t.defaultURL
	}
	if strings.TrimSpace(webhookURL) == "" {
		metrics.RecordNotification("invalid")
		return nil, ErrEmptyWebhook
	}
	if t.limiter != nil && !t.limiter.Allow() {
		metrics.RecordNotification("rate_limited")
		return nil, ErrRateLimited
	}

	body, truncated := truncate(content)
	payload, err := json.Marshal(card(title, body))
	if err != nil {
		return nil, fmt.Errorf("failed to encode card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		metrics.RecordNotification("invalid")
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		metrics.RecordNotification("error")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordNotification("error")
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	metrics.RecordNotification("sent")
	return &SendResult{Status: resp.StatusCode, Truncated: truncated}, nil
}

// truncate cuts content to MaxContentChars characters and notes the
// original length.
func truncate(content string) (string, bool) {
	n := utf8.RuneCountInString(content)
	if n <= MaxContentChars {
		return content, false
	}
	runes := []rune(content)
	return fmt.Sprintf("%s...\n\n(truncated, original length: %d chars)", string(runes[:MaxContentChars]), n), true
}

type textBlock struct {
	Type                string `json:"type"`
	Text                string `json:"text"`
	Wrap                bool   `json:"wrap,omitempty"`
	Weight              string `json:"weight,omitempty"`
	Size                string `json:"size,omitempty"`
	FontType            string `json:"fontType,omitempty"`
	IsSubtle            bool   `json:"isSubtle,omitempty"`
	HorizontalAlignment string `json:"horizontalAlignment,omitempty"`
}

type adaptiveCard struct {
	Schema  string      `json:"$schema"`
	Type    string      `json:"type"`
	Version string      `json:"version"`
	Body    []textBlock `json:"body"`
}

type attachment struct {
	ContentType string       `json:"contentType"`
	ContentURL  *string      `json:"contentUrl"`
	Content     adaptiveCard `json:"content"`
}

type message struct {
	Type        string       `json:"type"`
	Attachments []attachment `json:"attachments"`
}

func card(title, body string) message {
	return message{
		Type: "message",
		Attachments: []attachment{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: adaptiveCard{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.4",
				Body: []textBlock{
					{Type: "TextBlock", Text: title, Weight: "Bolder", Size: "Medium", Wrap: true},
					{Type: "TextBlock", Text: body, Wrap: true, FontType: "Default"},
					{Type: "TextBlock", Text: footer, IsSubtle: true, Size: "Small", HorizontalAlignment: "Right"},
				},
			},
		}},
	}
}
