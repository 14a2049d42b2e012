// Package notify delivers chat messages to employees. Delivery is a
// black-box collaborator: callers fire and forget, and the only guarantee
// is a logged error on failure.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultAPIURL = "https://api.telegram.org"

// Telegram sends messages through the Telegram Bot API.
type Telegram struct {
	token  string
	apiURL string
	client *http.Client
}

// NewTelegram constructs a notifier for the given bot token. apiURL
// overrides the Bot API base, used by tests.
func NewTelegram(token, apiURL string) *Telegram {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Telegram{
		token:  token,
		apiURL: apiURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewTaskAssigned tells an employee a task was assigned to them. Top
// priority assignments get the urgent template.
func (t *Telegram) NewTaskAssigned(ctx context.Context, userID int64, taskName string, topPriority bool) error {
	text := fmt.Sprintf("You have been assigned a new task: «%s»", taskName)
	if topPriority {
		text = fmt.Sprintf("❗️You have been assigned a new top-priority task: «%s»", taskName)
	}
	return t.send(ctx, userID, text)
}

// RegistrationRequest forwards an unregistered user's request to the owner.
func (t *Telegram) RegistrationRequest(ctx context.Context, ownerID int64, name string, userID int64) error {
	text := fmt.Sprintf("❗️ Registration request ❗️\n\nName: %s\nUserID:\n`%d`\n\nPlease add this user to the system.", name, userID)
	return t.send(ctx, ownerID, text)
}

func (t *Telegram) send(ctx context.Context, chatID int64, text string) error {
	payload, err := json.Marshal(map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send message: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Nop discards every notification. Used when no bot token is configured
// and in tests.
type Nop struct{}

func (Nop) NewTaskAssigned(context.Context, int64, string, bool) error { return nil }

func (Nop) RegistrationRequest(context.Context, int64, string, int64) error { return nil }
