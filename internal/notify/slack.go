package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SlackNotifier posts notifications to a Slack incoming webhook.
// An empty webhook URL disables it entirely.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// SlackMessage is the webhook payload
type SlackMessage struct {
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment carries the formatted notification body. Text is
// Slack mrkdwn, so MrkdwnIn must name it.
type SlackAttachment struct {
	Color     string   `json:"color"`
	Title     string   `json:"title,omitempty"`
	TitleLink string   `json:"title_link,omitempty"`
	Text      string   `json:"text"`
	MrkdwnIn  []string `json:"mrkdwn_in,omitempty"`
	Footer    string   `json:"footer,omitempty"`
}

func (m *SlackMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SlackColor maps a notification type to Slack's sidebar color
func SlackColor(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "good"
	case NotifyWarning:
		return "warning"
	case NotifyError:
		return "danger"
	default:
		return "#439FE0"
	}
}

func (s *SlackNotifier) Send(n Notification) error {
	if s.webhookURL == "" {
		return nil // Disabled
	}

	att := SlackAttachment{
		Color:    SlackColor(n.Type),
		Text:     n.Message,
		MrkdwnIn: []string{"text"},
		Footer:   "ClaudeChain",
	}
	if n.Project != "" {
		att.Title = n.Project
		att.TitleLink = n.PRURL
	}

	payload, err := (&SlackMessage{Text: n.Title, Attachments: []SlackAttachment{att}}).ToJSON()
	if err != nil {
		return fmt.Errorf("encoding slack payload: %w", err)
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("slack returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
