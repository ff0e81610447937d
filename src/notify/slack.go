package notify

import (
	"context"
	"net/http"
	"strings"
)

// SlackSink posts a plain text message to a Slack incoming webhook.
type SlackSink struct {
	Webhook  string
	Channel  string // optional override of the webhook's default channel
	Username string // defaults to "webfreight"
	Client   *http.Client
}

type slackPayload struct {
	Channel   string `json:"channel,omitempty"`
	Username  string `json:"username,omitempty"`
	IconEmoji string `json:"icon_emoji,omitempty"`
	Text      string `json:"text"`
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Send(ctx context.Context, msg Message) error {
	username := s.Username
	if username == "" {
		username = "webfreight"
	}
	return postJSON(ctx, s.Client, s.Webhook, slackPayload{
		Channel:   s.Channel,
		Username:  username,
		IconEmoji: ":package:",
		Text:      slackText(msg),
	})
}

// slackText renders ":icon: *title* text (commit, actor)" with links in Slack
// mrkdwn form.
func slackText(msg Message) string {
	var b strings.Builder
	b.WriteString(phaseIcon(msg.Phase) + " *" + msg.Title + "* ")
	b.WriteString(msg.Text)

	var meta []string
	for _, f := range msg.Facts {
		switch f.Name {
		case "Commit", "Actor":
			meta = append(meta, f.Value)
		}
	}
	if len(meta) > 0 {
		b.WriteString(" (" + strings.Join(meta, ", ") + ")")
	}
	for _, l := range msg.Links {
		b.WriteString("\n<" + l.URL + "|" + l.Name + ">")
	}
	return b.String()
}
