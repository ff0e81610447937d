package notify

import (
	"os"

	"github.com/sofmeright/webfreight/src/config"
)

// Environment variables consulted for webhook settings.
const (
	EnvSlackWebhook = "SLACK_WEBHOOK_URL"
	EnvSlackChannel = "SLACK_CHANNEL"
	EnvTeamsWebhook = "TEAMS_WEBHOOK_URL"
)

// Settings selects the sinks of a notifier. Empty webhooks disable a sink.
type Settings struct {
	SlackWebhook string
	SlackChannel string
	TeamsWebhook string
}

// SettingsFromEnv reads webhook settings from the process environment.
// A nil getenv means os.Getenv.
func SettingsFromEnv(getenv func(string) string) Settings {
	if getenv == nil {
		getenv = os.Getenv
	}
	return Settings{
		SlackWebhook: getenv(EnvSlackWebhook),
		SlackChannel: getenv(EnvSlackChannel),
		TeamsWebhook: getenv(EnvTeamsWebhook),
	}
}

// Merge fills settings left empty from the resolved configuration.
// Values already set (from the environment) win.
func (s Settings) Merge(r config.Resolved) Settings {
	if s.SlackWebhook == "" {
		s.SlackWebhook = r.Slack.Webhook
	}
	if s.SlackChannel == "" {
		s.SlackChannel = r.Slack.Channel
	}
	if s.TeamsWebhook == "" {
		s.TeamsWebhook = r.TeamsWebhook
	}
	return s
}
