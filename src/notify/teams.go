package notify

import (
	"context"
	"net/http"
)

// TeamsSink posts a MessageCard with facts and commit links to a
// Microsoft Teams incoming webhook.
type TeamsSink struct {
	Webhook string
	Client  *http.Client
}

type teamsCard struct {
	Type            string         `json:"@type"`
	Context         string         `json:"@context"`
	ThemeColor      string         `json:"themeColor"`
	Summary         string         `json:"summary"`
	Title           string         `json:"title"`
	Sections        []teamsSection `json:"sections"`
	PotentialAction []teamsAction  `json:"potentialAction,omitempty"`
}

type teamsSection struct {
	ActivityTitle string      `json:"activityTitle"`
	Facts         []teamsFact `json:"facts,omitempty"`
	Markdown      bool        `json:"markdown"`
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsAction struct {
	Type    string        `json:"@type"`
	Name    string        `json:"name"`
	Targets []teamsTarget `json:"targets"`
}

type teamsTarget struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

func (t *TeamsSink) Name() string { return "teams" }

func (t *TeamsSink) Send(ctx context.Context, msg Message) error {
	return postJSON(ctx, t.Client, t.Webhook, teamsMessageCard(msg))
}

func teamsMessageCard(msg Message) teamsCard {
	card := teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: phaseColor(msg.Phase),
		Summary:    msg.Title,
		Title:      msg.Title,
	}
	section := teamsSection{ActivityTitle: msg.Text, Markdown: true}
	for _, f := range msg.Facts {
		section.Facts = append(section.Facts, teamsFact{Name: f.Name, Value: f.Value})
	}
	card.Sections = []teamsSection{section}

	for _, l := range msg.Links {
		card.PotentialAction = append(card.PotentialAction, teamsAction{
			Type:    "OpenUri",
			Name:    l.Name,
			Targets: []teamsTarget{{OS: "default", URI: l.URL}},
		})
	}
	return card
}
