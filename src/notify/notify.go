// Package notify reports deploy lifecycle events to chat webhooks.
//
// Notifications are a side channel: every sink is optional, sinks run
// independently of each other, and a failing sink is logged and otherwise
// ignored so it can never mask the error of the deploy itself.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sofmeright/webfreight/src/config"
	"github.com/sofmeright/webfreight/src/forge"
	"github.com/sofmeright/webfreight/src/logging"
)

// Phase is a deploy lifecycle stage.
type Phase string

const (
	PhaseDecrypting Phase = "decrypting"
	PhaseBuilding   Phase = "building"
	PhaseUploading  Phase = "uploading"
	PhaseSuccess    Phase = "success"
	PhaseError      Phase = "error"
)

// DefaultTimeout bounds each sink's delivery.
const DefaultTimeout = 10 * time.Second

// Event is a single lifecycle notification.
type Event struct {
	Phase  Phase
	Detail string
	Err    error
}

// Fact is a name/value pair shown on rich cards.
type Fact struct {
	Name  string
	Value string
}

// Link is a titled URL.
type Link struct {
	Name string
	URL  string
}

// Message is the sink-independent rendering of an event.
type Message struct {
	Phase Phase
	Title string
	Text  string
	Facts []Fact
	Links []Link
}

// Sink delivers messages to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Notifier fans events out to its sinks.
type Notifier struct {
	Sinks   []Sink
	Timeout time.Duration
	Logger  *zap.Logger
}

// New builds a notifier with a sink per configured webhook.
func New(s Settings, logger *zap.Logger) *Notifier {
	n := &Notifier{Timeout: DefaultTimeout, Logger: logger}
	if s.SlackWebhook != "" {
		n.Sinks = append(n.Sinks, &SlackSink{Webhook: s.SlackWebhook, Channel: s.SlackChannel})
	}
	if s.TeamsWebhook != "" {
		n.Sinks = append(n.Sinks, &TeamsSink{Webhook: s.TeamsWebhook})
	}
	return n
}

// Notify sends ev to every sink concurrently and waits for all of them.
// It never fails; delivery errors are logged. Sinks still run when ctx is
// already cancelled so the final error report of an aborted run goes out.
func (n *Notifier) Notify(ctx context.Context, dc config.DeployContext, ev Event) {
	if n == nil {
		return
	}
	log := logging.OrNop(n.Logger)
	msg := Render(dc, ev)
	log.Debug("notify", zap.String("phase", string(ev.Phase)), zap.Int("sinks", len(n.Sinks)))

	timeout := n.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, s := range n.Sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(base, timeout)
			defer cancel()
			if err := s.Send(sctx, msg); err != nil {
				log.Warn("notification failed",
					zap.String("sink", s.Name()),
					zap.String("phase", string(ev.Phase)),
					zap.Error(err))
			}
		}(s)
	}
	wg.Wait()
}

// Render builds the message for ev, tagged with the deploy identity.
func Render(dc config.DeployContext, ev Event) Message {
	id := dc.Identity
	label := id.Label()
	if label == "" {
		label = "deploy"
	}
	env := dc.Env()

	title := label
	if env != "" {
		title = fmt.Sprintf("%s → %s", label, env)
	}

	var text strings.Builder
	text.WriteString(phaseVerb(ev.Phase))
	if ev.Detail != "" {
		fmt.Fprintf(&text, ": %s", ev.Detail)
	}
	if ev.Err != nil {
		fmt.Fprintf(&text, "\n%v", ev.Err)
	}

	msg := Message{Phase: ev.Phase, Title: title, Text: text.String()}
	addFact := func(name, value string) {
		if value != "" {
			msg.Facts = append(msg.Facts, Fact{Name: name, Value: value})
		}
	}
	addFact("Environment", env)
	addFact("Package", label)
	addFact("Commit", id.ShortCommit())
	addFact("Repository", id.RepoURL)
	addFact("Actor", id.Actor)

	if u := forge.CommitURL(id.RepoURL, id.Commit); u != "" {
		msg.Links = append(msg.Links, Link{Name: "Source commit", URL: u})
	}
	if remote, commit := dc.ConfigCommit(); commit != "" {
		if len(commit) > 7 {
			addFact("Config", commit[:7])
		} else {
			addFact("Config", commit)
		}
		if u := forge.CommitURL(remote, commit); u != "" {
			msg.Links = append(msg.Links, Link{Name: "Config commit", URL: u})
		}
	}
	return msg
}

func phaseVerb(p Phase) string {
	switch p {
	case PhaseDecrypting:
		return "Decrypting secrets"
	case PhaseBuilding:
		return "Building"
	case PhaseUploading:
		return "Uploading"
	case PhaseSuccess:
		return "Deployed"
	case PhaseError:
		return "Deploy failed"
	default:
		return string(p)
	}
}

func phaseIcon(p Phase) string {
	switch p {
	case PhaseSuccess:
		return ":white_check_mark:"
	case PhaseError:
		return ":x:"
	default:
		return ":hourglass_flowing_sand:"
	}
}

// phaseColor is the card accent color for p.
func phaseColor(p Phase) string {
	switch p {
	case PhaseSuccess:
		return "2EB67D"
	case PhaseError:
		return "E01E5A"
	default:
		return "36C5F0"
	}
}
