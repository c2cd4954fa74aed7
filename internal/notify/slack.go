package notify

import (
	"fmt"

	"github.com/slack-go/slack"

	"github.com/clhorde/clhorde/internal/api"
)

// SlackNotifier posts a one-line completion/failure notice to a configured
// channel. The daemon's control plane is the Unix socket, not Slack, so
// only outbound client construction and PostMessage are used, never an
// inbound Socket-Mode bot.
type SlackNotifier struct {
	api     *slack.Client
	channel string
}

// NewSlackNotifier builds a notifier posting to channel with botToken.
func NewSlackNotifier(botToken, channel string) *SlackNotifier {
	return &SlackNotifier{api: slack.New(botToken), channel: channel}
}

// Notify posts a short completion or failure line for p.
func (n *SlackNotifier) Notify(p api.PromptInfo) error {
	_, _, err := n.api.PostMessage(n.channel, slack.MsgOptionText(summarize(p), false))
	if err != nil {
		return fmt.Errorf("posting slack message: %w", err)
	}
	return nil
}
