package slack

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/m-mizutani/drover/pkg/domain/interfaces"
	"github.com/m-mizutani/drover/pkg/domain/model"
)

// Notifier posts scan failures to a Slack incoming webhook
type Notifier struct {
	webhookURL string
}

// New creates a Notifier for the given webhook URL
func New(webhookURL string) *Notifier {
	return &Notifier{webhookURL: webhookURL}
}

// NotifyScanFailure implements interfaces.Notifier
func (n *Notifier) NotifyScanFailure(ctx context.Context, result *model.ScanResult) error {
	var lines []string
	lines = append(lines, fmt.Sprintf(":warning: scan of container `%s` failed, job set left untouched", result.ContainerID))
	for _, se := range result.SourceErrors {
		lines = append(lines, fmt.Sprintf("• source `%s`: %s", se.SourceID, se.Message))
	}

	msg := &slack.WebhookMessage{Text: strings.Join(lines, "\n")}
	return slack.PostWebhookContext(ctx, n.webhookURL, msg)
}

var _ interfaces.Notifier = (*Notifier)(nil)
