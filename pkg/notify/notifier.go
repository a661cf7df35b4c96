// Package notify delivers job results to users. The inbox write always
// happens; Slack is an additive channel selected per job.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/protagolabs/agentcore/pkg/config"
	"github.com/protagolabs/agentcore/pkg/models"
	"github.com/protagolabs/agentcore/pkg/repo"
)

// Notifier fans job results out to the configured channels.
type Notifier struct {
	inbox  *repo.InboxRepo
	slack  *slack.Client
	cfg    config.SlackConfig
	logger *slog.Logger
}

// New creates a Notifier. Slack stays nil when unconfigured.
func New(inbox *repo.InboxRepo, cfg config.SlackConfig) *Notifier {
	n := &Notifier{inbox: inbox, cfg: cfg, logger: slog.Default()}
	if cfg.Enabled() {
		n.slack = slack.New(cfg.Token)
	}
	return n
}

// JobResult is one finished job execution to announce.
type JobResult struct {
	Job     *models.Job
	EventID string
	Title   string
	Content string
}

// NotifyJobResult writes the inbox message and, when the job opted in and
// Slack is configured, posts to the channel. A Slack failure never fails the
// notification; the inbox copy is the durable record.
func (n *Notifier) NotifyJobResult(ctx context.Context, res JobResult) error {
	msg := &models.InboxMessage{
		UserID:      res.Job.UserID,
		Title:       res.Title,
		Content:     res.Content,
		MessageType: models.MessageTypeJobResult,
		SourceType:  models.SourceTypeJob,
		SourceID:    res.Job.JobID,
		EventID:     res.EventID,
	}
	if err := n.inbox.Deliver(ctx, msg); err != nil {
		return fmt.Errorf("deliver inbox message: %w", err)
	}

	if res.Job.NotificationMethod == models.NotificationMethodSlack {
		n.postSlack(ctx, res)
	}
	return nil
}

func (n *Notifier) postSlack(ctx context.Context, res JobResult) {
	if n.slack == nil {
		n.logger.Warn("Job requested slack notification but slack is not configured",
			"job_id", res.Job.JobID)
		return
	}
	text := fmt.Sprintf("*%s*\n%s", res.Title, res.Content)
	_, _, err := n.slack.PostMessageContext(ctx, n.cfg.Channel,
		slack.MsgOptionText(text, false))
	if err != nil {
		n.logger.Warn("Slack notification failed", "job_id", res.Job.JobID, "error", err)
		return
	}
	n.logger.Info("Posted job result to slack", "job_id", res.Job.JobID, "channel", n.cfg.Channel)
}
