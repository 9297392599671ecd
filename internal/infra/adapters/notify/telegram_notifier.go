package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"agent-orchestrator/internal/config"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/adapter"
)

var _ adapter.OperatorNotifier = (*TelegramNotifier)(nil)

// TelegramNotifier pushes safety events to the operator chat. Messages are
// plain text; Markdown parse modes choke on underscores in repo names.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *zerolog.Logger
}

func NewTelegramNotifier(cfg *config.TelegramConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	if cfg == nil || cfg.Token == "" {
		return nil, errors.New("telegram: token required")
	}
	if cfg.OperatorChatID == 0 {
		return nil, errors.New("telegram: operator_chat_id required")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "telegram_notifier").Logger()
	return &TelegramNotifier{bot: bot, chatID: cfg.OperatorChatID, log: &l}, nil
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Warn().Err(err).Msg("operator notification failed")
		return err
	}
	return nil
}

func (n *TelegramNotifier) ApprovalRequested(ctx context.Context, job *model.Job, kind model.ActionKind) error {
	return n.send(ctx, fmt.Sprintf(
		"APPROVAL NEEDED\njob %s\n%s issue #%d: %s\naction: %s\nspent so far: $%.4f over %d iterations",
		job.ID, job.Repo, job.IssueNumber, job.Title, kind, job.CostUSD, job.Iterations))
}

func (n *TelegramNotifier) JobTerminal(ctx context.Context, job *model.Job) error {
	var b strings.Builder
	fmt.Fprintf(&b, "JOB %s\njob %s\n%s issue #%d: %s\ncost $%.4f, %d iterations",
		strings.ToUpper(string(job.Status)), job.ID, job.Repo, job.IssueNumber, job.Title, job.CostUSD, job.Iterations)
	if job.FailureReason != "" {
		fmt.Fprintf(&b, "\nreason: %s", job.FailureReason)
	}
	if job.PRURL != "" {
		fmt.Fprintf(&b, "\n%s", job.PRURL)
	}
	return n.send(ctx, b.String())
}

func (n *TelegramNotifier) IncidentRaised(ctx context.Context, incident *model.Incident) error {
	return n.send(ctx, fmt.Sprintf(
		"INCIDENT [%s]\ntype: %s\n%s",
		strings.ToUpper(string(incident.Severity)), incident.Type, incident.Details))
}
