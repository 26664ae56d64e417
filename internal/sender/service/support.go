package service

import (
	"context"
	"fmt"
	"time"

	"github.com/K2-bot/sender/internal/sender/data"
	"github.com/K2-bot/sender/internal/sender/telegram"
	"github.com/K2-bot/sender/pkg/logging"
)

type SupportRepository interface {
	SetTicketStatus(ctx context.Context, id int64, status data.SupportStatus) error
	SetTicketAnswered(ctx context.Context, id int64, reply string, repliedAt time.Time) error
}

// Support announces new tickets and records operator replies.
type Support struct {
	repo     SupportRepository
	notifier Notifier
	chats    Chats
	logger   *logging.ZapLogger
}

func NewSupport(repo SupportRepository, notifier Notifier, chats Chats, logger *logging.ZapLogger) *Support {
	return &Support{repo: repo, notifier: notifier, chats: chats, logger: logger}
}

// Announce posts a new ticket to the news channel along with the commands
// an operator can reply with.
func (s *Support) Announce(ctx context.Context, ticket data.SupportTicket) {
	s.notifier.TrySend(ctx, s.chats.News, fmt.Sprintf(
		"🆕 <b>New Support Ticket</b>\n\n"+
			"🆔 ID = %d\n"+
			"📧 Email = %s\n"+
			"📌 Subject = %s\n"+
			"🛒 Order ID = %s\n\n"+
			"💬 %s\n\n"+
			"🛠 <b>Admin Commands:</b>\n"+
			"/Answer %d &lt;reply&gt;\n"+
			"/Close %d",
		ticket.ID,
		telegram.EscapeHTML(ticket.Email),
		telegram.EscapeHTML(ticket.Subject),
		telegram.EscapeHTML(ticket.OrderID),
		telegram.EscapeHTML(ticket.Message),
		ticket.ID, ticket.ID,
	), telegram.ModeHTML)
}

// Answer stores the operator's reply and marks the ticket answered.
func (s *Support) Answer(ctx context.Context, id int64, reply string) error {
	if err := s.repo.SetTicketAnswered(ctx, id, reply, time.Now().UTC()); err != nil {
		return err
	}
	s.notifier.TrySend(ctx, s.chats.News,
		fmt.Sprintf("✅ Ticket %d answered", id), telegram.ModePlain)
	return nil
}

// Close marks the ticket closed without a reply.
func (s *Support) Close(ctx context.Context, id int64) error {
	if err := s.repo.SetTicketStatus(ctx, id, data.SupportClosed); err != nil {
		return err
	}
	s.notifier.TrySend(ctx, s.chats.News,
		fmt.Sprintf("🔒 Ticket %d closed", id), telegram.ModePlain)
	return nil
}
