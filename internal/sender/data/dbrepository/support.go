package dbrepository

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/K2-bot/sender/internal/sender/data"
)

//go:embed sql/select_pending_tickets.sql
var selectPendingTicketsQuery string

func (db *DBRepository) GetPendingTickets(ctx context.Context) ([]data.SupportTicket, error) {
	rows, err := db.storage.Query(ctx, selectPendingTicketsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending tickets: %w", err)
	}
	return collectRows(rows, scanTicket)
}

//go:embed sql/update_ticket_status.sql
var updateTicketStatusQuery string

func (db *DBRepository) SetTicketStatus(ctx context.Context, id int64, status data.SupportStatus) error {
	tag, err := db.storage.Exec(ctx, updateTicketStatusQuery, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update ticket status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return data.ErrTicketNotFound
	}
	return nil
}

//go:embed sql/update_ticket_answered.sql
var updateTicketAnsweredQuery string

func (db *DBRepository) SetTicketAnswered(ctx context.Context, id int64, reply string, repliedAt time.Time) error {
	tag, err := db.storage.Exec(ctx, updateTicketAnsweredQuery, id, string(data.SupportAnswered), reply, repliedAt)
	if err != nil {
		return fmt.Errorf("failed to update ticket reply: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return data.ErrTicketNotFound
	}
	return nil
}

func scanTicket(rows pgx.Rows) (data.SupportTicket, error) {
	var ticket data.SupportTicket
	var reply *string
	err := rows.Scan(
		&ticket.ID,
		&ticket.Email,
		&ticket.Subject,
		&ticket.OrderID,
		&ticket.Message,
		&ticket.Status,
		&reply,
		&ticket.RepliedAt,
		&ticket.CreatedAt,
	)
	if err != nil {
		return data.SupportTicket{}, fmt.Errorf("failed to scan support ticket: %w", err)
	}
	if reply != nil {
		ticket.ReplyText = *reply
	}
	return ticket, nil
}
