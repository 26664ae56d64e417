package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/K2-bot/sender/internal/sender/data"
	"github.com/K2-bot/sender/pkg/logging"
)

type TicketsRepository interface {
	GetPendingTickets(ctx context.Context) ([]data.SupportTicket, error)
}

type TicketAnnouncer interface {
	Announce(ctx context.Context, ticket data.SupportTicket)
}

// SupportMonitor announces tickets created since the last pass. The
// creation-time watermark keeps a ticket from being announced twice while
// it sits Pending.
type SupportMonitor struct {
	repo      TicketsRepository
	announcer TicketAnnouncer
	logger    *logging.ZapLogger

	mux      sync.Mutex
	lastSeen time.Time
}

func NewSupportMonitor(repo TicketsRepository, announcer TicketAnnouncer, logger *logging.ZapLogger) *SupportMonitor {
	return &SupportMonitor{
		repo:      repo,
		announcer: announcer,
		logger:    logger,
		lastSeen:  time.Now().UTC(),
	}
}

func (m *SupportMonitor) Name() string { return "support" }

func (m *SupportMonitor) Tick(ctx context.Context) error {
	m.mux.Lock()
	defer m.mux.Unlock()

	tickets, err := m.repo.GetPendingTickets(ctx)
	if err != nil {
		return fmt.Errorf("failed to select pending tickets: %w", err)
	}
	for _, ticket := range tickets {
		if !ticket.CreatedAt.After(m.lastSeen) {
			continue
		}
		m.announcer.Announce(ctx, ticket)
		m.lastSeen = ticket.CreatedAt
	}
	return nil
}
