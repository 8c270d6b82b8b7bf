package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/wabox/wabox/internal/bus"
	"github.com/wabox/wabox/internal/store"
	"go.uber.org/zap"
)

// TextSender is the interface for sending text messages via WhatsApp.
type TextSender interface {
	SendText(ctx context.Context, jid string, text string) (serverMsgID string, err error)
}

// Sender drains the broadcast job queue, resolves each job's recipient
// selector, and fans the message text out to every resolved destination.
type Sender struct {
	db       *store.DB
	sender   TextSender
	builtins GroupList
	defaults []string
	bus      *bus.Bus
	logger   *zap.Logger
	cancel   context.CancelFunc
}

// NewSender creates a broadcast sender. builtins and defaults come from the
// session configuration.
func NewSender(db *store.DB, sender TextSender, builtins GroupList, defaults []string, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		db:       db,
		sender:   sender,
		builtins: builtins,
		defaults: defaults,
		bus:      b,
		logger:   logger,
	}
}

// Start begins polling the queue for pending broadcast jobs.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingBroadcasts()
	if err != nil {
		s.logger.Error("failed to read broadcast queue", zap.Error(err))
		return
	}

	for _, job := range pending {
		if err := s.db.MarkBroadcastSending(job.ClientID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_id", job.ClientID))
			continue
		}

		recipients, err := s.recipients(job.Selector)
		if err != nil {
			s.fail(job, err)
			continue
		}
		if len(recipients) == 0 {
			s.fail(job, fmt.Errorf("no recipients resolved"))
			continue
		}

		var firstErr error
		sent := 0
		for _, jid := range recipients {
			if _, err := s.sender.SendText(ctx, jid, job.Body); err != nil {
				s.logger.Error("broadcast send failed", zap.Error(err),
					zap.String("client_id", job.ClientID), zap.String("jid", jid))
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			sent++
		}
		if firstErr != nil {
			s.fail(job, fmt.Errorf("sent %d/%d: %w", sent, len(recipients), firstErr))
			continue
		}

		if err := s.db.MarkBroadcastSent(job.ClientID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_id", job.ClientID))
		}
		s.logger.Info("broadcast sent", zap.String("client_id", job.ClientID), zap.Int("recipients", sent))
		s.bus.Publish(bus.Event{
			Kind:      bus.KindBroadcastSent,
			Timestamp: time.Now(),
			Payload: map[string]string{
				"client_id":  job.ClientID,
				"recipients": fmt.Sprint(sent),
			},
		})
	}
}

// recipients resolves a job's stored selector against the current group
// list and configured defaults.
func (s *Sender) recipients(rawSelector string) ([]string, error) {
	sel, err := ParseSelector([]byte(rawSelector))
	if err != nil {
		return nil, err
	}
	groups, err := LoadGroups(s.db, s.builtins)
	if err != nil {
		return nil, err
	}
	return Resolve(groups, s.defaults, sel)
}

func (s *Sender) fail(job store.BroadcastJob, cause error) {
	s.logger.Error("broadcast failed", zap.Error(cause), zap.String("client_id", job.ClientID))
	if err := s.db.MarkBroadcastFailed(job.ClientID, cause.Error()); err != nil {
		s.logger.Error("failed to mark failed", zap.Error(err), zap.String("client_id", job.ClientID))
	}
	s.bus.Publish(bus.Event{
		Kind:      bus.KindBroadcastFailed,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"client_id": job.ClientID,
			"error":     cause.Error(),
		},
	})
}
