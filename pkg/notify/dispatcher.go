package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// Outbox is the dispatcher's view of the persisted intent queue.
type Outbox interface {
	ClaimPending(ctx context.Context, limit int) ([]*Notification, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, sendErr error, maxAttempts int) error
}

// Directory resolves a recipient user id to a delivery address.
type Directory interface {
	Email(ctx context.Context, userID string) (string, error)
}

// Dispatcher drains the notification outbox on a fixed interval and hands
// each intent to the send actor. Delivery failures return the intent to the
// queue until the attempt cap; they never propagate to the transitions that
// produced the intents.
type Dispatcher struct {
	outbox    Outbox
	directory Directory
	templates *Templates
	system    *actor.ActorSystem
	sendPID   *actor.PID
	logger    *zap.Logger

	interval    time.Duration
	batchSize   int
	maxAttempts int
	sendTimeout time.Duration
}

type DispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	SendTimeout  time.Duration
}

func NewDispatcher(outbox Outbox, directory Directory, templates *Templates,
	system *actor.ActorSystem, sendPID *actor.PID, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		outbox:      outbox,
		directory:   directory,
		templates:   templates,
		system:      system,
		sendPID:     sendPID,
		logger:      logger,
		interval:    cfg.PollInterval,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		sendTimeout: cfg.SendTimeout,
	}
}

// Run blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("notification dispatcher started",
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("notification dispatcher stopped")
			return
		case <-ticker.C:
			if err := d.drain(ctx); err != nil {
				d.logger.Error("dispatch cycle failed", zap.Error(err))
			}
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) error {
	batch, err := d.outbox.ClaimPending(ctx, d.batchSize)
	if err != nil {
		return err
	}

	for _, n := range batch {
		if err := d.deliver(ctx, n); err != nil {
			d.logger.Warn("notification delivery failed",
				zap.String("notification_id", n.ID),
				zap.String("template", n.Template),
				zap.Int("attempts", n.Attempts+1),
				zap.Error(err))
			if merr := d.outbox.MarkFailed(ctx, n.ID, err, d.maxAttempts); merr != nil {
				d.logger.Error("failed to settle notification", zap.String("notification_id", n.ID), zap.Error(merr))
			}
			continue
		}
		if err := d.outbox.MarkSent(ctx, n.ID); err != nil {
			d.logger.Error("failed to settle notification", zap.String("notification_id", n.ID), zap.Error(err))
		}
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, n *Notification) error {
	to := n.Email
	if to == "" {
		email, err := d.directory.Email(ctx, n.RecipientID)
		if err != nil {
			return fmt.Errorf("resolve recipient %s: %w", n.RecipientID, err)
		}
		to = email
	}

	subject, body, err := d.templates.Render(n.Template, n.Data)
	if err != nil {
		return err
	}

	future := d.system.Root.RequestFuture(d.sendPID, &SendEmail{
		To:      to,
		Subject: subject,
		Body:    body,
	}, d.sendTimeout)

	result, err := future.Result()
	if err != nil {
		return fmt.Errorf("send actor: %w", err)
	}
	if res, ok := result.(*SendResult); ok && res.Err != "" {
		return errors.New(res.Err)
	}
	return nil
}
