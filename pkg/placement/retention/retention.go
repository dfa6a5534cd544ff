// Package retention purges the stored attachments of deleted messages.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/mikepea/placement/pkg/placement/files"
	"github.com/mikepea/placement/pkg/placement/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultCron runs the purge daily at 03:00 UTC
const DefaultCron = "0 3 * * *"

// Purger is a background worker that removes files of messages deleted
// more than maxAge ago. The message rows stay.
type Purger struct {
	db      *gorm.DB
	store   *files.Store
	log     *zap.Logger
	cron    string
	maxAge  time.Duration
	onPurge func(n int)
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewPurger validates the cron expression and builds a worker.
// An empty expression means DefaultCron.
func NewPurger(db *gorm.DB, store *files.Store, logger *zap.Logger, cronExpr string, maxAge time.Duration) (*Purger, error) {
	if cronExpr == "" {
		cronExpr = DefaultCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", cronExpr)
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention age must be positive, got %s", maxAge)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Purger{
		db:     db,
		store:  store,
		log:    logger,
		cron:   cronExpr,
		maxAge: maxAge,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}, nil
}

// OnPurge registers a callback receiving the number of files removed per run
func (p *Purger) OnPurge(fn func(n int)) {
	p.onPurge = fn
}

// Start begins the scheduling loop.
func (p *Purger) Start() {
	p.wg.Add(1)
	go p.run()
	p.log.Info("retention worker started",
		zap.String("cron", p.cron),
		zap.Duration("max_age", p.maxAge))
}

// Stop signals the worker to stop and waits for it to finish.
func (p *Purger) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	p.log.Info("retention worker stopped")
}

func (p *Purger) run() {
	defer p.wg.Done()

	for {
		next, err := gronx.NextTickAfter(p.cron, p.now().UTC(), false)
		if err != nil {
			p.log.Error("retention next tick failed", zap.String("cron", p.cron), zap.Error(err))
			next = p.now().Add(30 * time.Second)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-p.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		if _, err := p.RunOnce(ctx); err != nil {
			p.log.Error("retention run failed", zap.Error(err))
		}
		cancel()
	}
}

// RunOnce purges eligible attachments and reports how many were removed
func (p *Purger) RunOnce(ctx context.Context) (int, error) {
	cutoff := p.now().Add(-p.maxAge)

	var expired []models.Message
	if err := p.db.WithContext(ctx).
		Where("is_deleted = ? AND removed_at < ? AND stored_name <> ''", true, cutoff).
		Find(&expired).Error; err != nil {
		return 0, fmt.Errorf("find expired attachments: %w", err)
	}

	purged := 0
	for _, m := range expired {
		if err := p.store.Remove(m.StoredName); err != nil {
			p.log.Warn("failed to remove attachment",
				zap.Uint("message_id", m.ID),
				zap.String("stored_name", m.StoredName),
				zap.Error(err))
			continue
		}
		if err := p.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", m.ID).Updates(map[string]interface{}{
			"stored_name": "",
			"file_url":    "",
			"file_name":   "",
			"file_type":   "",
			"file_size":   0,
		}).Error; err != nil {
			return purged, fmt.Errorf("clear attachment of message %d: %w", m.ID, err)
		}
		purged++
	}

	if purged > 0 {
		p.log.Info("purged deleted attachments", zap.Int("count", purged))
	}
	if p.onPurge != nil {
		p.onPurge(purged)
	}
	return purged, nil
}
