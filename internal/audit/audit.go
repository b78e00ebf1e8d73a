// Package audit appends security relevant actions to the audit log without blocking the caller.
package audit

import (
	"context"
	"sync"
	"time"

	"code.cloudfoundry.org/workpool"
	"github.com/sirupsen/logrus"
	"github.com/xtrntr/carauction/internal/models"
)

// Actions recorded in the audit log
const (
	ActionBidPlaced           = "BID_PLACED"
	ActionBuyNow              = "BUY_NOW"
	ActionAuctionCreated      = "AUCTION_CREATED"
	ActionAuctionUpdated      = "AUCTION_UPDATED"
	ActionAuctionStatusChange = "AUCTION_STATUS_CHANGED"
	ActionVehicleCreated      = "VEHICLE_CREATED"
	ActionVehicleDeleted      = "VEHICLE_DELETED"
	ActionLoginSuccess        = "LOGIN_SUCCESS"
	ActionLoginFailed         = "LOGIN_FAILED"
)

const writeTimeout = 5 * time.Second

// Store appends one audit record
type Store interface {
	AppendAudit(ctx context.Context, entry models.AuditEntry) error
}

// Recorder accepts audit entries
type Recorder interface {
	Record(ctx context.Context, entry models.AuditEntry)
}

// Sink writes entries on a bounded worker pool; a failed write is logged and dropped
type Sink struct {
	store  Store
	pool   *workpool.WorkPool
	logger logrus.FieldLogger
	wg     sync.WaitGroup
}

// NewSink creates a sink writing through pool. Wait must return before the pool is stopped.
func NewSink(store Store, pool *workpool.WorkPool, logger logrus.FieldLogger) *Sink {
	return &Sink{store: store, pool: pool, logger: logger}
}

// Record schedules entry for writing. It blocks only while every worker is busy and the queue is full.
func (s *Sink) Record(ctx context.Context, entry models.AuditEntry) {
	s.wg.Add(1)
	s.pool.Submit(func() {
		defer s.wg.Done()
		s.write(context.WithoutCancel(ctx), entry)
	})
}

func (s *Sink) write(ctx context.Context, entry models.AuditEntry) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := s.store.AppendAudit(ctx, entry); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action":    entry.Action,
			"user_id":   entry.UserID,
			"target_id": entry.TargetID,
		}).Error("Failed to write audit entry")
	}
}

// Wait blocks until every scheduled entry was written or dropped
func (s *Sink) Wait() {
	s.wg.Wait()
}

// Nop discards every entry
type Nop struct{}

func (Nop) Record(context.Context, models.AuditEntry) {}
