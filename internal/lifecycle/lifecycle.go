// Package lifecycle moves auctions between statuses. Every write is guarded by the
// status that was read, so racing operators and sweeps apply each transition once.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"code.cloudfoundry.org/clock"
	"github.com/sirupsen/logrus"
	"github.com/xtrntr/carauction/internal/audit"
	"github.com/xtrntr/carauction/internal/auctionerrors"
	"github.com/xtrntr/carauction/internal/models"
	"github.com/xtrntr/carauction/internal/realtime"
	"github.com/xtrntr/carauction/internal/store"
)

var transitions = map[models.AuctionStatus][]models.AuctionStatus{
	models.StatusDraft:     {models.StatusLive, models.StatusCancelled},
	models.StatusLive:      {models.StatusEnded, models.StatusCancelled},
	models.StatusEnded:     {models.StatusArchived},
	models.StatusCancelled: {models.StatusArchived},
}

// Allowed returns the statuses an auction in from may move to
func Allowed(from models.AuctionStatus) []models.AuctionStatus {
	return transitions[from]
}

// CanTransition reports whether from -> to is a regular transition
func CanTransition(from, to models.AuctionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Notifier delivers the side effects of a transition
type Notifier interface {
	NotifyMany(ctx context.Context, notifications []models.Notification) error
	Broadcast(ctx context.Context, channel, event string, payload any)
	AnnounceAuction(ctx context.Context, auction models.Auction) error
}

type Machine struct {
	store    store.Store
	notifier Notifier
	auditor  audit.Recorder
	clock    clock.Clock
	logger   logrus.FieldLogger
}

func NewMachine(st store.Store, notifier Notifier, auditor audit.Recorder, clk clock.Clock, logger logrus.FieldLogger) *Machine {
	return &Machine{
		store:    st,
		notifier: notifier,
		auditor:  auditor,
		clock:    clk,
		logger:   logger,
	}
}

func joinStatuses(statuses []models.AuctionStatus) string {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// ChangeStatus applies an administrator requested transition
func (m *Machine) ChangeStatus(ctx context.Context, caller models.Caller, auctionID string, target models.AuctionStatus) (*models.Auction, error) {
	if !caller.IsAdmin() {
		return nil, fmt.Errorf("%w: only administrators can change auction status", auctionerrors.ErrForbidden)
	}
	if !models.ValidAuctionStatus(target) {
		return nil, fmt.Errorf("%w: unknown status %q, expected one of %s",
			auctionerrors.ErrInvalidInput, target, joinStatuses(models.AllStatuses))
	}

	a, err := m.store.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle.Machine.ChangeStatus: %w", err)
	}
	if !CanTransition(a.Status, target) {
		allowed := joinStatuses(Allowed(a.Status))
		if allowed == "" {
			allowed = "none"
		}
		return nil, fmt.Errorf("%w: cannot move from %s to %s, allowed: %s",
			auctionerrors.ErrInvalidTransition, a.Status, target, allowed)
	}

	var updated *models.Auction
	switch target {
	case models.StatusEnded:
		updated, err = m.end(ctx, a.ID)
	case models.StatusLive:
		updated, err = m.start(ctx, a.ID)
	default:
		updated, err = m.store.TransitionAuction(ctx, a.ID, a.Status, store.StatusChange{To: target})
		if err == nil {
			m.notifier.Broadcast(ctx, realtime.AuctionChannel(a.ID), realtime.EventAuctionStatus,
				realtime.AuctionStatusChanged{AuctionID: a.ID, Status: target})
		}
	}
	if err != nil {
		return nil, fmt.Errorf("lifecycle.Machine.ChangeStatus: %w", err)
	}

	m.auditor.Record(ctx, models.AuditEntry{
		Action:   audit.ActionAuctionStatusChange,
		UserID:   caller.ID,
		TargetID: a.ID,
		Metadata: map[string]any{"from": a.Status, "to": target},
	})
	return updated, nil
}

// Restore brings an archived auction back to ENDED when it has a winner and to CANCELLED otherwise
func (m *Machine) Restore(ctx context.Context, caller models.Caller, auctionID string) (*models.Auction, error) {
	if !caller.IsAdmin() {
		return nil, fmt.Errorf("%w: only administrators can restore auctions", auctionerrors.ErrForbidden)
	}

	a, err := m.store.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle.Machine.Restore: %w", err)
	}
	if a.Status != models.StatusArchived {
		return nil, fmt.Errorf("%w: only %s auctions can be restored, auction is %s",
			auctionerrors.ErrInvalidTransition, models.StatusArchived, a.Status)
	}

	target := models.StatusCancelled
	if a.HasWinner() {
		target = models.StatusEnded
	}
	updated, err := m.store.TransitionAuction(ctx, a.ID, models.StatusArchived, store.StatusChange{To: target})
	if err != nil {
		return nil, fmt.Errorf("lifecycle.Machine.Restore: %w", err)
	}

	m.auditor.Record(ctx, models.AuditEntry{
		Action:   audit.ActionAuctionStatusChange,
		UserID:   caller.ID,
		TargetID: a.ID,
		Metadata: map[string]any{"from": models.StatusArchived, "to": target, "restore": true},
	})
	return updated, nil
}

// SweepResult counts the transitions one sweep applied
type SweepResult struct {
	Started int `json:"started"`
	Ended   int `json:"ended"`
}

// Sweep starts every DRAFT auction whose start time passed and ends every LIVE
// auction whose end time passed. An auction another process moved first is skipped.
func (m *Machine) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := m.clock.Now()

	drafts, err := m.store.AuctionsDue(ctx, models.StatusDraft, now)
	if err != nil {
		return res, fmt.Errorf("lifecycle.Machine.Sweep: %w", err)
	}
	for _, a := range drafts {
		if _, err := m.start(ctx, a.ID); err != nil {
			m.logSkipped(a.ID, models.StatusLive, err)
			continue
		}
		res.Started++
	}

	live, err := m.store.AuctionsDue(ctx, models.StatusLive, now)
	if err != nil {
		return res, fmt.Errorf("lifecycle.Machine.Sweep: %w", err)
	}
	for _, a := range live {
		if _, err := m.end(ctx, a.ID); err != nil {
			m.logSkipped(a.ID, models.StatusEnded, err)
			continue
		}
		res.Ended++
	}

	if res.Started > 0 || res.Ended > 0 {
		m.logger.WithFields(logrus.Fields{
			"started": res.Started,
			"ended":   res.Ended,
		}).Info("Auction sweep applied transitions")
	}
	return res, nil
}

func (m *Machine) logSkipped(auctionID string, target models.AuctionStatus, err error) {
	logger := m.logger.WithFields(logrus.Fields{"auction_id": auctionID, "target": target})
	if errors.Is(err, auctionerrors.ErrConflict) {
		logger.Debug("Auction already moved by another process")
		return
	}
	logger.WithError(err).Error("Failed to apply sweep transition")
}

// start moves a DRAFT auction to LIVE and announces it
func (m *Machine) start(ctx context.Context, auctionID string) (*models.Auction, error) {
	a, err := m.store.TransitionAuction(ctx, auctionID, models.StatusDraft, store.StatusChange{To: models.StatusLive})
	if err != nil {
		return nil, err
	}

	m.notifier.Broadcast(ctx, realtime.AuctionChannel(a.ID), realtime.EventAuctionStarted, realtime.AuctionStarted{
		AuctionID: a.ID,
		Status:    a.Status,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
	})
	if err := m.notifier.AnnounceAuction(ctx, *a); err != nil {
		m.logger.WithError(err).WithField("auction_id", a.ID).Warn("Failed to announce auction")
	}
	return a, nil
}
