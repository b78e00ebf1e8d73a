// Package notify persists user notifications and delivers them over the realtime channels
// and, for some notification types, by email.
package notify

import (
	"context"
	"fmt"
	"sync"

	"code.cloudfoundry.org/workpool"
	"github.com/sirupsen/logrus"
	"github.com/xtrntr/carauction/internal/models"
	"github.com/xtrntr/carauction/internal/realtime"
)

// Store is the persistence the notifier needs
type Store interface {
	CreateNotifications(ctx context.Context, notifications []models.Notification) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	ActiveUsers(ctx context.Context, role models.Role) ([]models.User, error)
}

// Notification types that are also mailed
var mailed = map[models.NotificationType]bool{
	models.NotificationOutbid:      true,
	models.NotificationAuctionWon:  true,
	models.NotificationAuctionLost: true,
}

// Push is the realtime payload of a notification
type Push struct {
	Type    models.NotificationType `json:"type"`
	Title   string                  `json:"title"`
	Message string                  `json:"message"`
	Data    map[string]any          `json:"data,omitempty"`
}

type Service struct {
	store     Store
	publisher realtime.Publisher
	mailer    Mailer
	pool      *workpool.WorkPool
	logger    logrus.FieldLogger
}

// New creates a notifier. A nil mailer disables email.
func New(store Store, publisher realtime.Publisher, mailer Mailer, pool *workpool.WorkPool, logger logrus.FieldLogger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		mailer:    mailer,
		pool:      pool,
		logger:    logger,
	}
}

// Notify persists one notification and pushes it to its recipient
func (s *Service) Notify(ctx context.Context, n models.Notification) error {
	return s.NotifyMany(ctx, []models.Notification{n})
}

// NotifyMany persists the batch in one write, then pushes each notification
// independently on the worker pool. A failed push or email is logged and does
// not affect the others; only the persistence error is returned.
func (s *Service) NotifyMany(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	if err := s.store.CreateNotifications(ctx, notifications); err != nil {
		return fmt.Errorf("notify.Service.NotifyMany: %w", err)
	}

	s.fanOut(len(notifications), func(i int) {
		s.deliver(ctx, notifications[i])
	})
	return nil
}

// Broadcast publishes a public event, logging a failure instead of returning it
func (s *Service) Broadcast(ctx context.Context, channel, event string, payload any) {
	if err := s.publisher.Publish(ctx, channel, event, payload); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"channel": channel,
			"event":   event,
		}).Warn("Failed to publish event")
	}
}

// Send publishes events on private channels concurrently, logging each failure
func (s *Service) Send(ctx context.Context, events []Event) {
	s.fanOut(len(events), func(i int) {
		e := events[i]
		s.Broadcast(ctx, e.Channel, e.Event, e.Payload)
	})
}

// Event is one publish request for Send
type Event struct {
	Channel string
	Event   string
	Payload any
}

// AnnounceAuction mails the new auction to every active buyer
func (s *Service) AnnounceAuction(ctx context.Context, auction models.Auction) error {
	if s.mailer == nil {
		return nil
	}

	buyers, err := s.store.ActiveUsers(ctx, models.RoleBuyer)
	if err != nil {
		return fmt.Errorf("notify.Service.AnnounceAuction: %w", err)
	}

	subject := fmt.Sprintf("New auction: %s", auction.VehicleName)
	body := fmt.Sprintf("Bidding on %s is open until %s.", auction.VehicleName, auction.EndTime.Format("2006-01-02 15:04 MST"))
	s.fanOut(len(buyers), func(i int) {
		if err := s.mailer.Send(ctx, buyers[i].Email, subject, body); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"auction_id": auction.ID,
				"user_id":    buyers[i].ID,
			}).Warn("Failed to send auction announcement")
		}
	})
	return nil
}

func (s *Service) deliver(ctx context.Context, n models.Notification) {
	logger := s.logger.WithFields(logrus.Fields{
		"user_id": n.UserID,
		"type":    n.Type,
	})

	push := Push{Type: n.Type, Title: n.Title, Message: n.Message, Data: n.Data}
	if err := s.publisher.Publish(ctx, realtime.UserChannel(n.UserID), realtime.EventNotification, push); err != nil {
		logger.WithError(err).Warn("Failed to push notification")
	}

	if s.mailer == nil || !mailed[n.Type] {
		return
	}
	user, err := s.store.GetUser(ctx, n.UserID)
	if err != nil {
		logger.WithError(err).Warn("Failed to load notification recipient")
		return
	}
	if err := s.mailer.Send(ctx, user.Email, n.Title, n.Message); err != nil {
		logger.WithError(err).Warn("Failed to mail notification")
	}
}

// fanOut runs work(0..n-1) on the pool and waits for every call to return
func (s *Service) fanOut(n int, work func(i int)) {
	wg := &sync.WaitGroup{}
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		s.pool.Submit(func() {
			defer wg.Done()
			work(i)
		})
	}
	wg.Wait()
}
