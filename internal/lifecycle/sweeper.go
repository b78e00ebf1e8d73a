package lifecycle

import (
	"context"
	"os"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/sirupsen/logrus"
)

// Sweeper runs Sweep on a fixed interval as an ifrit.Runner
type Sweeper struct {
	machine  *Machine
	interval time.Duration
	clock    clock.Clock
	logger   logrus.FieldLogger
}

func NewSweeper(machine *Machine, interval time.Duration, clk clock.Clock, logger logrus.FieldLogger) *Sweeper {
	return &Sweeper{
		machine:  machine,
		interval: interval,
		clock:    clk,
		logger:   logger,
	}
}

func (s *Sweeper) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval.String()).Info("Auction sweeper started")
	close(ready)

	for {
		select {
		case <-ticker.C():
			if _, err := s.machine.Sweep(ctx); err != nil {
				s.logger.WithError(err).Error("Auction sweep failed")
			}
		case <-signals:
			s.logger.Info("Auction sweeper stopped")
			return nil
		}
	}
}
