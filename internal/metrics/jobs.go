package metrics

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SupplySource is anything that can report total balance per guild.
type SupplySource interface {
	SupplyByGuild(ctx context.Context) (map[string]int64, error)
}

// SnapshotSupply refreshes the guild supply gauge once.
func SnapshotSupply(ctx context.Context, src SupplySource) error {
	supply, err := src.SupplyByGuild(ctx)
	if err != nil {
		return err
	}
	SetGuildSupply(supply)
	return nil
}

// Scheduler runs the periodic background jobs.
type Scheduler struct {
	cron *cron.Cron
	log  *logrus.Logger
}

func NewScheduler(log *logrus.Logger) *Scheduler {
	return &Scheduler{cron: cron.New(), log: log}
}

// AddSupplySnapshot registers the supply snapshot job on spec
// (e.g. "@every 1m").
func (s *Scheduler) AddSupplySnapshot(spec string, src SupplySource, timeout time.Duration) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := SnapshotSupply(ctx, src); err != nil {
			s.log.WithError(err).Warn("supply snapshot failed")
		}
	})
	return err
}

// AddFunc registers an arbitrary job.
func (s *Scheduler) AddFunc(spec string, name string, fn func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.log.WithField("job", name).Debug("running job")
		fn()
	})
	return err
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
