package cron

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"panelhub/internal/audit"
	"panelhub/internal/config"
	"panelhub/internal/panel"
	"panelhub/internal/repository"
)

var panelReachable = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "panelhub_panel_reachable",
	Help: "1 when the panel login endpoint answered the last sweep.",
}, []string{"panel"})

// staleAfter is how long a job may stay running before it is requeued.
const staleAfter = 10 * time.Minute

// Scheduler manages all cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	cfg    *config.Config
	logger *zap.Logger
	repos  *CronRepos
	client *panel.Client
	audit  *audit.Recorder
	now    func() time.Time
}

// CronRepos bundles repositories needed by cron jobs.
type CronRepos struct {
	Panel  *repository.PanelRepository
	Outbox *repository.OutboxRepository
	Audit  *repository.AuditRepository
}

// New creates a new cron scheduler.
func New(cfg *config.Config, repos *CronRepos, client *panel.Client, rec *audit.Recorder, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		cfg:    cfg,
		logger: logger,
		repos:  repos,
		client: client,
		audit:  rec,
		now:    time.Now,
	}
}

// Start registers and starts all cron jobs.
func (s *Scheduler) Start() error {
	s.logger.Info("Starting cron scheduler...")

	jobs := []struct {
		spec string
		name string
		fn   func()
	}{
		{"*/30 * * * * *", "outbox worker", s.processOutbox},
		{"0 */5 * * * *", "requeue stale outbox jobs", s.requeueStale},
		{"0 */5 * * * *", "panel reachability", s.panelReachability},
		{"0 0 3 * * *", "audit retention", s.auditRetention},
	}
	for _, j := range jobs {
		j := j
		if _, err := s.cron.AddFunc(j.spec, func() {
			s.logger.Debug("Running: " + j.name)
			j.fn()
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("Cron scheduler started")
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) requeueStale() {
	defer s.recoverFromPanic("requeueStale")

	n, err := s.repos.Outbox.RequeueStale(s.now().Add(-staleAfter))
	if err != nil {
		s.logger.Error("Failed to requeue stale outbox jobs", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Warn("Requeued stale outbox jobs", zap.Int64("count", n))
	}
}

func (s *Scheduler) panelReachability() {
	defer s.recoverFromPanic("panelReachability")

	panels, err := s.repos.Panel.All()
	if err != nil {
		s.logger.Error("Failed to load panels", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	for _, p := range panels {
		if s.client.Reachable(ctx, p.BaseURL) {
			panelReachable.WithLabelValues(p.Name).Set(1)
			continue
		}
		panelReachable.WithLabelValues(p.Name).Set(0)
		s.logger.Warn("Panel unreachable", zap.Uint("panel_id", p.ID), zap.String("panel", p.Name))
	}
}

func (s *Scheduler) auditRetention() {
	defer s.recoverFromPanic("auditRetention")

	days := s.cfg.Audit.RetentionDays
	if days <= 0 {
		return
	}
	n, err := s.repos.Audit.DeleteBefore(s.now().AddDate(0, 0, -days))
	if err != nil {
		s.logger.Error("Failed to prune audit log", zap.Error(err))
		return
	}
	s.logger.Info("Pruned audit log", zap.Int64("rows", n), zap.Int("retention_days", days))
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}

func trimErr(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) > 900 {
		msg = msg[:900]
	}
	return msg
}
