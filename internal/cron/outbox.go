package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"panelhub/internal/apperr"
	"panelhub/internal/audit"
	"panelhub/internal/models"
)

const (
	outboxBaseDelay = 30 * time.Second
	outboxMaxDelay  = time.Hour
)

// backoff doubles the delay per attempt, capped at outboxMaxDelay.
func backoff(attempt int) time.Duration {
	d := outboxBaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= outboxMaxDelay {
			return outboxMaxDelay
		}
	}
	return d
}

func (s *Scheduler) processOutbox() {
	defer s.recoverFromPanic("processOutbox")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	s.runOutbox(ctx)
}

// runOutbox claims due panel_admin_create jobs and executes them. It returns
// the number of jobs handled.
func (s *Scheduler) runOutbox(ctx context.Context) int {
	now := s.now()
	jobs, err := s.repos.Outbox.ClaimDue(models.OutboxKindPanelAdminCreate, s.cfg.Outbox.Batch, now)
	if err != nil {
		s.logger.Error("Failed to claim outbox jobs", zap.Error(err))
	}

	for _, job := range jobs {
		err := s.createPanelAdmin(ctx, &job)
		switch {
		case err == nil, apperr.Is(err, apperr.Conflict):
			if err != nil {
				s.logger.Info("Panel admin already exists", zap.Uint("job_id", job.ID), zap.Uint("panel_id", job.PanelID))
			}
			if err := s.repos.Outbox.MarkDone(job.ID); err != nil {
				s.logger.Error("Failed to finalize outbox job", zap.Uint("job_id", job.ID), zap.Error(err))
			}
		case job.Attempts >= job.MaxAttempts || apperr.Is(err, apperr.InvalidInput):
			s.logger.Error("Outbox job failed permanently", zap.Uint("job_id", job.ID), zap.Int("attempts", job.Attempts), zap.Error(err))
			_ = s.repos.Outbox.MarkFailed(job.ID, trimErr(err.Error()))
			s.audit.Record(audit.Event{
				Action: "outbox.failed",
				Target: fmt.Sprintf("outbox:%d", job.ID),
				Meta:   map[string]interface{}{"kind": job.Kind, "panel_id": job.PanelID, "error": trimErr(err.Error())},
			})
		default:
			next := now.Add(backoff(job.Attempts))
			s.logger.Warn("Outbox job will be retried",
				zap.Uint("job_id", job.ID),
				zap.Int("attempts", job.Attempts),
				zap.Time("next_attempt_at", next),
				zap.Error(err),
			)
			_ = s.repos.Outbox.MarkRetry(job.ID, trimErr(err.Error()), next)
		}
	}
	return len(jobs)
}

// createPanelAdmin logs in with the panel's own credentials and creates the
// operator's non-sudo admin account.
func (s *Scheduler) createPanelAdmin(ctx context.Context, job *models.OutboxJob) error {
	var payload models.PanelAdminPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "invalid payload", err)
	}
	p, err := s.repos.Panel.FindByID(job.PanelID)
	if err != nil {
		return fmt.Errorf("load panel: %w", err)
	}
	sess, err := s.client.Open(ctx, p, p.Username, p.Password)
	if err != nil {
		return err
	}
	if err := sess.CreateAdmin(ctx, payload.Username, payload.Password); err != nil {
		return err
	}
	s.logger.Info("Panel admin created", zap.Uint("job_id", job.ID), zap.Uint("panel_id", p.ID), zap.String("username", payload.Username))
	return nil
}
