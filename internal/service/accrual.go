package service

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bankoperations/bank-service/internal/config"
	"github.com/bankoperations/bank-service/internal/repository"
)

// AccrualJob periodically grows every account balance by a fixed multiplier,
// capped relative to the owner's original deposit. Each account is processed
// under the same exclusive row lock discipline as transfers, so an in-flight
// transfer and an accrual write on the same account serialize instead of
// losing an update. There is no lock across the whole account set.
type AccrualJob struct {
	repo          repository.Store
	log           *logrus.Logger
	growthFactor  decimal.Decimal
	capMultiplier decimal.Decimal
	interval      string
	cron          *cron.Cron
}

// NewAccrualJob initializes the job from configuration.
func NewAccrualJob(repo repository.Store, log *logrus.Logger, cfg *config.Config) *AccrualJob {
	return &AccrualJob{
		repo:          repo,
		log:           log,
		growthFactor:  cfg.AccrualGrowthFactor,
		capMultiplier: cfg.AccrualCapMultiplier,
		interval:      "@every " + cfg.AccrualInterval.String(),
	}
}

// Start schedules the job on its configured cadence.
func (j *AccrualJob) Start() error {
	j.cron = cron.New()
	_, err := j.cron.AddFunc(j.interval, func() {
		j.RunCycle(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule accrual job: %w", err)
	}
	j.cron.Start()
	j.log.Infof("Accrual job scheduled %s", j.interval)
	return nil
}

// Stop halts the schedule and waits for a running cycle to finish.
func (j *AccrualJob) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// RunCycle applies accrual to every account. A failure on one account is
// logged and skipped; the remaining accounts still get their update and the
// failed one is retried on the next cycle.
func (j *AccrualJob) RunCycle(ctx context.Context) {
	owners, err := j.repo.ListAccountOwners(ctx)
	if err != nil {
		j.log.Errorf("Failed to list accounts for accrual: %v", err)
		return
	}
	for _, ownerID := range owners {
		if err := j.accrueAccount(ctx, ownerID); err != nil {
			j.log.Errorf("Failed to apply accrual to account of user %d: %v", ownerID, err)
		}
	}
}

// accrueAccount grows one balance under its row lock. The cap is recomputed
// from the original deposit on every cycle, never from an intermediate
// balance, and the multiplier is applied even when the balance already sits
// at the cap (the result just clamps back).
func (j *AccrualJob) accrueAccount(ctx context.Context, ownerID int64) error {
	tx, err := j.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin accrual: %w", err)
	}
	defer tx.Rollback()

	account, err := tx.GetAccountForUpdate(ctx, ownerID)
	if err != nil {
		return err
	}

	current := account.Balance
	newBalance := current.Mul(j.growthFactor)
	maxBalance := account.InitialDeposit.Mul(j.capMultiplier)
	if newBalance.GreaterThan(maxBalance) {
		newBalance = maxBalance
	}

	account.Balance = newBalance
	if err := tx.SaveAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to save accrued balance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit accrual: %w", err)
	}

	j.log.Infof("Balance %d increased by %s", account.ID, newBalance.Sub(current))
	return nil
}
