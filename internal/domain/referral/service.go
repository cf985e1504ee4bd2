package referral

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/domain/policy"
	"github.com/medibridge/medibridge-api/internal/domain/wallet"
	"github.com/medibridge/medibridge-api/internal/pkg/database"
	"github.com/medibridge/medibridge-api/internal/pkg/logger"
)

// Notifier is the notify(accountId, message) collaborator.
type Notifier interface {
	Notify(ctx context.Context, accountID uuid.UUID, message string)
}

// Tracker maintains referral progress and pays the one-time milestone
// bonus. Progress is incremented alongside the business event that earns
// it, never re-derived by scanning history.
type Tracker struct {
	tx       database.Transactor
	repo     Repository
	wallets  *wallet.Service
	notifier Notifier
	now      func() time.Time
}

func NewTracker(tx database.Transactor, repo Repository, wallets *wallet.Service, notifier Notifier) *Tracker {
	return &Tracker{tx: tx, repo: repo, wallets: wallets, notifier: notifier, now: time.Now}
}

// Register records that referrerID brought in referredUserID.
func (t *Tracker) Register(ctx context.Context, referrerID, referredUserID uuid.UUID, role policy.Role) (*Referral, error) {
	if referrerID == uuid.Nil || referredUserID == uuid.Nil {
		return nil, ledger.Invalidf("referrer and referred user are required")
	}
	if referrerID == referredUserID {
		return nil, ledger.Invalidf("users cannot refer themselves")
	}
	if _, ok := policy.MilestoneFor(role); !ok {
		return nil, ledger.Invalidf("role %q has no referral milestone", role)
	}

	ref := &Referral{
		ID:               uuid.New(),
		ReferrerID:       referrerID,
		ReferredUserID:   referredUserID,
		ReferredUserRole: role,
		Status:           StatusPending,
		Progress:         decimal.Zero,
		Bonus:            decimal.Zero,
		CreatedAt:        t.now().UTC(),
	}
	if err := t.tx.WithinTx(ctx, func(ctx context.Context) error {
		return t.repo.Create(ctx, ref)
	}); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info().
		Str("referral_id", ref.ID.String()).
		Str("referrer_id", referrerID.String()).
		Str("referred_user_id", referredUserID.String()).
		Str("role", string(role)).
		Msg("referral registered")
	return ref, nil
}

// RecordProgress adds delta to the referred user's progress and pays the
// bonus if that crosses the milestone. Called inside the unit of work of
// the event being counted. Completed referrals are left untouched.
func (t *Tracker) RecordProgress(ctx context.Context, referredUserID uuid.UUID, delta decimal.Decimal) (*Referral, error) {
	if !delta.IsPositive() {
		return nil, ledger.Invalidf("progress delta must be positive, got %s", delta)
	}
	return t.mutate(ctx, referredUserID, func(ref *Referral) {
		ref.Progress = ref.Progress.Add(delta)
	})
}

// CheckMilestone re-evaluates the stored progress. Safe to retry: a
// completed referral is a no-op, and the bonus carries a ledger reference
// so it cannot be paid twice even by a replayed unit of work.
func (t *Tracker) CheckMilestone(ctx context.Context, referredUserID uuid.UUID) (*Referral, error) {
	return t.mutate(ctx, referredUserID, func(*Referral) {})
}

func (t *Tracker) mutate(ctx context.Context, referredUserID uuid.UUID, apply func(*Referral)) (*Referral, error) {
	var (
		ref       *Referral
		completed bool
	)
	err := t.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		ref, err = t.repo.LockByReferred(ctx, referredUserID)
		if err != nil {
			return err
		}
		if ref.IsCompleted() {
			return nil
		}

		apply(ref)
		if completed, err = t.evaluate(ctx, ref); err != nil {
			return err
		}
		return t.repo.Update(ctx, ref)
	})
	if err != nil {
		return nil, err
	}

	ref.JustCompleted = completed
	if completed && !database.InTx(ctx) {
		t.notifyCompleted(ctx, ref)
	}
	return ref, nil
}

// evaluate completes ref and credits the referrer when progress has
// reached the milestone.
func (t *Tracker) evaluate(ctx context.Context, ref *Referral) (bool, error) {
	m, ok := policy.MilestoneFor(ref.ReferredUserRole)
	if !ok || ref.Progress.LessThan(m.Threshold) {
		return false, nil
	}

	key := ledger.Key(ref.ReferrerID, ledger.WalletCommission)
	meta := wallet.Meta{
		CounterpartyID:   ref.ReferredUserID,
		CounterpartyType: string(ref.ReferredUserRole),
		Reference:        ref.BonusReference(),
	}
	description := fmt.Sprintf("Referral bonus: %s milestone reached", ref.ReferredUserRole)
	if _, err := t.wallets.Credit(ctx, key, m.Bonus, description, meta); err != nil {
		return false, fmt.Errorf("pay referral bonus: %w", err)
	}

	completedAt := t.now().UTC()
	ref.Status = StatusCompleted
	ref.Bonus = m.Bonus
	ref.CompletedAt = &completedAt
	return true, nil
}

func (t *Tracker) notifyCompleted(ctx context.Context, ref *Referral) {
	logger.FromContext(ctx).Info().
		Str("referral_id", ref.ID.String()).
		Str("referrer_id", ref.ReferrerID.String()).
		Str("progress", ref.Progress.String()).
		Str("bonus", ref.Bonus.StringFixed(2)).
		Msg("referral milestone reached")

	if t.notifier == nil {
		return
	}
	t.notifier.Notify(ctx, ref.ReferrerID,
		fmt.Sprintf("Your referral reached its milestone. %s has been added to your commission wallet.", ref.Bonus.StringFixed(2)))
}

// NotifyCompleted sends the completion notice for a referral that the
// returning call completed. Callers that ran RecordProgress inside their own
// unit of work use it once that unit of work has committed.
func (t *Tracker) NotifyCompleted(ctx context.Context, ref *Referral) {
	if ref != nil && ref.JustCompleted {
		t.notifyCompleted(ctx, ref)
	}
}

// Get returns the referral of a referred user.
func (t *Tracker) Get(ctx context.Context, referredUserID uuid.UUID) (*Referral, error) {
	return t.repo.GetByReferred(ctx, referredUserID)
}

// ListByReferrer returns referrerID's referrals, newest first, with totals.
func (t *Tracker) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*Referral, Stats, error) {
	refs, err := t.repo.ListByReferrer(ctx, referrerID)
	if err != nil {
		return nil, Stats{}, err
	}
	return refs, Summarize(refs), nil
}

// Reconcile re-checks every pending referral whose stored progress has
// already reached its milestone and returns how many it completed. It is
// the sweep behind the milestone worker; CheckMilestone makes it safe to
// run alongside live traffic.
func (t *Tracker) Reconcile(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	completed, offset := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return completed, err
		}
		page, err := t.repo.ListPending(ctx, batchSize, offset)
		if err != nil {
			return completed, fmt.Errorf("list pending referrals: %w", err)
		}

		stillPending := 0
		for _, ref := range page {
			m, ok := policy.MilestoneFor(ref.ReferredUserRole)
			if !ok || ref.Progress.LessThan(m.Threshold) {
				stillPending++
				continue
			}
			checked, err := t.CheckMilestone(ctx, ref.ReferredUserID)
			if err != nil {
				logger.FromContext(ctx).Error().Err(err).
					Str("referral_id", ref.ID.String()).
					Msg("milestone check failed")
				stillPending++
				continue
			}
			if checked.JustCompleted {
				completed++
			} else if !checked.IsCompleted() {
				stillPending++
			}
		}

		if len(page) < batchSize {
			return completed, nil
		}
		offset += stillPending
	}
}
