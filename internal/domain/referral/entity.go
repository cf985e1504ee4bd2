package referral

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medibridge/medibridge-api/internal/domain/policy"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Referral links a referrer to the user they brought in. It completes
// once, when the referred user's progress reaches the milestone for their
// role.
type Referral struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	ReferrerID       uuid.UUID       `db:"referrer_id" json:"referrer_id"`
	ReferredUserID   uuid.UUID       `db:"referred_user_id" json:"referred_user_id"`
	ReferredUserRole policy.Role     `db:"referred_user_role" json:"referred_user_role"`
	Status           Status          `db:"status" json:"status"`
	Progress         decimal.Decimal `db:"progress" json:"progress"`
	Bonus            decimal.Decimal `db:"bonus" json:"bonus"`
	CreatedAt        time.Time       `db:"created_at" json:"date_created"`
	CompletedAt      *time.Time      `db:"completed_at" json:"completed_at,omitempty"`

	// JustCompleted is set on the value returned by the call that paid the bonus.
	JustCompleted bool `db:"-" json:"-"`
}

func (r *Referral) IsCompleted() bool {
	return r.Status == StatusCompleted
}

// BonusReference is the ledger idempotency key of r's bonus credit.
func (r *Referral) BonusReference() string {
	return "referral_bonus:" + r.ID.String()
}

// Stats summarises a referrer's referrals.
type Stats struct {
	Invited   int             `json:"invited"`
	Pending   int             `json:"pending"`
	Completed int             `json:"completed"`
	Earned    decimal.Decimal `json:"earned"`
}

func Summarize(refs []*Referral) Stats {
	st := Stats{Earned: decimal.Zero}
	for _, r := range refs {
		st.Invited++
		if r.IsCompleted() {
			st.Completed++
			st.Earned = st.Earned.Add(r.Bonus)
		} else {
			st.Pending++
		}
	}
	return st
}
