package withdrawal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/domain/policy"
	"github.com/medibridge/medibridge-api/internal/domain/wallet"
	"github.com/medibridge/medibridge-api/internal/pkg/database"
	"github.com/medibridge/medibridge-api/internal/pkg/logger"
	"github.com/medibridge/medibridge-api/internal/pkg/money"
)

type Notifier interface {
	Notify(ctx context.Context, accountID uuid.UUID, message string)
}

// Service runs the withdrawal request workflow. Minimum amounts are role
// specific and are enforced by the caller.
type Service struct {
	tx       database.Transactor
	repo     Repository
	wallets  *wallet.Service
	notifier Notifier
	now      func() time.Time
}

func NewService(tx database.Transactor, repo Repository, wallets *wallet.Service, notifier Notifier) *Service {
	return &Service{tx: tx, repo: repo, wallets: wallets, notifier: notifier, now: time.Now}
}

// RequestWithdrawal debits amount as pending and opens a request for an
// admin to review. It fails with *ledger.InsufficientBalanceError when the
// wallet cannot cover amount.
func (s *Service) RequestWithdrawal(ctx context.Context, accountID uuid.UUID, w ledger.Wallet, accountName string, amount decimal.Decimal) (*Request, error) {
	if accountID == uuid.Nil {
		return nil, ledger.Invalidf("account id is required")
	}
	if !w.Valid() {
		return nil, ledger.Invalidf("unknown wallet %q", w)
	}
	accountName = strings.TrimSpace(accountName)
	if accountName == "" {
		return nil, ledger.Invalidf("account name is required")
	}
	if !amount.IsPositive() {
		return nil, ledger.Invalidf("amount must be greater than zero, got %s", amount)
	}
	if !money.IsPaise(amount) {
		return nil, ledger.Invalidf("amount %s is finer than paise", amount)
	}

	req := &Request{
		ID:          uuid.New(),
		AccountID:   accountID,
		Wallet:      w,
		AccountName: accountName,
		Amount:      amount,
		Status:      StatusPending,
		CreatedAt:   s.now().UTC(),
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		debit, err := s.wallets.Debit(ctx, req.Key(), amount, "Withdrawal request", ledger.StatusPending,
			wallet.Meta{Reference: req.DebitReference()})
		if err != nil {
			return err
		}
		req.DebitEntryID = debit.ID
		return s.repo.Create(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info().
		Str("request_id", req.ID.String()).
		Str("account_id", accountID.String()).
		Str("amount", amount.StringFixed(2)).
		Msg("withdrawal requested")
	return req, nil
}

// ResolveWithdrawal approves or rejects a pending request. Rejection
// appends a compensating credit so the balance returns to where it was.
// The first resolution wins: repeating it with the same decision and
// idempotency key replays the stored result, anything else fails with
// ErrAlreadyResolved.
func (s *Service) ResolveWithdrawal(ctx context.Context, requestID uuid.UUID, decision Decision, idempotencyKey string, adminID uuid.UUID) (*Request, error) {
	status, ok := decision.Status()
	if !ok {
		return nil, ledger.Invalidf("unknown decision %q", decision)
	}

	var req *Request
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.repo.Lock(ctx, requestID)
		if err != nil {
			return err
		}
		if req.IsResolved() {
			if req.Status == status && req.resolvedWithKey(idempotencyKey) {
				req.Replayed = true
				return nil
			}
			return fmt.Errorf("%w: request is %s", ErrAlreadyResolved, req.Status)
		}

		if status == StatusRejected {
			_, err := s.wallets.Credit(ctx, req.Key(), req.Amount, "withdrawal rejected", wallet.Meta{
				CounterpartyID:   adminID,
				CounterpartyType: string(policy.RoleAdmin),
				Reference:        req.ReversalReference(),
			})
			if err != nil {
				return fmt.Errorf("reverse withdrawal debit: %w", err)
			}
		}

		now := s.now().UTC()
		req.Status = status
		req.ResolvedAt = &now
		if adminID != uuid.Nil {
			req.ResolvedBy = &adminID
		}
		if idempotencyKey != "" {
			req.ResolutionKey = &idempotencyKey
		}
		return s.repo.Resolve(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if req.Replayed {
		return req, nil
	}

	logger.FromContext(ctx).Info().
		Str("request_id", req.ID.String()).
		Str("status", string(req.Status)).
		Str("admin_id", adminID.String()).
		Msg("withdrawal resolved")

	if s.notifier != nil {
		msg := fmt.Sprintf("Your withdrawal of %s was approved.", req.Amount.StringFixed(2))
		if req.Status == StatusRejected {
			msg = fmt.Sprintf("Your withdrawal of %s was rejected and the amount returned to your wallet.", req.Amount.StringFixed(2))
		}
		s.notifier.Notify(ctx, req.AccountID, msg)
	}
	return req, nil
}

func (s *Service) Get(ctx context.Context, requestID uuid.UUID) (*Request, error) {
	return s.repo.Get(ctx, requestID)
}

// ListPending returns requests awaiting review, oldest first.
func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]*Request, error) {
	return s.List(ctx, StatusPending, limit, offset)
}

func (s *Service) List(ctx context.Context, status Status, limit, offset int) ([]*Request, error) {
	switch status {
	case StatusPending, StatusApproved, StatusRejected:
	default:
		return nil, ledger.Invalidf("unknown status %q", status)
	}
	return s.repo.ListByStatus(ctx, status, limit, offset)
}

// ListByAccount returns an account's requests, newest first.
func (s *Service) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Request, error) {
	return s.repo.ListByAccount(ctx, accountID, limit, offset)
}

