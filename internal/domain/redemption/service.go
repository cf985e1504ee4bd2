package redemption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/domain/policy"
	"github.com/medibridge/medibridge-api/internal/domain/referral"
	"github.com/medibridge/medibridge-api/internal/domain/wallet"
	"github.com/medibridge/medibridge-api/internal/pkg/database"
	"github.com/medibridge/medibridge-api/internal/pkg/logger"
	"github.com/medibridge/medibridge-api/internal/pkg/money"
)

// OfferService manages partner redemption offers.
type OfferService struct {
	repo OfferRepository
	now  func() time.Time
}

func NewOfferService(repo OfferRepository) *OfferService {
	return &OfferService{repo: repo, now: time.Now}
}

// UpdateOffer sets a partner's discount within the policy bounds for its type.
func (s *OfferService) UpdateOffer(ctx context.Context, partnerID uuid.UUID, partnerType policy.Role, discountPercent decimal.Decimal) (*Offer, error) {
	if partnerID == uuid.Nil {
		return nil, ledger.Invalidf("partner id is required")
	}
	floor, ok := policy.MinDiscountPercent(partnerType)
	if !ok {
		return nil, ledger.Invalidf("role %q does not accept redemptions", partnerType)
	}
	if discountPercent.LessThan(floor) || discountPercent.GreaterThan(policy.MaxDiscountPercent) {
		return nil, ledger.Invalidf("%s discount must be between %s%% and %s%%, got %s%%",
			partnerType, floor, policy.MaxDiscountPercent, discountPercent)
	}

	o := &Offer{
		PartnerID:       partnerID,
		PartnerType:     partnerType,
		DiscountPercent: discountPercent,
		UpdatedAt:       s.now().UTC(),
	}
	if err := s.repo.Upsert(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OfferService) GetOffer(ctx context.Context, partnerID uuid.UUID) (*Offer, error) {
	return s.repo.Get(ctx, partnerID)
}

// ProgressRecorder counts redeemed value toward the partner's referral.
type ProgressRecorder interface {
	RecordProgress(ctx context.Context, referredUserID uuid.UUID, delta decimal.Decimal) (*referral.Referral, error)
	NotifyCompleted(ctx context.Context, ref *referral.Referral)
}

// Notifier is the notify(accountId, message) collaborator.
type Notifier interface {
	Notify(ctx context.Context, accountID uuid.UUID, message string)
}

// Service settles redemptions. The patient debit, the partner commission
// credit and the partner's referral progress are written in one unit of
// work: either all of them land or none does.
type Service struct {
	tx        database.Transactor
	wallets   *wallet.Service
	offers    OfferRepository
	referrals ProgressRecorder
	notifier  Notifier
}

func NewService(tx database.Transactor, wallets *wallet.Service, offers OfferRepository, referrals ProgressRecorder, notifier Notifier) *Service {
	return &Service{tx: tx, wallets: wallets, offers: offers, referrals: referrals, notifier: notifier}
}

func debitReference(ref string) string      { return "redemption:" + ref + ":points" }
func commissionReference(ref string) string { return "redemption:" + ref + ":commission" }

// Settle redeems part of req.TotalBill from the patient's Health Points at
// the partner's current discount. The caller must have verified the
// patient's OTP before calling.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (*Settlement, error) {
	if req.PatientID == uuid.Nil || req.PartnerID == uuid.Nil {
		return nil, ledger.Invalidf("patient and partner are required")
	}
	if req.PatientID == req.PartnerID {
		return nil, ledger.Invalidf("partner cannot redeem its own points")
	}
	if !req.TotalBill.IsPositive() {
		return nil, ledger.Invalidf("total bill must be greater than zero, got %s", req.TotalBill)
	}
	if !money.IsPaise(req.TotalBill) {
		return nil, ledger.Invalidf("total bill %s is finer than paise", req.TotalBill)
	}

	offer, err := s.offers.Get(ctx, req.PartnerID)
	if err != nil {
		return nil, err
	}
	if !req.DiscountPercent.IsZero() && !req.DiscountPercent.Equal(offer.DiscountPercent) {
		return nil, ledger.Invalidf("discount %s%% does not match the partner's current offer of %s%%",
			req.DiscountPercent, offer.DiscountPercent)
	}

	split, err := ComputeSplit(req.TotalBill, offer.DiscountPercent)
	if err != nil {
		return nil, err
	}
	if !split.PointsPortion.IsPositive() {
		return nil, ledger.Invalidf("bill of %s is too small to redeem", req.TotalBill)
	}

	patientKey := ledger.Key(req.PatientID, ledger.WalletHealthPoints)
	partnerKey := ledger.Key(req.PartnerID, ledger.WalletCommission)
	result := &Settlement{Split: split, PatientID: req.PatientID, PartnerID: req.PartnerID}

	var progress *referral.Referral
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.wallets.Lock(ctx, patientKey, partnerKey); err != nil {
			return err
		}

		if req.Reference != "" {
			replayed, err := s.replay(ctx, req, split, result)
			if err != nil || replayed {
				return err
			}
		}

		debitMeta := wallet.Meta{
			CounterpartyID:   req.PartnerID,
			CounterpartyType: string(offer.PartnerType),
		}
		creditMeta := wallet.Meta{
			CounterpartyID:   req.PatientID,
			CounterpartyType: string(policy.RolePatient),
		}
		if req.Reference != "" {
			debitMeta.Reference = debitReference(req.Reference)
			creditMeta.Reference = commissionReference(req.Reference)
		}

		debit, err := s.wallets.Debit(ctx, patientKey, split.PointsPortion,
			fmt.Sprintf("Redeemed at %s", offer.PartnerType), ledger.StatusPaid, debitMeta)
		if err != nil {
			return err
		}
		result.PatientEntryID = debit.ID

		if split.Commission.IsPositive() {
			credit, err := s.wallets.Credit(ctx, partnerKey, split.Commission,
				fmt.Sprintf("Commission on %s points redeemed", split.PointsPortion.StringFixed(2)), creditMeta)
			if err != nil {
				return fmt.Errorf("credit partner commission: %w", err)
			}
			result.CommissionEntryID = credit.ID
		}

		if s.referrals != nil {
			progress, err = s.referrals.RecordProgress(ctx, req.PartnerID, split.PointsPortion)
			if err != nil && !errors.Is(err, ledger.ErrNotFound) {
				return fmt.Errorf("record partner referral progress: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Replayed {
		return result, nil
	}

	logger.FromContext(ctx).Info().
		Str("patient_id", req.PatientID.String()).
		Str("partner_id", req.PartnerID.String()).
		Str("total_bill", split.TotalBill.StringFixed(2)).
		Str("points", split.PointsPortion.StringFixed(2)).
		Str("commission", split.Commission.StringFixed(2)).
		Msg("redemption settled")

	if s.referrals != nil {
		s.referrals.NotifyCompleted(ctx, progress)
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, req.PatientID, fmt.Sprintf("%s Health Points redeemed. Pay %s in cash.",
			split.PointsPortion.StringFixed(2), split.CashPortion.StringFixed(2)))
		s.notifier.Notify(ctx, req.PartnerID, fmt.Sprintf("Redemption of %s points settled. Commission earned: %s.",
			split.PointsPortion.StringFixed(2), split.Commission.StringFixed(2)))
	}
	return result, nil
}

// replay fills result from a settlement already recorded under req.Reference.
// The recorded debit must match the split req would produce now.
func (s *Service) replay(ctx context.Context, req SettleRequest, split Split, result *Settlement) (bool, error) {
	debit, err := s.wallets.FindByReference(ctx, debitReference(req.Reference))
	if errors.Is(err, ledger.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if debit.AccountID != req.PatientID || !debit.CounterpartyID.Valid || debit.CounterpartyID.UUID != req.PartnerID {
		return false, wallet.ErrReferenceConflict
	}
	if !debit.Amount.Equal(split.PointsPortion) {
		return false, fmt.Errorf("%w: recorded %s points, request needs %s",
			wallet.ErrReferenceConflict, debit.Amount.StringFixed(2), split.PointsPortion.StringFixed(2))
	}

	result.Replayed = true
	result.PatientEntryID = debit.ID
	result.PointsPortion = debit.Amount
	result.CashPortion = split.CashPortion
	result.Commission = decimal.Zero
	result.CommissionEntryID = uuid.Nil

	credit, err := s.wallets.FindByReference(ctx, commissionReference(req.Reference))
	switch {
	case err == nil:
		result.Commission = credit.Amount
		result.CommissionEntryID = credit.ID
	case !errors.Is(err, ledger.ErrNotFound):
		return false, err
	}
	return true, nil
}
