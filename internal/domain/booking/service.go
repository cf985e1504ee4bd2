package booking

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
)

// ProgressRecorder counts completed visits toward doctor and coordinator referrals.
type ProgressRecorder interface {
	RecordProgress(ctx context.Context, referredUserID uuid.UUID, delta decimal.Decimal) (*referral.Referral, error)
	NotifyCompleted(ctx context.Context, ref *referral.Referral)
}

type Notifier interface {
	Notify(ctx context.Context, accountID uuid.UUID, message string)
}

// Service handles appointment booking and completion
type Service struct {
	tx        database.Transactor
	repo      Repository
	wallets   *wallet.Service
	referrals ProgressRecorder
	notifier  Notifier
	now       func() time.Time
}

func NewService(tx database.Transactor, repo Repository, wallets *wallet.Service, referrals ProgressRecorder, notifier Notifier) *Service {
	return &Service{
		tx:        tx,
		repo:      repo,
		wallets:   wallets,
		referrals: referrals,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Quote prices a booking without persisting anything.
func (s *Service) Quote(consultationFee decimal.Decimal, payerRole policy.Role, optedIntoPoints bool) (FeeBreakdown, error) {
	return ComputeBookingFee(consultationFee, payerRole, optedIntoPoints)
}

// Book persists an appointment with the fee breakdown fixed at booking time.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if req.PatientID == uuid.Nil || req.DoctorID == uuid.Nil || req.BookedBy == uuid.Nil {
		return nil, ledger.Invalidf("patient, doctor and booker are required")
	}
	if req.PatientID == req.DoctorID {
		return nil, ledger.Invalidf("patient and doctor must differ")
	}
	if req.BookedByRole == policy.RolePatient && req.BookedBy != req.PatientID {
		return nil, ledger.Invalidf("patients can only book for themselves")
	}

	fee, err := ComputeBookingFee(req.ConsultationFee, req.BookedByRole, req.OptedIntoPoints)
	if err != nil {
		return nil, err
	}

	a := &Appointment{
		ID:              uuid.New(),
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		BookedBy:        req.BookedBy,
		BookedByRole:    req.BookedByRole,
		ConsultationFee: fee.Fee,
		OptedIntoPoints: req.OptedIntoPoints,
		PlatformFeeRate: fee.PlatformFeeRate,
		PlatformFee:     fee.PlatformFee,
		TotalDue:        fee.TotalDue,
		Status:          StatusBooked,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	logger.FromContext(ctx).Info().
		Str("appointment_id", a.ID.String()).
		Str("booked_by_role", string(a.BookedByRole)).
		Str("total_due", a.TotalDue.StringFixed(2)).
		Msg("appointment booked")

	if s.notifier != nil {
		s.notifier.Notify(ctx, a.PatientID, fmt.Sprintf("Appointment booked. Total due: %s.", a.TotalDue.StringFixed(2)))
	}
	return a, nil
}

// Complete marks a booked appointment done. Only the assigned doctor may
// complete it. The Health Points award and referral progress are written
// in the same unit of work as the status change.
func (s *Service) Complete(ctx context.Context, appointmentID, doctorID uuid.UUID) (*Appointment, error) {
	var (
		a         *Appointment
		completed []*referral.Referral
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.repo.Lock(ctx, appointmentID)
		if err != nil {
			return err
		}
		if a.DoctorID != doctorID {
			return ErrNotParticipant
		}
		if a.Status != StatusBooked {
			return fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, a.Status)
		}

		now := s.now().UTC()
		a.Status = StatusCompleted
		a.CompletedAt = &now
		if err := s.repo.UpdateStatus(ctx, a); err != nil {
			return err
		}

		if a.OptedIntoPoints {
			_, err := s.wallets.Credit(ctx, ledger.Key(a.PatientID, ledger.WalletHealthPoints), a.ConsultationFee,
				"Health Points for completed consultation", wallet.Meta{
					CounterpartyID:   a.DoctorID,
					CounterpartyType: string(policy.RoleDoctor),
					Reference:        a.PointsReference(),
				})
			if err != nil {
				return fmt.Errorf("award health points: %w", err)
			}
		}

		if s.referrals == nil {
			return nil
		}
		progressFor := []uuid.UUID{a.DoctorID}
		if a.BookedByRole == policy.RoleHealthCoordinator {
			progressFor = append(progressFor, a.BookedBy)
		}
		for _, id := range progressFor {
			ref, err := s.referrals.RecordProgress(ctx, id, decimal.NewFromInt(1))
			if errors.Is(err, ledger.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("record referral progress for %s: %w", id, err)
			}
			completed = append(completed, ref)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info().
		Str("appointment_id", a.ID.String()).
		Bool("points_awarded", a.OptedIntoPoints).
		Msg("appointment completed")

	for _, ref := range completed {
		s.referrals.NotifyCompleted(ctx, ref)
	}
	if s.notifier != nil && a.OptedIntoPoints {
		s.notifier.Notify(ctx, a.PatientID, fmt.Sprintf("%s Health Points credited for your consultation.",
			a.ConsultationFee.StringFixed(2)))
	}
	return a, nil
}

// Cancel cancels a booked appointment on behalf of the patient or whoever booked it.
func (s *Service) Cancel(ctx context.Context, appointmentID, actorID uuid.UUID) (*Appointment, error) {
	var a *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.repo.Lock(ctx, appointmentID)
		if err != nil {
			return err
		}
		if actorID != a.PatientID && actorID != a.BookedBy {
			return ErrNotParticipant
		}
		if a.Status != StatusBooked {
			return fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, a.Status)
		}
		a.Status = StatusCancelled
		return s.repo.UpdateStatus(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info().Str("appointment_id", a.ID.String()).Msg("appointment cancelled")
	return a, nil
}

// Get returns an appointment visible to userID.
func (s *Service) Get(ctx context.Context, appointmentID, userID uuid.UUID) (*Appointment, error) {
	a, err := s.repo.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if userID != a.PatientID && userID != a.DoctorID && userID != a.BookedBy {
		return nil, ErrNotParticipant
	}
	return a, nil
}
