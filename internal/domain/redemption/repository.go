package redemption

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/pkg/database"
)

// OfferRepository stores one offer per partner.
type OfferRepository interface {
	// Get returns ledger.ErrNotFound when the partner has no offer.
	Get(ctx context.Context, partnerID uuid.UUID) (*Offer, error)
	Upsert(ctx context.Context, o *Offer) error
}

type offerRepository struct {
	db *sqlx.DB
}

func NewOfferRepository(db *sqlx.DB) OfferRepository {
	return &offerRepository{db: db}
}

func (r *offerRepository) Get(ctx context.Context, partnerID uuid.UUID) (*Offer, error) {
	var o Offer
	err := database.Executor(ctx, r.db).GetContext(ctx, &o, `
		SELECT partner_id, partner_type, discount_percent, updated_at
		FROM redemption_offers WHERE partner_id = $1
	`, partnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no redemption offer for partner %s", ledger.ErrNotFound, partnerID)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *offerRepository) Upsert(ctx context.Context, o *Offer) error {
	_, err := database.Executor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO redemption_offers (partner_id, partner_type, discount_percent, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (partner_id) DO UPDATE
		SET partner_type = EXCLUDED.partner_type,
		    discount_percent = EXCLUDED.discount_percent,
		    updated_at = EXCLUDED.updated_at
	`, o.PartnerID, o.PartnerType, o.DiscountPercent, o.UpdatedAt)
	return err
}

// MemoryOfferRepository is the in-process OfferRepository.
type MemoryOfferRepository struct {
	mu     sync.RWMutex
	offers map[uuid.UUID]Offer
}

func NewMemoryOfferRepository() *MemoryOfferRepository {
	return &MemoryOfferRepository{offers: make(map[uuid.UUID]Offer)}
}

func (m *MemoryOfferRepository) Get(ctx context.Context, partnerID uuid.UUID) (*Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.offers[partnerID]
	if !ok {
		return nil, fmt.Errorf("%w: no redemption offer for partner %s", ledger.ErrNotFound, partnerID)
	}
	return &o, nil
}

func (m *MemoryOfferRepository) Upsert(ctx context.Context, o *Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, existed := m.offers[o.PartnerID]
	m.offers[o.PartnerID] = *o
	database.OnRollback(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existed {
			m.offers[o.PartnerID] = prev
		} else {
			delete(m.offers, o.PartnerID)
		}
	})
	return nil
}
