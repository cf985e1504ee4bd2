// Package statement exports a wallet's full history as a JSON document.
package statement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/pkg/logger"
	"github.com/medibridge/medibridge-api/internal/pkg/storage"
)

const pageSize = 500

// HistoryReader is the slice of the wallet service an export needs.
type HistoryReader interface {
	GetBalance(ctx context.Context, key ledger.AccountKey) (decimal.Decimal, error)
	History(ctx context.Context, key ledger.AccountKey, limit, offset int) ([]ledger.Entry, error)
}

// Document is the exported file body.
type Document struct {
	AccountID   uuid.UUID       `json:"account_id"`
	Wallet      ledger.Wallet   `json:"wallet"`
	Balance     decimal.Decimal `json:"balance"`
	GeneratedAt time.Time       `json:"generated_at"`
	Entries     []ledger.Entry  `json:"entries"`
}

// Receipt tells the caller where the export went.
type Receipt struct {
	Key     string `json:"key"`
	URL     string `json:"url"`
	Entries int    `json:"entries"`
}

type Service struct {
	wallets HistoryReader
	store   storage.Storage
	now     func() time.Time
}

func NewService(wallets HistoryReader, store storage.Storage) *Service {
	return &Service{wallets: wallets, store: store, now: time.Now}
}

// Export writes statements/<account>/<wallet>/<timestamp>.json.
func (s *Service) Export(ctx context.Context, key ledger.AccountKey) (*Receipt, error) {
	if !key.Wallet.Valid() {
		return nil, ledger.Invalidf("unknown wallet %q", key.Wallet)
	}

	balance, err := s.wallets.GetBalance(ctx, key)
	if err != nil {
		return nil, err
	}

	entries := make([]ledger.Entry, 0)
	for offset := 0; ; offset += pageSize {
		page, err := s.wallets.History(ctx, key, pageSize, offset)
		if err != nil {
			return nil, err
		}
		entries = append(entries, page...)
		if len(page) < pageSize {
			break
		}
	}

	generatedAt := s.now().UTC()
	doc := Document{
		AccountID:   key.AccountID,
		Wallet:      key.Wallet,
		Balance:     balance,
		GeneratedAt: generatedAt,
		Entries:     entries,
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode statement: %w", err)
	}

	objectKey := fmt.Sprintf("statements/%s/%s/%s.json", key.AccountID, key.Wallet, generatedAt.Format("20060102T150405Z"))
	if err := s.store.Put(ctx, objectKey, bytes.NewReader(body), "application/json"); err != nil {
		return nil, fmt.Errorf("store statement: %w", err)
	}

	logger.FromContext(ctx).Info().
		Str("account_id", key.AccountID.String()).
		Str("wallet", string(key.Wallet)).
		Str("key", objectKey).
		Int("entries", len(entries)).
		Msg("statement exported")

	return &Receipt{Key: objectKey, URL: s.store.GetURL(objectKey), Entries: len(entries)}, nil
}
