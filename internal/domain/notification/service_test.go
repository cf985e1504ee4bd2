package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRepo struct{ *MemoryRepository }

func (f *failingRepo) Create(context.Context, *Notification) error { return errors.New("db down") }

func TestNotifyListAndMarkRead(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()
	account := uuid.New()

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	svc.Notify(ctx, account, "first")
	svc.Notify(ctx, account, "second")
	svc.Notify(ctx, uuid.New(), "someone else")

	items, err := svc.List(ctx, account, 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "second", items[0].Message)

	count, err := svc.GetUnreadCount(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, svc.MarkAsRead(ctx, account, items[0].ID))
	assert.ErrorIs(t, svc.MarkAsRead(ctx, uuid.New(), items[1].ID), ErrNotFound)

	count, err = svc.GetUnreadCount(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNotifySwallowsFailures(t *testing.T) {
	svc := NewService(&failingRepo{MemoryRepository: NewMemoryRepository()})
	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), uuid.New(), "lost")
	})
}

func TestCleanupRemovesOnlyOldReadNotifications(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	account := uuid.New()
	old := time.Now().AddDate(0, 0, -120)

	readOld := &Notification{ID: uuid.New(), AccountID: account, Message: "old read", IsRead: true, CreatedAt: old}
	unreadOld := &Notification{ID: uuid.New(), AccountID: account, Message: "old unread", CreatedAt: old}
	fresh := &Notification{ID: uuid.New(), AccountID: account, Message: "fresh", IsRead: true, CreatedAt: time.Now()}
	for _, n := range []*Notification{readOld, unreadOld, fresh} {
		require.NoError(t, repo.Create(ctx, n))
	}

	deleted, err := NewCleanupJob(repo, 90).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	items, err := repo.ListByAccount(ctx, account, 10, 0)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
