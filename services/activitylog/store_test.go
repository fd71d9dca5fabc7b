package activitylog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"trustescrow/core"
)

func setupStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	store, err := New(db, nil)
	require.NoError(t, err)
	return store, db
}

func sampleActivity() []core.Activity {
	return []core.Activity{
		{Operation: "escrow.create", Type: "escrow.created", Attributes: map[string]string{"id": "0xAB", "amount": "100"}, At: 10},
		{Operation: "escrow.release", Type: "escrow.released", Attributes: map[string]string{"id": "0xab", "paid": "100"}, At: 20},
		{Operation: "escrow.release", Type: "reputation.updated", Attributes: map[string]string{"address": "0x02"}, At: 20},
	}
}

func TestPublishAppendsChain(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.Publish(ctx, sampleActivity()))

	entries, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, int64(1), entries[0].Sequence)
	require.Empty(t, entries[0].PrevHash)
	require.Equal(t, entries[0].Hash, entries[1].PrevHash)
	require.Equal(t, entries[1].Hash, entries[2].PrevHash)
	require.Equal(t, "escrow", entries[0].Module)
	require.Equal(t, "0xab", entries[0].Subject)
	require.Equal(t, "100", entries[0].Attrs()["amount"])
	require.NotEqual(t, uuid.Nil, entries[0].ID)

	require.NoError(t, store.Publish(ctx, sampleActivity()[:1]))
	require.NoError(t, store.Verify(ctx))
}

func TestListFilters(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.Publish(ctx, sampleActivity()))

	escrows, err := store.List(ctx, Filter{Module: "escrow"})
	require.NoError(t, err)
	require.Len(t, escrows, 2)

	subject, err := store.List(ctx, Filter{Subject: "0xAB"})
	require.NoError(t, err)
	require.Len(t, subject, 2)

	after, err := store.List(ctx, Filter{After: 2})
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, "reputation.updated", after[0].Type)

	limited, err := store.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestVerifyDetectsTampering(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.Publish(ctx, sampleActivity()))

	require.NoError(t, db.Model(&Entry{}).Where("sequence = ?", 2).Update("attributes", `{"id":"0xab","paid":"1"}`).Error)
	err := store.Verify(ctx)
	require.ErrorIs(t, err, ErrChainBroken)
	require.Contains(t, err.Error(), "sequence 2")
}

func TestVerifyDetectsGap(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.Publish(ctx, sampleActivity()))

	require.NoError(t, db.Where("sequence = ?", 2).Delete(&Entry{}).Error)
	require.ErrorIs(t, store.Verify(ctx), ErrChainBroken)
}

func TestSubscribersReceiveStoredEntries(t *testing.T) {
	store, _ := setupStore(t)
	updates, cancel := store.Hub().Subscribe(8)
	defer cancel()

	require.NoError(t, store.Publish(context.Background(), sampleActivity()[:1]))
	select {
	case entry := <-updates:
		require.Equal(t, "escrow.created", entry.Type)
		require.Equal(t, int64(1), entry.Sequence)
	case <-time.After(time.Second):
		t.Fatal("no entry delivered")
	}

	cancel()
	require.Zero(t, store.Hub().Len())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.Error(t, err)
}
