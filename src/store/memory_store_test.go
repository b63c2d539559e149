package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload(t *testing.T, title string) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(map[string]string{"title": title})
	require.NoError(t, err)
	return data
}

func receiveSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "subscription channel closed unexpectedly")
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestCreateAssignsIdentity(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()

	id, err := st.Create(context.Background(), "transactions", "u1", payload(t, "Coffee"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := st.GetOne(context.Background(), "transactions", id)
	require.NoError(t, err)
	assert.Equal(t, "u1", rec.OwnerID)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestGetOneNotFound(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()

	_, err := st.GetOne(context.Background(), "transactions", "missing")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestUpdatePreservesEnvelope(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()

	id, err := st.Create(context.Background(), "transactions", "u1", payload(t, "Coffee"))
	require.NoError(t, err)

	before, err := st.GetOne(context.Background(), "transactions", id)
	require.NoError(t, err)

	require.NoError(t, st.Update(context.Background(), "transactions", id, payload(t, "Espresso")))

	after, err := st.GetOne(context.Background(), "transactions", id)
	require.NoError(t, err)
	assert.Equal(t, before.OwnerID, after.OwnerID)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.JSONEq(t, `{"title":"Espresso"}`, string(after.Data))
}

func TestDeleteAbsentIsNoop(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()

	assert.NoError(t, st.Delete(context.Background(), "transactions", "missing"))
}

func TestListFiltersByOwner(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()

	_, err := st.Create(context.Background(), "transactions", "u1", payload(t, "Mine"))
	require.NoError(t, err)
	_, err = st.Create(context.Background(), "transactions", "u2", payload(t, "Theirs"))
	require.NoError(t, err)

	snap, err := st.List(context.Background(), "transactions", Filter{OwnerID: "u1"})
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "u1", snap[0].OwnerID)
}

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()

	_, err := st.Create(context.Background(), "transactions", "u1", payload(t, "Coffee"))
	require.NoError(t, err)

	ch, unsubscribe := st.Subscribe("transactions", Filter{OwnerID: "u1"})
	defer unsubscribe()

	snap := receiveSnapshot(t, ch)
	assert.Len(t, snap, 1)
}

func TestSubscribeDeliversOnMutation(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()

	ch, unsubscribe := st.Subscribe("transactions", Filter{OwnerID: "u1"})
	defer unsubscribe()

	assert.Empty(t, receiveSnapshot(t, ch))

	id, err := st.Create(context.Background(), "transactions", "u1", payload(t, "Coffee"))
	require.NoError(t, err)
	snap := receiveSnapshot(t, ch)
	require.Len(t, snap, 1)
	assert.Equal(t, id, snap[0].ID)

	require.NoError(t, st.Delete(context.Background(), "transactions", id))
	assert.Empty(t, receiveSnapshot(t, ch))
}

func TestSubscribeIgnoresOtherOwners(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()

	ch, unsubscribe := st.Subscribe("transactions", Filter{OwnerID: "u1"})
	defer unsubscribe()
	receiveSnapshot(t, ch)

	_, err := st.Create(context.Background(), "transactions", "u2", payload(t, "Theirs"))
	require.NoError(t, err)

	select {
	case snap := <-ch:
		t.Fatalf("unexpected snapshot for another owner's mutation: %v", snap)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSnapshotCoalescing(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()

	ch, unsubscribe := st.Subscribe("transactions", Filter{OwnerID: "u1"})
	defer unsubscribe()

	// Do not drain between mutations: the pending snapshot must be replaced,
	// and the one eventually read reflects the latest state.
	for i := 0; i < 5; i++ {
		_, err := st.Create(context.Background(), "transactions", "u1", payload(t, "Coffee"))
		require.NoError(t, err)
	}

	snap := receiveSnapshot(t, ch)
	assert.Len(t, snap, 5)
}

func TestUnsubscribeIdempotent(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()

	ch, unsubscribe := st.Subscribe("transactions", Filter{OwnerID: "u1"})
	unsubscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestUnsubscribeDiscardsPendingSnapshot(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()

	_, err := st.Create(context.Background(), "transactions", "u1", payload(t, "Coffee"))
	require.NoError(t, err)

	// The initial snapshot is still buffered when the consumer unsubscribes;
	// the first read must observe the closed channel, not a stale snapshot.
	ch, unsubscribe := st.Subscribe("transactions", Filter{OwnerID: "u1"})
	unsubscribe()

	snap, ok := <-ch
	assert.False(t, ok)
	assert.Nil(t, snap)
}

func TestCloseDuringSubscribe(t *testing.T) {
	for i := 0; i < 200; i++ {
		st := NewMemoryStore()
		done := make(chan struct{})
		go func() {
			ch, unsubscribe := st.Subscribe("transactions", Filter{OwnerID: "u1"})
			defer unsubscribe()
			for range ch {
			}
			close(done)
		}()
		require.NoError(t, st.Close())
		<-done
	}
}

func TestCloseTerminatesSubscriptions(t *testing.T) {
	st := NewMemoryStore()

	ch, unsubscribe := st.Subscribe("transactions", Filter{OwnerID: "u1"})
	defer unsubscribe()
	receiveSnapshot(t, ch)

	require.NoError(t, st.Close())

	assert.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestFailingStoreKind(t *testing.T) {
	st := NewFailingMemoryStore(KindQuotaExceeded)
	defer st.Close()

	_, err := st.Create(context.Background(), "transactions", "u1", payload(t, "Coffee"))
	require.Error(t, err)
	assert.Equal(t, KindQuotaExceeded, KindOf(err))
}
