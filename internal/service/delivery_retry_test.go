package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Spolkip/AtlasCoreSite/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memMarker struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memMarker) MarkProcessed(_ context.Context, eventID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[eventID] {
		return false, nil
	}
	m.seen[eventID] = true
	return true, nil
}

func TestDeliveryRetrier_RetriesOnce(t *testing.T) {
	dispatcher := &fakeDispatcher{fail: map[string]bool{}}
	retrier := NewDeliveryRetrier(dispatcher, &memMarker{seen: map[string]bool{}}, time.Hour)

	event := &models.DeliveryFailedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeDeliveryFailed),
		Source:    models.SourceProduct,
		Command:   "give mc_steve diamond 1",
		Player:    models.PlayerContext{PlayerName: "mc_steve", UUID: "abc", Username: "steve"},
		Attempt:   1,
	}

	require.NoError(t, retrier.HandleDeliveryFailed(context.Background(), event))
	require.NoError(t, retrier.HandleDeliveryFailed(context.Background(), event))
	assert.Equal(t, []string{"give mc_steve diamond 1"}, dispatcher.commands())
}

func TestDeliveryRetrier_DropsSecondFailure(t *testing.T) {
	dispatcher := &fakeDispatcher{fail: map[string]bool{"say hi": true}}
	retrier := NewDeliveryRetrier(dispatcher, &memMarker{seen: map[string]bool{}}, time.Hour)

	event := &models.DeliveryFailedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeDeliveryFailed),
		Command:   "say hi",
		Attempt:   1,
	}
	assert.NoError(t, retrier.HandleDeliveryFailed(context.Background(), event))

	exhausted := &models.DeliveryFailedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeDeliveryFailed),
		Command:   "say bye",
		Attempt:   maxDeliveryAttempts,
	}
	assert.NoError(t, retrier.HandleDeliveryFailed(context.Background(), exhausted))
	assert.Empty(t, dispatcher.commands())
}
