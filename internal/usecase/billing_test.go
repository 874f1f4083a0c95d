package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weni-ai/nexus-conversations/internal/domain"
	"github.com/weni-ai/nexus-conversations/internal/usecase"
)

func TestBilling_RunBuildsRollup(t *testing.T) {
	counter := &fakeCounter{counts: []domain.ChannelResolutionCount{
		{ChannelUUID: "chan-1", Resolved: 3, Unresolved: 1, HasChatsRooms: 2, Unclassified: 4},
		{ChannelUUID: "chan-2", Resolved: 0, Unresolved: 0, HasChatsRooms: 0, Unclassified: 1},
	}}
	client := &fakeBillingClient{}
	b := usecase.NewBilling(counter, client, []string{"proj-1"})

	day := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	require.NoError(t, b.Run(context.Background(), day))

	require.Len(t, client.calls, 1)
	call := client.calls[0]
	assert.Equal(t, "proj-1", call.Project)
	require.Len(t, call.Rows, 2)
	assert.Equal(t, "chan-1", call.Rows[0].ChannelUUID)
	assert.Equal(t, "2026-08-23", call.Rows[0].Date)
	assert.Equal(t, domain.ResolutionCount{Resolved: 3, Unresolved: 1, HasChatsRooms: 2, Unclassified: 4}, call.Rows[0].ResolutionCount)
}

func TestBilling_OneBrokenProjectDoesNotStarveOthers(t *testing.T) {
	counter := &fakeCounter{counts: []domain.ChannelResolutionCount{{ChannelUUID: "chan-1"}}}
	client := &fakeBillingClient{}
	b := usecase.NewBilling(counter, client, []string{"proj-bad", "proj-good"})
	client.err = assert.AnError

	day := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	err := b.Run(context.Background(), day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proj-bad")
	assert.Len(t, client.calls, 2, "second project still attempted")
}

func TestBilling_CounterFailureReported(t *testing.T) {
	counter := &fakeCounter{err: assert.AnError}
	b := usecase.NewBilling(counter, &fakeBillingClient{}, []string{"proj-1"})
	err := b.Run(context.Background(), time.Now())
	assert.Error(t, err)
}
