package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weni-ai/nexus-conversations/internal/domain"
	"github.com/weni-ai/nexus-conversations/internal/event"
	"github.com/weni-ai/nexus-conversations/internal/usecase"
)

func newSatisfaction(convs *fakeConvs, sender *fakeSender) *usecase.Satisfaction {
	reg, _ := newRegistry(convs, &fakeMigrator{}, &fakeClassQueue{})
	return usecase.NewSatisfaction(reg, sender, "agent-csat", "agent-nps")
}

func TestSatisfaction_CSATEvent(t *testing.T) {
	start := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	conv := domain.Conversation{UUID: "conv-1", Resolution: domain.ResolutionInProgress, StartDate: &start}
	convs := &fakeConvs{before: conv, after: conv}
	sender := &fakeSender{}
	s := newSatisfaction(convs, sender)

	err := s.Apply(context.Background(), event.Message{
		ProjectUUID: "proj",
		ContactURN:  "tel:1",
		ChannelUUID: "chan",
		Key:         domain.KeyCSAT,
		Value:       "4",
	})
	require.NoError(t, err)

	require.Len(t, convs.updateFields, 1)
	assert.Equal(t, map[string]any{"csat": "4"}, convs.updateFields[0])

	require.Len(t, sender.events, 1)
	ev := sender.events[0]
	assert.Equal(t, domain.DataLakeEventName, ev.EventName)
	assert.Equal(t, domain.KeyCSAT, ev.Key)
	assert.Equal(t, "string", ev.ValueType)
	assert.Equal(t, "4", ev.Value)
	assert.Equal(t, "proj", ev.Project)
	assert.Equal(t, "agent-csat", ev.Metadata["agent_uuid"])
	assert.Equal(t, "conv-1", ev.Metadata["conversation_uuid"])
	assert.Equal(t, "2026-08-20T10:00:00Z", ev.Metadata["conversation_start_date"])
	assert.NotContains(t, ev.Metadata, "conversation_end_date")
	assert.NotEmpty(t, ev.Date)
}

func TestSatisfaction_NPSParsesInteger(t *testing.T) {
	conv := domain.Conversation{UUID: "conv-1"}
	convs := &fakeConvs{before: conv, after: conv}
	sender := &fakeSender{}
	s := newSatisfaction(convs, sender)

	err := s.Apply(context.Background(), event.Message{
		ProjectUUID: "proj", ContactURN: "tel:1", ChannelUUID: "chan",
		Key: domain.KeyNPS, Value: "9",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"nps": 9}, convs.updateFields[0])
	assert.Equal(t, "agent-nps", sender.events[0].Metadata["agent_uuid"])
}

func TestSatisfaction_NPSRejectsNonInteger(t *testing.T) {
	convs := &fakeConvs{}
	s := newSatisfaction(convs, &fakeSender{})

	err := s.Apply(context.Background(), event.Message{
		ProjectUUID: "proj", ContactURN: "tel:1", ChannelUUID: "chan",
		Key: domain.KeyNPS, Value: "excellent",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Empty(t, convs.updateFields)
}

func TestSatisfaction_SendFailureSurfaces(t *testing.T) {
	conv := domain.Conversation{UUID: "conv-1"}
	convs := &fakeConvs{before: conv, after: conv}
	s := newSatisfaction(convs, &fakeSender{err: assert.AnError})

	err := s.Apply(context.Background(), event.Message{
		ProjectUUID: "proj", ContactURN: "tel:1", ChannelUUID: "chan",
		Key: domain.KeyCSAT, Value: "5",
	})
	assert.Error(t, err)
}
