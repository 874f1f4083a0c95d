package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weni-ai/nexus-conversations/internal/domain"
	"github.com/weni-ai/nexus-conversations/internal/event"
	"github.com/weni-ai/nexus-conversations/internal/usecase"
)

func newIngestor(convs *fakeConvs, hot *fakeHot, sender *fakeSender) *usecase.Ingestor {
	reg, _ := newRegistry(convs, &fakeMigrator{}, &fakeClassQueue{})
	sat := usecase.NewSatisfaction(reg, sender, "agent-csat", "agent-nps")
	return usecase.NewIngestor(reg, hot, sat, 48)
}

func rawMessage(eventType, body string) domain.RawMessage {
	return domain.RawMessage{
		ID:         "raw-1",
		Body:       []byte(body),
		Attributes: map[string]string{event.AttrEventType: eventType},
	}
}

func TestProcess_BadJSONRejected(t *testing.T) {
	ing := newIngestor(&fakeConvs{}, &fakeHot{}, &fakeSender{})
	res := ing.Process(context.Background(), rawMessage(event.TypeMessageReceived, `{broken`))
	assert.Equal(t, usecase.ResultRejected, res)
	assert.True(t, res.Acked(), "poison pills are acked so they never redeliver")
}

func TestProcess_UnknownTypeRejected(t *testing.T) {
	ing := newIngestor(&fakeConvs{}, &fakeHot{}, &fakeSender{})
	res := ing.Process(context.Background(), rawMessage("contact.updated", `{}`))
	assert.Equal(t, usecase.ResultRejected, res)
}

func TestProcess_StoresMessageForActiveConversation(t *testing.T) {
	active := domain.Conversation{UUID: "conv-1", Resolution: domain.ResolutionInProgress}
	convs := &fakeConvs{election: domain.ActiveElection{Conversation: active, Found: true}}
	hot := &fakeHot{}
	ing := newIngestor(convs, hot, &fakeSender{})

	res := ing.Process(context.Background(), rawMessage(event.TypeMessageReceived, `{
		"data":{"project_uuid":"proj","contact_urn":"tel:1","channel_uuid":"chan",
			"message":{"message_id":"m1","text":"oi","created_at":"2026-08-20T12:30:00Z"}}
	}`))
	assert.Equal(t, usecase.ResultProcessed, res)
	require.Len(t, hot.stored, 1)
	assert.Equal(t, "proj#tel:1#chan", hot.stored[0].Key)
	assert.Equal(t, "m1", hot.stored[0].Input.ID)
	assert.Equal(t, domain.SourceIncoming, hot.stored[0].Input.Source)
}

func TestProcess_NoChannelStillAcked(t *testing.T) {
	convs := &fakeConvs{}
	hot := &fakeHot{}
	ing := newIngestor(convs, hot, &fakeSender{})

	res := ing.Process(context.Background(), rawMessage(event.TypeMessageSent, `{
		"data":{"project_uuid":"proj","contact_urn":"tel:1","message":{"text":"oi"}}
	}`))
	assert.Equal(t, usecase.ResultProcessed, res)
	assert.Empty(t, hot.stored)
}

func TestProcess_ClosedConversationSkipsHotStore(t *testing.T) {
	closed := domain.Conversation{UUID: "conv-1", Resolution: domain.ResolutionResolved}
	convs := &fakeConvs{election: domain.ActiveElection{Conversation: closed, Found: true}}
	hot := &fakeHot{}
	ing := newIngestor(convs, hot, &fakeSender{})

	res := ing.Process(context.Background(), rawMessage(event.TypeMessageReceived, `{
		"data":{"project_uuid":"proj","contact_urn":"tel:1","channel_uuid":"chan","message":{"text":"oi"}}
	}`))
	assert.Equal(t, usecase.ResultProcessed, res)
	assert.Empty(t, hot.stored, "writes are gated on IN_PROGRESS")
}

func TestProcess_ElectionFailureDeferred(t *testing.T) {
	convs := &fakeConvs{electionErr: assert.AnError}
	ing := newIngestor(convs, &fakeHot{}, &fakeSender{})

	res := ing.Process(context.Background(), rawMessage(event.TypeMessageReceived, `{
		"data":{"project_uuid":"proj","contact_urn":"tel:1","channel_uuid":"chan","message":{"text":"oi"}}
	}`))
	assert.Equal(t, usecase.ResultDeferred, res)
	assert.False(t, res.Acked(), "transient failures leave the message for redelivery")
}

func TestProcess_HotStoreFailureDeferred(t *testing.T) {
	active := domain.Conversation{UUID: "conv-1", Resolution: domain.ResolutionInProgress}
	convs := &fakeConvs{election: domain.ActiveElection{Conversation: active, Found: true}}
	hot := &fakeHot{storeErr: assert.AnError}
	ing := newIngestor(convs, hot, &fakeSender{})

	res := ing.Process(context.Background(), rawMessage(event.TypeMessageReceived, `{
		"data":{"project_uuid":"proj","contact_urn":"tel:1","channel_uuid":"chan","message":{"text":"oi"}}
	}`))
	assert.Equal(t, usecase.ResultDeferred, res)
}

func TestProcess_CSATDispatched(t *testing.T) {
	active := domain.Conversation{UUID: "conv-1", Resolution: domain.ResolutionInProgress}
	convs := &fakeConvs{
		election: domain.ActiveElection{Conversation: active, Found: true},
		before:   active,
		after:    active,
	}
	sender := &fakeSender{}
	ing := newIngestor(convs, &fakeHot{}, sender)

	res := ing.Process(context.Background(), rawMessage(event.TypeMessageReceived, `{
		"key":"weni_csat","value":"5",
		"data":{"project_uuid":"proj","contact_urn":"tel:1","channel_uuid":"chan","message":{"text":"5"}}
	}`))
	assert.Equal(t, usecase.ResultProcessed, res)
	require.Len(t, sender.events, 1)
	assert.Equal(t, domain.KeyCSAT, sender.events[0].Key)
	require.Len(t, convs.updateFields, 1)
	assert.Equal(t, map[string]any{"csat": "5"}, convs.updateFields[0])
}

func TestProcess_SatisfactionFailureStillProcessed(t *testing.T) {
	active := domain.Conversation{UUID: "conv-1", Resolution: domain.ResolutionInProgress}
	convs := &fakeConvs{
		election: domain.ActiveElection{Conversation: active, Found: true},
		before:   active, after: active,
	}
	ing := newIngestor(convs, &fakeHot{}, &fakeSender{err: assert.AnError})

	res := ing.Process(context.Background(), rawMessage(event.TypeMessageReceived, `{
		"key":"weni_nps","value":"8",
		"data":{"project_uuid":"proj","contact_urn":"tel:1","channel_uuid":"chan","message":{"text":"8"}}
	}`))
	assert.Equal(t, usecase.ResultProcessed, res, "the message already landed; the side effect is best effort")
}

func TestProcess_WindowDeferredOnRegistryError(t *testing.T) {
	convs := &fakeConvs{latestErr: assert.AnError}
	ing := newIngestor(convs, &fakeHot{}, &fakeSender{})

	res := ing.Process(context.Background(), rawMessage(event.TypeConversationWindow, `{
		"data":{"project_uuid":"proj","contact_urn":"tel:1","channel_uuid":"chan"}
	}`))
	assert.Equal(t, usecase.ResultDeferred, res)
}
