package usecase_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weni-ai/nexus-conversations/internal/domain"
	"github.com/weni-ai/nexus-conversations/internal/event"
	"github.com/weni-ai/nexus-conversations/internal/usecase"
)

func groupedMessage(group string, seq int) domain.RawMessage {
	return domain.RawMessage{
		ID:      fmt.Sprintf("%s-%d", group, seq),
		GroupID: group,
		Body: []byte(fmt.Sprintf(`{
			"data":{"project_uuid":"proj","contact_urn":%q,"channel_uuid":"chan",
				"message":{"message_id":"%s-%d","text":"msg %d"}}
		}`, group, group, seq, seq)),
		Attributes: map[string]string{event.AttrEventType: event.TypeMessageReceived},
	}
}

func TestDispatcher_ProcessesBatchAndAcks(t *testing.T) {
	active := domain.Conversation{UUID: "conv-1", Resolution: domain.ResolutionInProgress}
	convs := &fakeConvs{election: domain.ActiveElection{Conversation: active, Found: true}}
	hot := &fakeHot{}
	ing := newIngestor(convs, hot, &fakeSender{})

	var batch []domain.RawMessage
	for _, group := range []string{"a", "b", "c"} {
		for seq := 0; seq < 3; seq++ {
			batch = append(batch, groupedMessage(group, seq))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	queue := &fakeQueue{batches: [][]domain.RawMessage{batch}, cancel: cancel}

	d := usecase.NewDispatcher(queue, ing, 4)
	err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Len(t, hot.stored, 9)

	// Per-group arrival order survives the fan-out.
	perGroup := map[string][]string{}
	for _, s := range hot.stored {
		perGroup[s.Key] = append(perGroup[s.Key], s.Input.ID)
	}
	for _, group := range []string{"a", "b", "c"} {
		key := fmt.Sprintf("proj#%s#chan", group)
		assert.Equal(t, []string{group + "-0", group + "-1", group + "-2"}, perGroup[key])
	}

	require.Len(t, queue.deleted, 1)
	assert.Len(t, queue.deleted[0], 9)
}

func TestDispatcher_DeferredMessagesNotAcked(t *testing.T) {
	convs := &fakeConvs{electionErr: assert.AnError}
	ing := newIngestor(convs, &fakeHot{}, &fakeSender{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	queue := &fakeQueue{
		batches: [][]domain.RawMessage{{
			groupedMessage("a", 0),
			{ID: "poison", GroupID: "b", Body: []byte(`{oops`), Attributes: map[string]string{event.AttrEventType: event.TypeMessageReceived}},
		}},
		cancel: cancel,
	}

	d := usecase.NewDispatcher(queue, ing, 2)
	_ = d.Run(ctx)

	// Only the poison pill is acked; the deferred message redelivers.
	require.Len(t, queue.deleted, 1)
	require.Len(t, queue.deleted[0], 1)
	assert.Equal(t, "poison", queue.deleted[0][0].ID)
}
