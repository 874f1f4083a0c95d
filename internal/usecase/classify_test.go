package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weni-ai/nexus-conversations/internal/domain"
	"github.com/weni-ai/nexus-conversations/internal/usecase"
)

func classifyFixture() (*fakeConvs, *fakeHot, *fakeArchive, *fakeTopics, *fakeClassifier, *fakeClassRepo) {
	convs := &fakeConvs{getConv: domain.Conversation{
		UUID:        "conv-1",
		ProjectUUID: "proj",
		ContactURN:  "tel:1",
		ChannelUUID: "chan",
		Resolution:  domain.ResolutionResolved,
	}}
	hot := &fakeHot{all: []domain.HotMessage{
		{Text: "newest", Source: "outgoing", CreatedAt: "2026-08-20T12:31:00"},
		{Text: "oldest", Source: "incoming", CreatedAt: "2026-08-20T12:30:00"},
	}}
	topics := &fakeTopics{
		topics: []domain.Topic{{
			UUID: "topic-1", Name: "Suporte", Description: "ajuda",
			SubTopics: []domain.SubTopic{{UUID: "sub-1", Name: "Fatura"}},
		}},
		known:     map[string]bool{"topic-1": true},
		subsKnown: map[string]bool{"sub-1": true},
	}
	classifier := &fakeClassifier{result: domain.ClassifierResult{TopicUUID: "topic-1", SubTopicUUID: "sub-1", Confidence: 0.92}}
	return convs, hot, newFakeArchive(), topics, classifier, &fakeClassRepo{}
}

func newClassifyWorker(convs *fakeConvs, hot *fakeHot, archive *fakeArchive, topics *fakeTopics, classifier *fakeClassifier, repo *fakeClassRepo) *usecase.ClassifyWorker {
	return usecase.NewClassifyWorker(convs, hot, archive, topics, classifier, repo, "pt-br", 1)
}

func TestClassify_BuildsChronologicalPayload(t *testing.T) {
	convs, hot, archive, topics, classifier, repo := classifyFixture()
	w := newClassifyWorker(convs, hot, archive, topics, classifier, repo)

	require.NoError(t, w.Process(context.Background(), "conv-1"))

	require.Len(t, classifier.payloads, 1)
	p := classifier.payloads[0]
	assert.Equal(t, "proj", p.ProjectUUID)
	assert.Equal(t, "conv-1", p.ConversationUUID)
	assert.Equal(t, "pt-br", p.Language)
	require.Len(t, p.Messages, 2)
	assert.Equal(t, "oldest", p.Messages[0].Content, "transcript reads oldest first")
	assert.Equal(t, "newest", p.Messages[1].Content)
	require.Len(t, p.Topics, 1)
	assert.Equal(t, "topic-1", p.Topics[0].TopicUUID)
	require.Len(t, p.Topics[0].SubTopics, 1)

	require.Len(t, repo.saved, 1)
	saved := repo.saved[0]
	require.NotNil(t, saved.TopicUUID)
	assert.Equal(t, "topic-1", *saved.TopicUUID)
	require.NotNil(t, saved.SubTopicUUID)
	assert.Equal(t, "sub-1", *saved.SubTopicUUID)
	assert.Equal(t, 0.92, saved.Confidence)
}

func TestClassify_ArchiveFallback(t *testing.T) {
	convs, hot, archive, topics, classifier, repo := classifyFixture()
	hot.all = nil
	archive.upserts["conv-1"] = []domain.HotMessage{{Text: "migrated", Source: "incoming"}}
	w := newClassifyWorker(convs, hot, archive, topics, classifier, repo)

	require.NoError(t, w.Process(context.Background(), "conv-1"))
	require.Len(t, classifier.payloads, 1)
	require.Len(t, classifier.payloads[0].Messages, 1)
	assert.Equal(t, "migrated", classifier.payloads[0].Messages[0].Content)
}

func TestClassify_NoMessagesSkips(t *testing.T) {
	convs, hot, archive, topics, classifier, repo := classifyFixture()
	hot.all = nil
	w := newClassifyWorker(convs, hot, archive, topics, classifier, repo)

	require.NoError(t, w.Process(context.Background(), "conv-1"))
	assert.Empty(t, classifier.payloads)
	assert.Empty(t, repo.saved)
}

func TestClassify_RetriesTransientFailures(t *testing.T) {
	convs, hot, archive, topics, classifier, repo := classifyFixture()
	classifier.failures = 2
	w := newClassifyWorker(convs, hot, archive, topics, classifier, repo)

	require.NoError(t, w.Process(context.Background(), "conv-1"))
	assert.Len(t, classifier.payloads, 3, "two transient failures then success")
	assert.Len(t, repo.saved, 1)
}

func TestClassify_UnknownLabelsDropped(t *testing.T) {
	convs, hot, archive, topics, classifier, repo := classifyFixture()
	classifier.result = domain.ClassifierResult{TopicUUID: "ghost", SubTopicUUID: "ghost-sub", Confidence: 0.5}
	w := newClassifyWorker(convs, hot, archive, topics, classifier, repo)

	require.NoError(t, w.Process(context.Background(), "conv-1"))
	require.Len(t, repo.saved, 1)
	assert.Nil(t, repo.saved[0].TopicUUID)
	assert.Nil(t, repo.saved[0].SubTopicUUID)
}

func TestClassify_EnqueueAndDrain(t *testing.T) {
	convs, hot, archive, topics, classifier, repo := classifyFixture()
	w := newClassifyWorker(convs, hot, archive, topics, classifier, repo)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Enqueue(ctx, "conv-1"))
	cancel()
	w.Start(ctx)
	w.Wait()
}
