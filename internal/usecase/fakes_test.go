package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/weni-ai/nexus-conversations/internal/domain"
)

type fakeProjects struct {
	created []string
}

func (f *fakeProjects) GetOrCreate(_ domain.Context, uuid string) (domain.Project, error) {
	f.created = append(f.created, uuid)
	return domain.Project{UUID: uuid}, nil
}

func (f *fakeProjects) Exists(domain.Context, string) (bool, error) { return true, nil }

type fakeConvs struct {
	mu sync.Mutex

	election    domain.ActiveElection
	electionErr error
	latest      domain.Conversation
	latestErr   error
	before      domain.Conversation
	after       domain.Conversation
	updateErr   error
	getConv     domain.Conversation

	created      []domain.Conversation
	updateFields []map[string]any
}

func (f *fakeConvs) Create(_ domain.Context, c domain.Conversation) (domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.CreatedAt = time.Now().UTC()
	f.created = append(f.created, c)
	return c, nil
}

func (f *fakeConvs) ElectActive(domain.Context, string, string, string) (domain.ActiveElection, error) {
	return f.election, f.electionErr
}

func (f *fakeConvs) Latest(domain.Context, string, string, string) (domain.Conversation, error) {
	return f.latest, f.latestErr
}

func (f *fakeConvs) Update(domain.Context, domain.Conversation) error { return nil }

func (f *fakeConvs) UpdateFields(_ domain.Context, _, _, _ string, fields map[string]any) (domain.Conversation, domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateFields = append(f.updateFields, fields)
	return f.before, f.after, f.updateErr
}

func (f *fakeConvs) Get(domain.Context, string) (domain.Conversation, error) {
	return f.getConv, nil
}

func (f *fakeConvs) ListByProject(domain.Context, string, domain.ConversationFilter) ([]domain.Conversation, int, error) {
	return nil, 0, nil
}

type storedMessage struct {
	Key   string
	Input domain.HotMessageInput
}

type fakeHot struct {
	mu       sync.Mutex
	stored   []storedMessage
	storeErr error
	all      []domain.HotMessage
	allErr   error
	deleted  int
	delErr   error
}

func (f *fakeHot) Store(_ domain.Context, projectUUID, contactURN, channelUUID string, msg domain.HotMessageInput, _ domain.Resolution, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return f.storeErr
	}
	key := fmt.Sprintf("%s#%s#%s", projectUUID, contactURN, channelUUID)
	f.stored = append(f.stored, storedMessage{Key: key, Input: msg})
	return nil
}

func (f *fakeHot) GetMessages(domain.Context, string, string, string, int, string) (domain.MessagePage, error) {
	return domain.MessagePage{Items: f.all}, f.allErr
}

func (f *fakeHot) GetAllMessages(domain.Context, string, string, string) ([]domain.HotMessage, error) {
	return f.all, f.allErr
}

func (f *fakeHot) DeleteAll(domain.Context, string, string, string) (int, error) {
	if f.delErr != nil {
		return 0, f.delErr
	}
	f.deleted = len(f.all)
	return f.deleted, nil
}

type fakeArchive struct {
	upserts map[string][]domain.HotMessage
	err     error
	getErr  error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{upserts: map[string][]domain.HotMessage{}}
}

func (f *fakeArchive) Upsert(_ domain.Context, uuid string, msgs []domain.HotMessage) error {
	if f.err != nil {
		return f.err
	}
	f.upserts[uuid] = msgs
	return nil
}

func (f *fakeArchive) Get(_ domain.Context, uuid string) ([]domain.HotMessage, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	msgs, ok := f.upserts[uuid]
	if !ok {
		return nil, fmt.Errorf("op=fake: %w", domain.ErrNotFound)
	}
	return msgs, nil
}

type migrateCall struct {
	Conv domain.Conversation
}

type fakeMigrator struct {
	calls []migrateCall
	err   error
}

func (f *fakeMigrator) Migrate(_ domain.Context, conv domain.Conversation) (int, error) {
	f.calls = append(f.calls, migrateCall{Conv: conv})
	return 0, f.err
}

type fakeClassQueue struct {
	enqueued []string
	err      error
}

func (f *fakeClassQueue) Enqueue(_ domain.Context, uuid string) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, uuid)
	return nil
}

type fakeSender struct {
	events []domain.DataLakeEvent
	err    error
}

func (f *fakeSender) Send(_ domain.Context, ev domain.DataLakeEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

type fakeCounter struct {
	counts []domain.ChannelResolutionCount
	err    error
}

func (f *fakeCounter) AllChannelCounts(domain.Context, string, time.Time) ([]domain.ChannelResolutionCount, error) {
	return f.counts, f.err
}

func (f *fakeCounter) ChannelCounts(_ domain.Context, _, channel string, _ time.Time) (domain.ChannelResolutionCount, error) {
	for _, c := range f.counts {
		if c.ChannelUUID == channel {
			return c, nil
		}
	}
	return domain.ChannelResolutionCount{ChannelUUID: channel}, f.err
}

type billingCall struct {
	Project string
	Rows    []domain.ChannelConversation
}

type fakeBillingClient struct {
	calls []billingCall
	err   error
}

func (f *fakeBillingClient) SendConversations(_ domain.Context, projectUUID string, rows []domain.ChannelConversation) error {
	f.calls = append(f.calls, billingCall{Project: projectUUID, Rows: rows})
	return f.err
}

type fakeTopics struct {
	topics    []domain.Topic
	known     map[string]bool
	subsKnown map[string]bool
}

func (f *fakeTopics) ActiveByProject(domain.Context, string) ([]domain.Topic, error) {
	return f.topics, nil
}

func (f *fakeTopics) TopicExists(_ domain.Context, uuid string) (bool, error) {
	return f.known[uuid], nil
}

func (f *fakeTopics) SubTopicExists(_ domain.Context, uuid string) (bool, error) {
	return f.subsKnown[uuid], nil
}

type fakeClassifier struct {
	payloads []domain.ClassifierPayload
	result   domain.ClassifierResult
	err      error
	failures int
}

func (f *fakeClassifier) Classify(_ domain.Context, p domain.ClassifierPayload) (domain.ClassifierResult, error) {
	f.payloads = append(f.payloads, p)
	if f.failures > 0 {
		f.failures--
		return domain.ClassifierResult{}, fmt.Errorf("transient")
	}
	return f.result, f.err
}

type fakeClassRepo struct {
	saved []domain.Classification
}

func (f *fakeClassRepo) Upsert(_ domain.Context, c domain.Classification) error {
	f.saved = append(f.saved, c)
	return nil
}

func (f *fakeClassRepo) GetByConversation(domain.Context, string) (domain.Classification, error) {
	return domain.Classification{}, domain.ErrNotFound
}

type fakeQueue struct {
	mu      sync.Mutex
	batches [][]domain.RawMessage
	deleted [][]domain.RawMessage
	cancel  context.CancelFunc
}

func (f *fakeQueue) Receive(ctx domain.Context) ([]domain.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		if f.cancel != nil {
			f.cancel()
		}
		return nil, ctx.Err()
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func (f *fakeQueue) DeleteBatch(_ domain.Context, msgs []domain.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, msgs)
	return nil
}

func (f *fakeQueue) Delete(domain.Context, string) error { return nil }
