package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jonathan/newsroom/internal/processing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	mu       sync.Mutex
	articles map[string][]NewsArticle
	errs     map[string]error
	calls    []string
}

func (f *stubFetcher) FetchLatest(ctx context.Context, source NewsSource) ([]NewsArticle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, source.ID)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.errs[source.ID]; err != nil {
		return nil, err
	}
	return f.articles[source.ID], nil
}

type persistCall struct {
	actor    uuid.UUID
	sourceID string
	count    int
}

type stubPersister struct {
	calls []persistCall
	err   error
}

func (p *stubPersister) PersistArticles(_ context.Context, actor uuid.UUID, sourceID string, articles []NewsArticle) (int, error) {
	if actor == uuid.Nil {
		return 0, ErrUnauthenticated
	}
	if p.err != nil {
		return 0, p.err
	}
	p.calls = append(p.calls, persistCall{actor: actor, sourceID: sourceID, count: len(articles)})
	return len(articles), nil
}

type recordingNotifier struct {
	successes []string
	errors    []string
	cancelled int
}

func (n *recordingNotifier) NotifySuccess(m string) { n.successes = append(n.successes, m) }
func (n *recordingNotifier) NotifyError(m string)   { n.errors = append(n.errors, m) }
func (n *recordingNotifier) NotifyCancelled()       { n.cancelled++ }

func stagesOf(t *processing.Tracker) *[]processing.Stage {
	var stages []processing.Stage
	t.Subscribe(func(s processing.Status) { stages = append(stages, s.Stage) })
	return &stages
}

func TestIngest_Success(t *testing.T) {
	fetcher := &stubFetcher{articles: map[string][]NewsArticle{
		"g1": {{Title: "A"}, {Title: "B", Link: "https://g1.example/b"}},
	}}
	persister := &stubPersister{}
	notifier := &recordingNotifier{}
	tracker := processing.NewTracker(nil)
	stages := stagesOf(tracker)
	actor := uuid.New()

	svc := NewService(fetcher, persister, nil)
	result, err := svc.Ingest(context.Background(), actor, NewsSource{ID: "g1", URL: "https://g1.example"}, tracker, notifier)
	require.NoError(t, err)

	assert.Equal(t, &Result{Sources: 1, Fetched: 2, Persisted: 2}, result)
	assert.Equal(t, []persistCall{{actor: actor, sourceID: "g1", count: 2}}, persister.calls)
	assert.Equal(t, processing.StageCompleted, tracker.Status().Stage)
	assert.Equal(t, 100, tracker.Status().Progress)
	assert.Equal(t, []string{"2 notícias importadas com sucesso."}, notifier.successes)
	assert.Empty(t, notifier.errors)
	assert.Equal(t, processing.StageUploading, (*stages)[0])
	assert.Contains(t, *stages, processing.StageExtracting)
	assert.Contains(t, *stages, processing.StageOrganizing)
}

func TestIngest_UnauthenticatedSurfacesError(t *testing.T) {
	fetcher := &stubFetcher{articles: map[string][]NewsArticle{"s": {{Title: "A"}}}}
	notifier := &recordingNotifier{}
	tracker := processing.NewTracker(nil)

	svc := NewService(fetcher, &stubPersister{}, nil)
	_, err := svc.Ingest(context.Background(), uuid.Nil, NewsSource{ID: "s"}, tracker, notifier)

	require.ErrorIs(t, err, ErrUnauthenticated)
	status := tracker.Status()
	assert.Equal(t, processing.StageError, status.Stage)
	assert.Equal(t, ErrUnauthenticated.Error(), status.Error)
	assert.Equal(t, []string{ErrUnauthenticated.Error()}, notifier.errors)
}

func TestIngest_PersistenceFailurePassedThrough(t *testing.T) {
	persistErr := &PersistenceError{Reason: "insert failed", Cause: errors.New("duplicate key")}
	fetcher := &stubFetcher{articles: map[string][]NewsArticle{"s": {{Title: "A"}}}}
	notifier := &recordingNotifier{}

	svc := NewService(fetcher, &stubPersister{err: persistErr}, nil)
	_, err := svc.Ingest(context.Background(), uuid.New(), NewsSource{ID: "s"}, processing.NewTracker(nil), notifier)

	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []string{persistErr.Error()}, notifier.errors)
}

func TestIngest_FetchFailure(t *testing.T) {
	fetcher := &stubFetcher{errs: map[string]error{"s": &FetchError{URL: "https://hook", StatusCode: 502}}}
	persister := &stubPersister{}
	notifier := &recordingNotifier{}
	tracker := processing.NewTracker(nil)

	svc := NewService(fetcher, persister, nil)
	_, err := svc.Ingest(context.Background(), uuid.New(), NewsSource{ID: "s"}, tracker, notifier)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Empty(t, persister.calls)
	assert.Equal(t, processing.StageError, tracker.Status().Stage)
	assert.Equal(t, 10, tracker.Status().Progress)
	require.Len(t, notifier.errors, 1)
	assert.Contains(t, notifier.errors[0], "HTTP 502")
}

func TestIngest_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	notifier := &recordingNotifier{}
	tracker := processing.NewTracker(nil)
	svc := NewService(&stubFetcher{}, &stubPersister{}, nil)

	_, err := svc.Ingest(ctx, uuid.New(), NewsSource{ID: "s"}, tracker, notifier)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, notifier.cancelled)
	assert.Empty(t, notifier.errors)
	assert.Equal(t, processing.StageIdle, tracker.Status().Stage)
}

func TestIngest_NoArticles(t *testing.T) {
	persister := &stubPersister{}
	notifier := &recordingNotifier{}
	tracker := processing.NewTracker(nil)

	svc := NewService(&stubFetcher{}, persister, nil)
	result, err := svc.Ingest(context.Background(), uuid.New(), NewsSource{ID: "s"}, tracker, notifier)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Persisted)
	assert.Empty(t, persister.calls)
	assert.Equal(t, processing.StageCompleted, tracker.Status().Stage)
	assert.Len(t, notifier.successes, 1)
}

func TestRun_MultipleSources(t *testing.T) {
	fetcher := &stubFetcher{articles: map[string][]NewsArticle{
		"a": {{Title: "1"}},
		"b": {{Title: "2"}, {Title: "3"}},
		"c": nil,
	}}
	persister := &stubPersister{}
	tracker := processing.NewTracker(nil)
	var progress []int
	tracker.Subscribe(func(s processing.Status) { progress = append(progress, s.Progress) })

	svc := NewService(fetcher, persister, nil)
	svc.SetConcurrency(2)
	result, err := svc.Run(context.Background(), Job{
		Actor:    uuid.New(),
		Sources:  []NewsSource{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Progress: tracker,
		Notifier: &recordingNotifier{},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Sources)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 3, result.Persisted)
	assert.Len(t, persister.calls, 2, "empty batches are not persisted")
	assert.ElementsMatch(t, []string{"a", "b", "c"}, fetcher.calls)
	assert.IsNonDecreasing(t, progress)
}

func TestRun_NoSources(t *testing.T) {
	svc := NewService(&stubFetcher{}, &stubPersister{}, nil)
	_, err := svc.Run(context.Background(), Job{})
	assert.Error(t, err)
}
