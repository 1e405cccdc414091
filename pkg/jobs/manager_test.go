package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/emberq/emberq/pkg/observability/logger"
)

// recordingStore captures QueueStore calls so manager tests can assert that
// validation failures never reach the store.
type recordingStore struct {
	adds  []AddOptions
	bulks [][]BulkItem

	pauseCalls  []string
	resumeCalls []string
	clearCalls  []string
	closeCalls  int
}

func (r *recordingStore) Add(_ context.Context, jobName string, _ json.RawMessage, opts AddOptions) (string, error) {
	r.adds = append(r.adds, opts)
	return NewJobID(), nil
}

func (r *recordingStore) AddBulk(_ context.Context, items []BulkItem) ([]string, error) {
	r.bulks = append(r.bulks, items)
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = NewJobID()
	}
	return ids, nil
}

func (r *recordingStore) FailedJobs(context.Context, string, int) ([]FailedJob, error) {
	return nil, nil
}
func (r *recordingStore) RetryJob(context.Context, string, string) (bool, error)  { return false, nil }
func (r *recordingStore) RetryAllFailed(context.Context, string) (int, error)     { return 0, nil }
func (r *recordingStore) RemoveJob(context.Context, string, string) (bool, error) { return false, nil }
func (r *recordingStore) Stats(context.Context, string) ([]QueueStats, error)     { return nil, nil }

func (r *recordingStore) PauseQueue(_ context.Context, queue string) error {
	r.pauseCalls = append(r.pauseCalls, queue)
	return nil
}

func (r *recordingStore) ResumeQueue(_ context.Context, queue string) error {
	r.resumeCalls = append(r.resumeCalls, queue)
	return nil
}

func (r *recordingStore) ClearQueue(_ context.Context, queue string) error {
	r.clearCalls = append(r.clearCalls, queue)
	return nil
}

func (r *recordingStore) Close() error {
	r.closeCalls++
	return nil
}

func mustDefineEmailJob(t *testing.T) *JobDefinition {
	t.Helper()
	schema, err := SchemaOf[welcomeEmailPayload]()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	def, err := Define(JobDefinitionConfig{
		Name:    "email.welcome",
		Schema:  schema,
		Handler: noopHandler,
		Queue:   "mail",
	})
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	return def
}

func TestQueueManager_DispatchValidatesBeforeStoreMutation(t *testing.T) {
	store := &recordingStore{}
	manager, err := NewQueueManager(store, logger.Nop())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	def := mustDefineEmailJob(t)

	_, err = manager.Dispatch(context.Background(), def, map[string]any{
		"user_id": "not-a-number",
		"address": "a@b.test",
	}, DispatchOptions{})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("dispatch invalid payload = %v, want ErrValidation", err)
	}
	if len(store.adds) != 0 {
		t.Errorf("store mutated %d times by an invalid dispatch, want 0", len(store.adds))
	}

	id, err := manager.Dispatch(context.Background(), def, welcomeEmailPayload{UserID: 1, Address: "a@b.test"}, DispatchOptions{})
	if err != nil {
		t.Fatalf("dispatch valid payload: %v", err)
	}
	if id == "" {
		t.Error("dispatch returned empty id")
	}
	if len(store.adds) != 1 {
		t.Fatalf("store adds = %d, want 1", len(store.adds))
	}
}

func TestQueueManager_QueueAndDelayResolution(t *testing.T) {
	store := &recordingStore{}
	manager, err := NewQueueManager(store, logger.Nop())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	def := mustDefineEmailJob(t)
	payload := welcomeEmailPayload{UserID: 1, Address: "a@b.test"}

	// Definition queue applies when dispatch is silent.
	if _, err := manager.Dispatch(context.Background(), def, payload, DispatchOptions{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := store.adds[0].Queue; got != "mail" {
		t.Errorf("queue = %q, want definition queue %q", got, "mail")
	}

	// Dispatch queue wins over the definition.
	if _, err := manager.Dispatch(context.Background(), def, payload, DispatchOptions{Queue: "urgent"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := store.adds[1].Queue; got != "urgent" {
		t.Errorf("queue = %q, want dispatch queue %q", got, "urgent")
	}

	// Duration strings and plain seconds both resolve through ParseDelay.
	if _, err := manager.Dispatch(context.Background(), def, payload, DispatchOptions{Delay: "5m"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := store.adds[2].Delay; got != 5*time.Minute {
		t.Errorf("delay = %v, want 5m", got)
	}
	if _, err := manager.Dispatch(context.Background(), def, payload, DispatchOptions{Delay: 10}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := store.adds[3].Delay; got != 10*time.Second {
		t.Errorf("delay = %v, want 10s", got)
	}

	// A malformed delay fails before the store is touched.
	before := len(store.adds)
	if _, err := manager.Dispatch(context.Background(), def, payload, DispatchOptions{Delay: "soon"}); err == nil {
		t.Error("malformed delay accepted")
	}
	if len(store.adds) != before {
		t.Errorf("store mutated by a malformed delay")
	}
}

func TestQueueManager_DispatchBatchAllOrNothing(t *testing.T) {
	store := &recordingStore{}
	manager, err := NewQueueManager(store, logger.Nop())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	def := mustDefineEmailJob(t)

	items := []any{
		welcomeEmailPayload{UserID: 1, Address: "a@b.test"},
		map[string]any{"user_id": "invalid", "address": "b@c.test"},
		welcomeEmailPayload{UserID: 3, Address: "c@d.test"},
	}
	ids, err := manager.DispatchBatch(context.Background(), def, items, DispatchOptions{})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("batch with invalid item = %v, want ErrValidation", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %d, want 0", len(ids))
	}
	if len(store.bulks) != 0 {
		t.Errorf("store received %d bulk calls from an invalid batch, want 0", len(store.bulks))
	}

	ids, err = manager.DispatchBatch(context.Background(), def, []any{
		welcomeEmailPayload{UserID: 1, Address: "a@b.test"},
		welcomeEmailPayload{UserID: 2, Address: "b@c.test"},
	}, DispatchOptions{})
	if err != nil {
		t.Fatalf("valid batch: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("ids = %d, want 2", len(ids))
	}

	empty, err := manager.DispatchBatch(context.Background(), def, nil, DispatchOptions{})
	if err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("empty batch ids = %d, want 0", len(empty))
	}
}

func TestQueueManager_DispatchOptionsMergeOverDefinition(t *testing.T) {
	store := &recordingStore{}
	manager, err := NewQueueManager(store, logger.Nop())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	def, err := Define(JobDefinitionConfig{
		Name:    "report.nightly",
		Handler: noopHandler,
		Options: JobOptions{Attempts: 5, RemoveOnComplete: Keep()},
	})
	if err != nil {
		t.Fatalf("define: %v", err)
	}

	if _, err := manager.Dispatch(context.Background(), def, map[string]any{}, DispatchOptions{
		Options: JobOptions{Attempts: 1},
	}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	got := store.adds[0].Options
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 (dispatch wins)", got.Attempts)
	}
	if got.RemoveOnComplete.Discards() || got.RemoveOnComplete.IsZero() {
		t.Errorf("removeOnComplete lost the definition's Keep")
	}
}

func TestQueueManager_Delegation(t *testing.T) {
	store := &recordingStore{}
	manager, err := NewQueueManager(store, logger.Nop())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	ctx := context.Background()

	if err := manager.PauseQueue(ctx, "q"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := manager.ResumeQueue(ctx, "q"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := manager.ClearQueue(ctx, "q"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := manager.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(store.pauseCalls) != 1 || len(store.resumeCalls) != 1 || len(store.clearCalls) != 1 || store.closeCalls != 1 {
		t.Errorf("delegation counts = %d/%d/%d/%d, want 1 each",
			len(store.pauseCalls), len(store.resumeCalls), len(store.clearCalls), store.closeCalls)
	}
}

func TestWorkerManager_RegisterDrivesDefinitionThroughStore(t *testing.T) {
	store := NewMemoryStore(logger.Nop())
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	qm, err := NewQueueManager(store, logger.Nop())
	if err != nil {
		t.Fatalf("queue manager: %v", err)
	}
	wm, err := NewWorkerManager(store, logger.Nop())
	if err != nil {
		t.Fatalf("worker manager: %v", err)
	}

	var processed []int
	def, err := Define(JobDefinitionConfig{
		Name:   "email.welcome",
		Schema: MustSchemaOf[welcomeEmailPayload](),
		Handler: func(_ context.Context, job *JobContext) error {
			var payload welcomeEmailPayload
			if err := job.Bind(&payload); err != nil {
				return err
			}
			processed = append(processed, payload.UserID)
			return nil
		},
		Queue: "mail",
	})
	if err != nil {
		t.Fatalf("define: %v", err)
	}

	if err := wm.RegisterAll([]*JobDefinition{def}); err != nil {
		t.Fatalf("register all: %v", err)
	}

	if _, err := qm.Dispatch(ctx, def, welcomeEmailPayload{UserID: 7, Address: "x@y.test"}, DispatchOptions{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := wm.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if len(processed) != 1 || processed[0] != 7 {
		t.Errorf("processed = %v, want [7]", processed)
	}

	wm.Stop() // never fails, redundant stop is a no-op
	wm.Stop()
	if err := wm.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := wm.Close(); err != nil {
		t.Fatalf("redundant close: %v", err)
	}
}

func TestWorkerManager_RegisterRejectsNilDefinition(t *testing.T) {
	wm, err := NewWorkerManager(NewMemoryStore(logger.Nop()), logger.Nop())
	if err != nil {
		t.Fatalf("worker manager: %v", err)
	}
	if err := wm.Register(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("register nil = %v, want ErrInvalidArgument", err)
	}
}
