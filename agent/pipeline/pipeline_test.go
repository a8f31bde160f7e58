package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
	statex "github.com/sjin4861/deepcatch-agent/agent/state"
	toolx "github.com/sjin4861/deepcatch-agent/agent/tool"
)

var testNow = time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

type fakeServices struct {
	businesses   []contractx.Business
	businessErr  error
	startCallSID string
	startCallErr error
	startCalls   int
	weather      contractx.WeatherReport
	weatherErr   error
	catchReport  contractx.CatchReport
	catchErr     error
}

func (f *fakeServices) LoadPlan(ctx context.Context, sessionID string) (statex.PlanSnapshot, error) {
	return statex.PlanSnapshot{}, nil
}

func (f *fakeServices) SavePlan(ctx context.Context, sessionID string, plan statex.PlanSnapshot) error {
	return nil
}

func (f *fakeServices) ListBusinesses(ctx context.Context, filter contractx.BusinessFilter) ([]contractx.Business, error) {
	if f.businessErr != nil {
		return nil, f.businessErr
	}
	return f.businesses, nil
}

func (f *fakeServices) StartCall(ctx context.Context, plan statex.PlanSnapshot, business contractx.Business) (string, error) {
	f.startCalls++
	if f.startCallErr != nil {
		return "", f.startCallErr
	}
	return f.startCallSID, nil
}

func (f *fakeServices) WeatherForecast(ctx context.Context, date string) (contractx.WeatherReport, error) {
	if f.weatherErr != nil {
		return contractx.WeatherReport{}, f.weatherErr
	}
	return f.weather, nil
}

func (f *fakeServices) CatchStats(ctx context.Context) (contractx.CatchReport, error) {
	if f.catchErr != nil {
		return contractx.CatchReport{}, f.catchErr
	}
	return f.catchReport, nil
}

type failingComposer struct{}

func (failingComposer) Compose(ctx context.Context, req contractx.ComposeRequest) (string, error) {
	return "", contractx.ErrComposerUnavailable
}

func newTestPipeline(t *testing.T, store statex.Store, services contractx.Services, composer contractx.Composer) *Pipeline {
	t.Helper()

	registry, err := toolx.DefaultRegistry(nil)
	if err != nil {
		t.Fatalf("DefaultRegistry() error = %v", err)
	}
	p, err := New(store, services, registry, composer)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	p.now = func() time.Time { return testNow }
	return p
}

func seedCompletePlan(t *testing.T, store statex.Store, business string) {
	t.Helper()

	st := statex.NewConversationState("s1", testNow)
	st.Plan = statex.PlanSnapshot{
		PlanID:       "p1",
		Date:         "2025-10-11",
		Participants: 3,
		FishingType:  "boat",
		Budget:       "200000",
		Gear:         "on-site rental",
		Transport:    "car",
	}
	st.Stage = statex.StageReady
	st.PreferredBusiness = business
	st.RecomputeMissing()
	if err := store.Save(context.Background(), st); err != nil {
		t.Fatalf("seed Save() error = %v", err)
	}
}

func TestHandleMessageInvalidInput(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, statex.NewMemoryStore(), &fakeServices{}, nil)

	_, err := p.HandleMessage(context.Background(), contractx.ChatRequest{SessionID: "  ", Message: "hi"})
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	_, err = p.HandleMessage(context.Background(), contractx.ChatRequest{SessionID: "s1", Message: "  "})
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestFirstTurnCollectsPlanAndAsksForMissing(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	p := newTestPipeline(t, store, &fakeServices{}, nil)

	resp, err := p.HandleMessage(context.Background(), contractx.ChatRequest{
		SessionID: "s1",
		Message:   "Oct 11, 2 adults 1 child, budget 200000",
	})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if !strings.Contains(resp.Message, "fishing type") || !strings.Contains(resp.Message, "transportation") {
		t.Fatalf("reply should ask for the two missing fields, got %q", resp.Message)
	}
	if len(resp.ToolResults) != 1 || resp.ToolResults[0].ID != "plan-update" {
		t.Fatalf("unexpected tool results: %+v", resp.ToolResults)
	}
	if resp.CallSuggested {
		t.Fatal("call must not be suggested for an incomplete plan")
	}

	st, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load() after turn error = %v", err)
	}
	want := []string{statex.FieldFishingType, statex.FieldTransport}
	if len(st.Missing) != len(want) || st.Missing[0] != want[0] || st.Missing[1] != want[1] {
		t.Fatalf("persisted missing = %v, want %v", st.Missing, want)
	}
	if len(st.Messages) != 2 {
		t.Fatalf("expected user+assistant messages, got %d", len(st.Messages))
	}
	if st.Messages[1].Role != statex.RoleAssistant {
		t.Fatalf("second message role = %q", st.Messages[1].Role)
	}
}

func TestFirstTurnWeatherQuestionStillExtractsPlan(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	services := &fakeServices{
		weather: contractx.WeatherReport{TargetDate: "2025-10-11", Summary: "calm"},
	}
	p := newTestPipeline(t, store, services, nil)

	resp, err := p.HandleMessage(context.Background(), contractx.ChatRequest{
		SessionID: "s1",
		Message:   "how is the weather on 2025-10-11 for 3 people?",
	})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	ids := make(map[string]bool, len(resp.ToolResults))
	for _, tr := range resp.ToolResults {
		ids[tr.ID] = true
	}
	if !ids["plan-update"] {
		t.Fatalf("the planner must run on a brand-new session, results %+v", resp.ToolResults)
	}
	if !ids["weather-2025-10-11"] {
		t.Fatalf("expected the weather result, got %+v", resp.ToolResults)
	}

	st, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.Plan.Participants != 3 {
		t.Fatalf("participants = %d, want 3", st.Plan.Participants)
	}
	if st.Plan.Date != "2025-10-11" {
		t.Fatalf("date = %q, want 2025-10-11", st.Plan.Date)
	}
}

func TestCompletingPlanSuggestsCall(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	p := newTestPipeline(t, store, &fakeServices{}, nil)

	if _, err := p.HandleMessage(context.Background(), contractx.ChatRequest{
		SessionID: "s1",
		Message:   "Oct 11, 2 adults 1 child, budget 200000",
	}); err != nil {
		t.Fatalf("first turn error = %v", err)
	}

	resp, err := p.HandleMessage(context.Background(), contractx.ChatRequest{
		SessionID: "s1",
		Message:   "boat fishing, we'll drive there",
	})
	if err != nil {
		t.Fatalf("second turn error = %v", err)
	}

	if !resp.CallSuggested {
		t.Fatalf("completing the plan should suggest the call, reply %q", resp.Message)
	}
	if !strings.Contains(resp.Message, "2025-10-11") && !strings.Contains(resp.Message, "Oct 11") {
		t.Fatalf("reply should summarize the plan, got %q", resp.Message)
	}
}

func TestQueuedBusinessConfirmationAsksNextTurn(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	p := newTestPipeline(t, store, &fakeServices{}, nil)

	if _, err := p.HandleMessage(context.Background(), contractx.ChatRequest{
		SessionID: "s1",
		Message:   "Oct 11, 2 adults 1 child, boat fishing, budget 200000, we'll drive",
	}); err != nil {
		t.Fatalf("first turn error = %v", err)
	}

	resp, err := p.HandleMessage(context.Background(), contractx.ChatRequest{
		SessionID: "s1",
		Message:   "thanks!",
	})
	if err != nil {
		t.Fatalf("second turn error = %v", err)
	}
	if !strings.Contains(resp.Message, "Which business") {
		t.Fatalf("the queued confirmation should surface as the business question, got %q", resp.Message)
	}
	if resp.CallSuggested {
		t.Fatal("the business question replaces the call offer")
	}
}

func TestNewPlanInputDropsQueuedFollowUps(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	p := newTestPipeline(t, store, &fakeServices{}, nil)

	if _, err := p.HandleMessage(context.Background(), contractx.ChatRequest{
		SessionID: "s1",
		Message:   "Oct 11, 2 adults 1 child, boat fishing, budget 200000, we'll drive",
	}); err != nil {
		t.Fatalf("first turn error = %v", err)
	}

	// No planner keyword here; the extracted changes alone must supersede
	// the confirmation queued last turn.
	resp, err := p.HandleMessage(context.Background(), contractx.ChatRequest{
		SessionID: "s1",
		Message:   "Oct 12 instead, 4 people",
	})
	if err != nil {
		t.Fatalf("second turn error = %v", err)
	}
	if strings.Contains(resp.Message, "Which business") {
		t.Fatalf("superseded follow-up must not drive the reply, got %q", resp.Message)
	}
	if !resp.CallSuggested {
		t.Fatal("the revised complete plan should still suggest the call")
	}

	st, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.Plan.Date != "Oct 12" || st.Plan.Participants != 4 {
		t.Fatalf("revised plan not applied: date=%q participants=%d", st.Plan.Date, st.Plan.Participants)
	}
}

func TestCallRequestWithoutBusinessAsksToPick(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	seedCompletePlan(t, store, "")
	p := newTestPipeline(t, store, &fakeServices{}, nil)

	resp, err := p.HandleMessage(context.Background(), contractx.ChatRequest{
		SessionID: "s1",
		Message:   "call them",
	})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !strings.Contains(resp.Message, "Which business") {
		t.Fatalf("expected business question, got %q", resp.Message)
	}
	if resp.CallSuggested {
		t.Fatal("callSuggested must stay false when the call was requested this turn")
	}
}

func TestCallPlacedOnceAcrossTurns(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	seedCompletePlan(t, store, "Haeun Fishing")
	services := &fakeServices{
		businesses:   []contractx.Business{{ID: 1, Name: "Haeun Fishing", Phone: "+82-51-000-0000"}},
		startCallSID: "CA123",
	}
	p := newTestPipeline(t, store, services, nil)

	if _, err := p.HandleMessage(context.Background(), contractx.ChatRequest{
		SessionID: "s1", Message: "call them",
	}); err != nil {
		t.Fatalf("first call turn error = %v", err)
	}
	if _, err := p.HandleMessage(context.Background(), contractx.ChatRequest{
		SessionID: "s1", Message: "call them again",
	}); err != nil {
		t.Fatalf("second call turn error = %v", err)
	}

	if services.startCalls != 1 {
		t.Fatalf("expected exactly one outbound call, got %d", services.startCalls)
	}

	st, _ := store.Load(context.Background(), "s1")
	if st.Plan.CallSID != "CA123" {
		t.Fatalf("persisted call sid = %q", st.Plan.CallSID)
	}
	if st.Stage != statex.StageCalling {
		t.Fatalf("stage = %q, want calling", st.Stage)
	}
}

func TestCapabilityFailureStillProducesReply(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	seedCompletePlan(t, store, "")
	p := newTestPipeline(t, store, &fakeServices{weatherErr: errors.New("api down")}, nil)

	resp, err := p.HandleMessage(context.Background(), contractx.ChatRequest{
		SessionID: "s1",
		Message:   "how is the weather?",
	})
	if err != nil {
		t.Fatalf("a capability failure must not fail the turn: %v", err)
	}
	if resp.Message == "" {
		t.Fatal("reply must not be empty")
	}
	if len(resp.ToolResults) == 0 {
		t.Fatal("expected the failed result in the pass output")
	}
	failed, _ := resp.ToolResults[0].Metadata["error"].(bool)
	if !failed {
		t.Fatalf("result should be flagged as failed: %+v", resp.ToolResults[0])
	}
}

func TestComposerFailureFallsBackToTemplate(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	p := newTestPipeline(t, store, &fakeServices{}, failingComposer{})

	resp, err := p.HandleMessage(context.Background(), contractx.ChatRequest{
		SessionID: "s1",
		Message:   "Oct 11, 2 adults 1 child, budget 200000",
	})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if resp.Message == "" {
		t.Fatal("fallback reply must not be empty")
	}
	if !strings.Contains(resp.Message, "fishing type") {
		t.Fatalf("fallback should ask for missing fields, got %q", resp.Message)
	}
}

func TestRequestedOrderIsVisibleInResults(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	services := &fakeServices{
		weather: contractx.WeatherReport{TargetDate: "2025-10-11", Summary: "calm"},
	}
	p := newTestPipeline(t, store, services, nil)

	resp, err := p.HandleMessage(context.Background(), contractx.ChatRequest{
		SessionID: "s1",
		Message:   "weather for Oct 11, budget 200000 for 3 people",
	})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(resp.ToolResults) < 2 {
		t.Fatalf("expected weather and planner results, got %+v", resp.ToolResults)
	}
	if resp.ToolResults[0].ToolName != statex.ActionWeather {
		t.Fatalf("weather was requested first and must run first, got %q", resp.ToolResults[0].ToolName)
	}
	if resp.ToolResults[1].ID != "plan-update" {
		t.Fatalf("planner result should follow, got %q", resp.ToolResults[1].ID)
	}
}

func TestToolResultUpsertAcrossTurns(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	services := &fakeServices{
		weather: contractx.WeatherReport{TargetDate: "2025-10-11", Summary: "calm"},
	}
	p := newTestPipeline(t, store, services, nil)

	for i := 0; i < 2; i++ {
		if _, err := p.HandleMessage(context.Background(), contractx.ChatRequest{
			SessionID: "s1",
			Message:   "weather for 2025-10-11 please, 3 people budget 200000",
		}); err != nil {
			t.Fatalf("turn %d error = %v", i+1, err)
		}
	}

	st, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	count := 0
	for _, tr := range st.ToolResults {
		if tr.ID == "weather-2025-10-11" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("same-fact result must be upserted, found %d entries", count)
	}
}

type brokenStore struct {
	*statex.MemoryStore
	loadErr error
	saveErr error
}

func (b *brokenStore) Load(ctx context.Context, sessionID string) (*statex.ConversationState, error) {
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return b.MemoryStore.Load(ctx, sessionID)
}

func (b *brokenStore) Save(ctx context.Context, st *statex.ConversationState) error {
	if b.saveErr != nil {
		return b.saveErr
	}
	return b.MemoryStore.Save(ctx, st)
}

func TestStorageFailureDegradesInsteadOfFailing(t *testing.T) {
	t.Parallel()

	store := &brokenStore{
		MemoryStore: statex.NewMemoryStore(),
		loadErr:     errors.New("connection refused"),
		saveErr:     errors.New("connection refused"),
	}
	p := newTestPipeline(t, store, &fakeServices{}, nil)

	resp, err := p.HandleMessage(context.Background(), contractx.ChatRequest{
		SessionID: "s1",
		Message:   "Oct 11, 2 adults 1 child, budget 200000",
	})
	if err != nil {
		t.Fatalf("storage failure must not fail the turn: %v", err)
	}
	if resp.Message == "" {
		t.Fatal("reply must not be empty")
	}
	if len(resp.ToolResults) == 0 {
		t.Fatal("the pass should still run capabilities on the ephemeral state")
	}
}

// slowCapability holds the pass open long enough for a concurrent turn to
// pile up, and records whether two executions ever ran at once.
type slowCapability struct {
	inFlight int32
	overlaps int32
	runs     int32
}

func (s *slowCapability) Name() string                           { return "slow" }
func (s *slowCapability) Priority() int                          { return 50 }
func (s *slowCapability) AppliesTo(rc contractx.RunContext) bool { return true }

func (s *slowCapability) Execute(ctx context.Context, rc contractx.RunContext) (contractx.Output, error) {
	if !atomic.CompareAndSwapInt32(&s.inFlight, 0, 1) {
		atomic.AddInt32(&s.overlaps, 1)
	}
	time.Sleep(30 * time.Millisecond)
	atomic.StoreInt32(&s.inFlight, 0)
	atomic.AddInt32(&s.runs, 1)
	return contractx.Output{}, nil
}

func TestSameSessionTurnsDoNotInterleave(t *testing.T) {
	t.Parallel()

	slow := &slowCapability{}
	registry, err := toolx.NewRegistry(slow)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	store := statex.NewMemoryStore()
	p, err := New(store, &fakeServices{}, registry, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	p.now = func() time.Time { return testNow }

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.HandleMessage(context.Background(), contractx.ChatRequest{
				SessionID: "s1",
				Message:   "hello",
			}); err != nil {
				t.Errorf("HandleMessage() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&slow.overlaps); n != 0 {
		t.Fatalf("two passes for one session ran concurrently %d time(s)", n)
	}
	if n := atomic.LoadInt32(&slow.runs); n != 2 {
		t.Fatalf("expected 2 capability runs, got %d", n)
	}

	st, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(st.Messages) != 4 {
		t.Fatalf("expected both turns fully recorded, got %d messages", len(st.Messages))
	}
}

func TestReconcileCallEventThroughPipeline(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	seedCompletePlan(t, store, "Haeun Fishing")
	p := newTestPipeline(t, store, &fakeServices{}, nil)

	err := p.ReconcileCallEvent(context.Background(), contractx.CallEvent{
		SessionID: "s1",
		Type:      contractx.CallEventCompleted,
		Status:    "reservation confirmed",
	})
	if err != nil {
		t.Fatalf("ReconcileCallEvent() error = %v", err)
	}

	st, _ := store.Load(context.Background(), "s1")
	if st.Plan.CallStatus != "completed" || st.Stage != statex.StageCompleted {
		t.Fatalf("event not folded in: status=%q stage=%q", st.Plan.CallStatus, st.Stage)
	}
}
