package workspace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxwork/voxwork/internal/events"
	"github.com/voxwork/voxwork/internal/infrastructure/logging"
	"github.com/voxwork/voxwork/internal/shared/types"
)

type savedCall struct {
	projectID string
	tabs      []types.Tab
}

type fakeSaver struct {
	mu    sync.Mutex
	calls []savedCall
	err   error
}

func (f *fakeSaver) SaveTabs(_ context.Context, projectID string, tabs []types.Tab) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, savedCall{projectID: projectID, tabs: append([]types.Tab(nil), tabs...)})
	return nil
}

func (f *fakeSaver) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSaver) saved() []savedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]savedCall(nil), f.calls...)
}

type fakeBeacon struct {
	mu    sync.Mutex
	calls []savedCall
}

func (f *fakeBeacon) SendTabs(projectID string, tabs []types.Tab) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, savedCall{projectID: projectID, tabs: tabs})
}

func (f *fakeBeacon) sent() []savedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]savedCall(nil), f.calls...)
}

func testConfig() Config {
	return Config{
		GraceWindow:  120 * time.Millisecond,
		Debounce:     20 * time.Millisecond,
		SavedDisplay: 40 * time.Millisecond,
		WriteTimeout: time.Second,
	}
}

func newTestEngine(saver *fakeSaver) *Engine {
	return NewEngine(saver, events.NewBus(), logging.NewNop()).WithConfig(testConfig())
}

func testProject(tabs ...types.Tab) types.Project {
	return types.Project{ID: "proj-1", Name: "Notes", SuiteID: "writing", Tabs: tabs}
}

func canonicalTab(name string) types.Tab {
	return types.Tab{ID: uuid.New().String(), Name: name, Kind: types.KindMarkdown}
}

func TestMutationsDuringGraceWindowCoalesceIntoOneSave(t *testing.T) {
	saver := &fakeSaver{}
	e := newTestEngine(saver)
	e.Load(testProject(canonicalTab("a")), "")

	// Several mutations inside the grace window. None may save early.
	_, err := e.AddTab("b", types.KindMarkdown)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = e.AddTab("c", types.KindCSV)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond) // still well inside the grace window
	assert.Empty(t, saver.saved(), "no save inside the grace window")

	require.Eventually(t, func() bool {
		return len(saver.saved()) == 1
	}, time.Second, 5*time.Millisecond)

	calls := saver.saved()
	require.Len(t, calls, 1)
	assert.Equal(t, "proj-1", calls[0].projectID)
	assert.Len(t, calls[0].tabs, 3)
}

func TestDebounceRestartsOutsideGraceWindow(t *testing.T) {
	saver := &fakeSaver{}
	e := newTestEngine(saver)
	e.Load(testProject(canonicalTab("a")), "")
	time.Sleep(150 * time.Millisecond) // leave the grace window

	tab, err := e.AddTab("b", types.KindMarkdown)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, e.RenameTab(tab.ID, "b2")) // restarts the debounce
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, e.SetContent(tab.ID, "hello"))

	require.Eventually(t, func() bool {
		return len(saver.saved()) == 1
	}, time.Second, 5*time.Millisecond)

	calls := saver.saved()
	assert.Equal(t, "b2", calls[0].tabs[1].Name)
	assert.Equal(t, "hello", calls[0].tabs[1].Content)
}

func TestLoadCancelsDeferredSaveOfPreviousProject(t *testing.T) {
	saver := &fakeSaver{}
	e := newTestEngine(saver)
	e.Load(testProject(canonicalTab("a")), "")

	_, err := e.AddTab("orphan", types.KindMarkdown)
	require.NoError(t, err)

	// A second load arrives before the deferred save fires.
	next := types.Project{ID: "proj-2", Name: "Other", Tabs: []types.Tab{canonicalTab("x")}}
	e.Load(next, "")

	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, saver.saved(), "superseded save must never write stale tabs")
	assert.Equal(t, "proj-2", e.ProjectID())
}

func TestForceSaveIsIdempotentOnFingerprint(t *testing.T) {
	saver := &fakeSaver{}
	e := newTestEngine(saver)
	e.Load(testProject(canonicalTab("a")), "")

	// Fresh load matches the persisted snapshot: nothing to write.
	require.NoError(t, e.ForceSave(context.Background()))
	assert.Empty(t, saver.saved())

	_, err := e.AddTab("b", types.KindMarkdown)
	require.NoError(t, err)
	require.NoError(t, e.ForceSave(context.Background()))
	require.Len(t, saver.saved(), 1)

	// Unchanged workspace: the repeat call is a no-op.
	require.NoError(t, e.ForceSave(context.Background()))
	assert.Len(t, saver.saved(), 1)
}

func TestSaveErrorIsStickyUntilRetry(t *testing.T) {
	saver := &fakeSaver{}
	e := newTestEngine(saver)
	e.Load(testProject(canonicalTab("a")), "")

	saver.fail(errors.New("store unavailable"))
	_, err := e.AddTab("b", types.KindMarkdown)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return e.Status().State == types.SaveError
	}, time.Second, 5*time.Millisecond)

	// The error outlives the saved-display window; only a retry clears it.
	time.Sleep(80 * time.Millisecond)
	status := e.Status()
	assert.Equal(t, types.SaveError, status.State)
	assert.Contains(t, status.Error, "store unavailable")

	saver.fail(nil)
	require.NoError(t, e.ForceSave(context.Background()))
	assert.Equal(t, types.SaveSaved, e.Status().State)

	// Saved auto-reverts to idle.
	require.Eventually(t, func() bool {
		return e.Status().State == types.SaveIdle
	}, time.Second, 5*time.Millisecond)
}

func TestLoadReidentifiesNonCanonicalTabsAndRepointsSelection(t *testing.T) {
	saver := &fakeSaver{}
	e := newTestEngine(saver)

	legacy := types.Tab{ID: "tab-legacy-7", Name: "Imported", Kind: types.KindMarkdown}
	ok := canonicalTab("Kept")
	e.Load(testProject(ok, legacy), legacy.ID)

	tabs := e.Tabs()
	require.Len(t, tabs, 2)
	assert.Equal(t, ok.ID, tabs[0].ID)
	assert.NotEqual(t, legacy.ID, tabs[1].ID)
	_, uuidErr := uuid.Parse(tabs[1].ID)
	assert.NoError(t, uuidErr, "re-identified tab must carry a canonical id")
	assert.Equal(t, tabs[1].ID, e.SelectedID(), "selection follows the replacement id")
}

func TestSelectionFallsBackToFirstTab(t *testing.T) {
	saver := &fakeSaver{}
	e := newTestEngine(saver)

	a, b := canonicalTab("a"), canonicalTab("b")
	e.Load(testProject(a, b), "missing-id")
	assert.Equal(t, a.ID, e.SelectedID())

	require.NoError(t, e.SelectTab(b.ID))
	require.NoError(t, e.DeleteTab(b.ID))
	assert.Equal(t, a.ID, e.SelectedID())
}

func TestSelectTabDoesNotScheduleSave(t *testing.T) {
	saver := &fakeSaver{}
	e := newTestEngine(saver)
	a, b := canonicalTab("a"), canonicalTab("b")
	e.Load(testProject(a, b), a.ID)

	require.NoError(t, e.SelectTab(b.ID))
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, saver.saved(), "selection is UI state only")
}

func TestReorderValidatesPermutation(t *testing.T) {
	saver := &fakeSaver{}
	e := newTestEngine(saver)
	a, b, c := canonicalTab("a"), canonicalTab("b"), canonicalTab("c")
	e.Load(testProject(a, b, c), "")

	require.Error(t, e.Reorder([]string{a.ID, b.ID}))
	require.Error(t, e.Reorder([]string{a.ID, b.ID, "nope"}))
	require.Error(t, e.Reorder([]string{a.ID, a.ID, b.ID}))

	require.NoError(t, e.Reorder([]string{c.ID, a.ID, b.ID}))
	tabs := e.Tabs()
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, []string{tabs[0].ID, tabs[1].ID, tabs[2].ID})
}

func TestMutatorsRejectUnknownTab(t *testing.T) {
	saver := &fakeSaver{}
	e := newTestEngine(saver)
	e.Load(testProject(canonicalTab("a")), "")

	assert.ErrorIs(t, e.RenameTab("nope", "x"), ErrTabNotFound)
	assert.ErrorIs(t, e.SetContent("nope", "x"), ErrTabNotFound)
	assert.ErrorIs(t, e.DeleteTab("nope"), ErrTabNotFound)
	assert.ErrorIs(t, e.SelectTab("nope"), ErrTabNotFound)

	_, err := e.AddTab("b", types.KindMarkdown)
	assert.NoError(t, err)
}

func TestAddTabRequiresLoadedProject(t *testing.T) {
	e := newTestEngine(&fakeSaver{})
	_, err := e.AddTab("b", types.KindMarkdown)
	assert.ErrorIs(t, err, ErrNoProject)
}

func TestBeaconFiresOnlyWhenDirty(t *testing.T) {
	saver := &fakeSaver{}
	beacon := &fakeBeacon{}
	e := newTestEngine(saver).WithBeacon(beacon)
	e.Load(testProject(canonicalTab("a")), "")

	e.FlushBeacon()
	assert.Empty(t, beacon.sent(), "clean workspace needs no beacon")

	_, err := e.AddTab("b", types.KindMarkdown)
	require.NoError(t, err)
	e.FlushBeacon()

	sent := beacon.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "proj-1", sent[0].projectID)
	assert.Len(t, sent[0].tabs, 2)
}

func TestSaveStatusEventsReachSubscribers(t *testing.T) {
	saver := &fakeSaver{}
	bus := events.NewBus()
	e := NewEngine(saver, bus, logging.NewNop()).WithConfig(testConfig())

	ch, cancel := bus.Subscribe(events.TopicSaveStatus)
	defer cancel()

	e.Load(testProject(canonicalTab("a")), "")
	_, err := e.AddTab("b", types.KindMarkdown)
	require.NoError(t, err)

	var states []types.SaveState
	deadline := time.After(time.Second)
	for len(states) < 3 {
		select {
		case ev := <-ch:
			status, ok := ev.Payload.(types.SaveStatus)
			require.True(t, ok)
			states = append(states, status.State)
		case <-deadline:
			t.Fatalf("timed out, got states %v", states)
		}
	}

	assert.Equal(t, types.SaveIdle, states[0], "load publishes idle")
	assert.Equal(t, types.SaveSaving, states[1])
	assert.Equal(t, types.SaveSaved, states[2])
}
