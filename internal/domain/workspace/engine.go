package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voxwork/voxwork/internal/events"
	"github.com/voxwork/voxwork/internal/infrastructure/logging"
	"github.com/voxwork/voxwork/internal/infrastructure/monitoring"
	"github.com/voxwork/voxwork/internal/shared/id"
	"github.com/voxwork/voxwork/internal/shared/types"
)

var (
	ErrNoProject   = errors.New("no project loaded")
	ErrTabNotFound = errors.New("tab not found")
)

// TabSaver is the slice of the store client the engine writes through.
type TabSaver interface {
	SaveTabs(ctx context.Context, projectID string, tabs []types.Tab) error
}

// TabBeacon is the fire-and-forget delivery used on page hide/unload.
type TabBeacon interface {
	SendTabs(projectID string, tabs []types.Tab)
}

// Config holds the autosave timings.
type Config struct {
	// GraceWindow defers saves scheduled right after a load.
	GraceWindow time.Duration
	// Debounce is the quiescence period outside the grace window.
	Debounce time.Duration
	// SavedDisplay is how long "saved" shows before reverting to idle.
	SavedDisplay time.Duration
	// WriteTimeout bounds a single store write.
	WriteTimeout time.Duration
}

// DefaultConfig returns production timings.
func DefaultConfig() Config {
	return Config{
		GraceWindow:  300 * time.Millisecond,
		Debounce:     100 * time.Millisecond,
		SavedDisplay: 2 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Engine is the workspace autosave engine. One instance per process; the
// tab collection is mutated only through its verbs.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	store   TabSaver
	beacon  TabBeacon
	bus     *events.Bus
	log     *logging.Logger
	metrics *monitoring.Metrics

	projectID  string
	tabs       []types.Tab
	selectedID string
	status     types.SaveStatus
	loadedAt   time.Time
	lastSaved  string

	// epoch increments on every load; a pending save captured under an
	// older epoch is superseded and must not write.
	epoch   uint64
	pending *time.Timer
	revert  *time.Timer
}

// NewEngine creates an autosave engine.
func NewEngine(store TabSaver, bus *events.Bus, log *logging.Logger) *Engine {
	return &Engine{
		cfg:    DefaultConfig(),
		store:  store,
		bus:    bus,
		log:    log.Named("workspace"),
		status: types.SaveStatus{State: types.SaveIdle, UpdatedAt: time.Now()},
	}
}

// WithConfig overrides the autosave timings.
func (e *Engine) WithConfig(cfg Config) *Engine {
	e.cfg = cfg
	return e
}

// WithBeacon adds the unload delivery path.
func (e *Engine) WithBeacon(beacon TabBeacon) *Engine {
	e.beacon = beacon
	return e
}

// WithMetrics adds metrics tracking to the engine.
func (e *Engine) WithMetrics(metrics *monitoring.Metrics) *Engine {
	e.metrics = metrics
	return e
}

// Load replaces the in-memory tab collection with the project's persisted
// tabs. Non-canonical tab ids are re-identified and the selected-tab
// reference follows its replacement. Any save pending for the previous
// project is cancelled outright.
func (e *Engine) Load(project types.Project, selectedTabID string) {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.epoch++
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}

	tabs := make([]types.Tab, len(project.Tabs))
	for i, tab := range project.Tabs {
		canonical, replaced := id.CanonicalTabID(tab.ID)
		if replaced {
			e.log.Info("re-identified non-canonical tab",
				zap.String("project_id", project.ID),
				zap.String("old_id", tab.ID),
				zap.String("new_id", canonical))
			if selectedTabID == tab.ID {
				selectedTabID = canonical
			}
			tab.ID = canonical
		}
		tabs[i] = tab
	}

	e.projectID = project.ID
	e.tabs = tabs
	e.loadedAt = now

	e.selectedID = ""
	for _, tab := range tabs {
		if tab.ID == selectedTabID {
			e.selectedID = selectedTabID
			break
		}
	}
	if e.selectedID == "" && len(tabs) > 0 {
		e.selectedID = tabs[0].ID
	}

	// The loaded snapshot is by definition what the store holds.
	if fp, err := Fingerprint(tabs); err == nil {
		e.lastSaved = fp
	}
	e.setStatusLocked(types.SaveIdle, "")
}

// AddTab appends a new empty tab and selects it.
func (e *Engine) AddTab(name string, kind types.TabKind) (types.Tab, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.projectID == "" {
		return types.Tab{}, ErrNoProject
	}

	tab := types.Tab{ID: id.NewTabID(), Name: name, Kind: kind}
	e.tabs = append(e.tabs, tab)
	e.selectedID = tab.ID
	e.scheduleLocked()
	return tab, nil
}

// RenameTab renames a tab by id.
func (e *Engine) RenameTab(tabID, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.tabs {
		if e.tabs[i].ID == tabID {
			e.tabs[i].Name = name
			e.scheduleLocked()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
}

// SetContent replaces a tab's content.
func (e *Engine) SetContent(tabID, content string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.tabs {
		if e.tabs[i].ID == tabID {
			e.tabs[i].Content = content
			e.scheduleLocked()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
}

// DeleteTab removes a tab; a deleted selection falls back to the first tab.
func (e *Engine) DeleteTab(tabID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.tabs {
		if e.tabs[i].ID == tabID {
			e.tabs = append(e.tabs[:i], e.tabs[i+1:]...)
			if e.selectedID == tabID {
				e.selectedID = ""
				if len(e.tabs) > 0 {
					e.selectedID = e.tabs[0].ID
				}
			}
			e.scheduleLocked()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
}

// Reorder rearranges tabs to the given id order, which must be a
// permutation of the current collection.
func (e *Engine) Reorder(ids []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(ids) != len(e.tabs) {
		return fmt.Errorf("reorder needs %d ids, got %d", len(e.tabs), len(ids))
	}
	byID := make(map[string]types.Tab, len(e.tabs))
	for _, tab := range e.tabs {
		byID[tab.ID] = tab
	}

	next := make([]types.Tab, 0, len(ids))
	for _, tabID := range ids {
		tab, ok := byID[tabID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
		}
		delete(byID, tabID)
		next = append(next, tab)
	}

	e.tabs = next
	e.scheduleLocked()
	return nil
}

// SelectTab moves the selected-tab reference. Selection is UI state, not
// document state; it does not schedule a save.
func (e *Engine) SelectTab(tabID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, tab := range e.tabs {
		if tab.ID == tabID {
			e.selectedID = tabID
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
}

// Tabs returns a copy of the tab collection.
func (e *Engine) Tabs() []types.Tab {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.Tab(nil), e.tabs...)
}

// TabMeta returns the lightweight snapshot bound into the transport context.
func (e *Engine) TabMeta() []types.TabMeta {
	e.mu.Lock()
	defer e.mu.Unlock()

	meta := make([]types.TabMeta, len(e.tabs))
	for i, tab := range e.tabs {
		meta[i] = tab.Meta()
	}
	return meta
}

// SelectedID returns the selected tab id.
func (e *Engine) SelectedID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectedID
}

// ProjectID returns the loaded project id.
func (e *Engine) ProjectID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.projectID
}

// Status returns the current save status.
func (e *Engine) Status() types.SaveStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// ForceSave bypasses the debounce and writes synchronously. Used for the
// explicit retry action and by shutdown paths that can afford to wait.
// A clean fingerprint match issues no write at all.
func (e *Engine) ForceSave(ctx context.Context) error {
	e.mu.Lock()
	if e.projectID == "" {
		e.mu.Unlock()
		return nil
	}
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}

	epoch := e.epoch
	projectID := e.projectID
	tabs := append([]types.Tab(nil), e.tabs...)
	fp, err := Fingerprint(tabs)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if fp == e.lastSaved {
		e.mu.Unlock()
		return nil
	}
	e.setStatusLocked(types.SaveSaving, "")
	e.mu.Unlock()

	return e.write(ctx, epoch, projectID, tabs, fp)
}

// FlushBeacon fires the unload delivery when the workspace is dirty. It
// returns immediately; the beacon races against teardown.
func (e *Engine) FlushBeacon() {
	e.mu.Lock()
	projectID := e.projectID
	tabs := append([]types.Tab(nil), e.tabs...)
	dirty := false
	if fp, err := Fingerprint(tabs); err == nil {
		dirty = fp != e.lastSaved
	}
	e.mu.Unlock()

	if projectID == "" || !dirty || e.beacon == nil {
		return
	}
	e.beacon.SendTabs(projectID, tabs)
}

// scheduleLocked arms the save timer. Within the grace window the deadline
// stays pinned to loadedAt+grace no matter how many mutations arrive;
// afterwards each mutation restarts the debounce.
func (e *Engine) scheduleLocked() {
	if e.pending != nil {
		e.pending.Stop()
	}

	delay := e.cfg.Debounce
	if since := time.Since(e.loadedAt); since < e.cfg.GraceWindow {
		delay = e.cfg.GraceWindow - since
	}

	epoch := e.epoch
	e.pending = time.AfterFunc(delay, func() {
		e.flush(epoch)
	})
}

// flush performs a scheduled save.
func (e *Engine) flush(epoch uint64) {
	e.mu.Lock()
	if epoch != e.epoch {
		// A load superseded this project; the write would carry stale data.
		e.mu.Unlock()
		return
	}
	e.pending = nil
	projectID := e.projectID
	tabs := append([]types.Tab(nil), e.tabs...)
	fp, err := Fingerprint(tabs)
	if err != nil {
		e.log.Error("fingerprint failed", zap.Error(err))
		e.mu.Unlock()
		return
	}
	if fp == e.lastSaved {
		e.mu.Unlock()
		return
	}
	e.setStatusLocked(types.SaveSaving, "")
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.WriteTimeout)
	defer cancel()
	if err := e.write(ctx, epoch, projectID, tabs, fp); err != nil {
		e.log.Warn("autosave failed",
			zap.String("project_id", projectID),
			zap.Error(err))
	}
}

// write performs the store call and settles status under the same epoch.
func (e *Engine) write(ctx context.Context, epoch uint64, projectID string, tabs []types.Tab, fp string) error {
	start := time.Now()
	err := e.store.SaveTabs(ctx, projectID, tabs)

	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch {
		// State was replaced while the write was in flight; whatever
		// happened no longer describes the current project.
		return err
	}

	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordSave("error", time.Since(start))
		}
		e.setStatusLocked(types.SaveError, err.Error())
		return err
	}

	if e.metrics != nil {
		e.metrics.RecordSave("ok", time.Since(start))
	}
	e.lastSaved = fp
	e.setStatusLocked(types.SaveSaved, "")

	if e.revert != nil {
		e.revert.Stop()
	}
	e.revert = time.AfterFunc(e.cfg.SavedDisplay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.status.State == types.SaveSaved {
			e.setStatusLocked(types.SaveIdle, "")
		}
	})
	return nil
}

// setStatusLocked must be called with the lock held.
func (e *Engine) setStatusLocked(state types.SaveState, msg string) {
	e.status = types.SaveStatus{State: state, Error: msg, UpdatedAt: time.Now()}
	e.bus.Publish(events.TopicSaveStatus, e.status)
}
