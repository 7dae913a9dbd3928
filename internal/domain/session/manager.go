package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voxwork/voxwork/internal/events"
	"github.com/voxwork/voxwork/internal/infrastructure/logging"
	"github.com/voxwork/voxwork/internal/infrastructure/monitoring"
	"github.com/voxwork/voxwork/internal/prefs"
	"github.com/voxwork/voxwork/internal/shared/types"
	"github.com/voxwork/voxwork/internal/suite"
	"github.com/voxwork/voxwork/internal/transcript"
	"github.com/voxwork/voxwork/internal/transport"
)

var (
	ErrNoProject = errors.New("no active project")
	ErrNoSession = errors.New("no working session")
)

// SessionStore is the slice of the backend store the manager depends on.
type SessionStore interface {
	FetchCredential(ctx context.Context) (types.Credential, error)
	LatestWorkingSession(ctx context.Context, projectID string) (*types.WorkingSession, error)
	CreateWorkingSession(ctx context.Context, projectID, suiteID string) (*types.WorkingSession, error)
	SaveTranscript(ctx context.Context, sessionID string, msgs []types.Message) error
	SaveNamedCopy(ctx context.Context, sessionID, name string) (*types.WorkingSession, error)
}

// TabContext supplies the workspace snapshot bound into the transport at
// connect time.
type TabContext interface {
	TabMeta() []types.TabMeta
}

// Config holds connect-time parameters.
type Config struct {
	HandshakeTimeout time.Duration
	// FinalSaveTimeout bounds the best-effort transcript save on disconnect.
	FinalSaveTimeout time.Duration
	Guardrails       []string
}

// DefaultConfig returns production connect parameters.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		FinalSaveTimeout: 2 * time.Second,
		Guardrails:       []string{"no_medical_advice", "no_financial_advice"},
	}
}

// Manager drives the connection state machine.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	transport   transport.Capability
	store       SessionStore
	transcripts *transcript.Store
	prefs       *prefs.Store
	suites      *suite.Catalog
	workspace   TabContext
	bus         *events.Bus
	log         *logging.Logger
	metrics     *monitoring.Metrics

	state   types.ConnectionState
	current *types.WorkingSession
	active  *types.Project

	// boundProjectID is the project the live transport's context snapshot was
	// taken from. Recorded at connect, consulted on every project switch.
	boundProjectID string

	// gen invalidates an in-flight connect when a disconnect or a newer
	// connect supersedes it.
	gen uint64

	muted     bool
	speaking  bool
	recording bool
}

// NewManager creates a session lifecycle manager in the disconnected state.
func NewManager(t transport.Capability, store SessionStore, transcripts *transcript.Store, settings *prefs.Store, suites *suite.Catalog, ws TabContext, bus *events.Bus, log *logging.Logger) *Manager {
	return &Manager{
		cfg:         DefaultConfig(),
		transport:   t,
		store:       store,
		transcripts: transcripts,
		prefs:       settings,
		suites:      suites,
		workspace:   ws,
		bus:         bus,
		log:         log.Named("session"),
		state:       types.StateDisconnected,
	}
}

// WithConfig overrides the connect parameters.
func (m *Manager) WithConfig(cfg Config) *Manager {
	m.cfg = cfg
	return m
}

// WithMetrics adds metrics tracking to the manager.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// State returns the connection state.
func (m *Manager) State() types.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns a copy of the working session record, or nil.
func (m *Manager) Current() *types.WorkingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	cp := *m.current
	return &cp
}

// SetActiveProject records the active project. If the transport is bound to
// a different project, the connection is forced down with a visible notice:
// the context snapshot the agent operates on was taken from the old project
// and cannot be rebound live.
func (m *Manager) SetActiveProject(project types.Project) {
	m.mu.Lock()
	bound := m.boundProjectID
	stale := m.state != types.StateDisconnected &&
		bound != "" &&
		bound != project.ID
	m.active = &project
	m.mu.Unlock()

	if !stale {
		return
	}
	m.log.Info("project switched while connected, forcing disconnect",
		zap.String("bound_project_id", bound),
		zap.String("new_project_id", project.ID))
	if err := m.Disconnect(context.Background()); err != nil {
		m.log.Warn("forced disconnect failed", zap.Error(err))
	}
	m.bus.Publish(events.TopicNotice, types.Notice{
		Level:   "warning",
		Message: "Voice session ended: the assistant was connected to a different project.",
	})
}

// Connect brings the transport up for the active project. A call in any
// state other than disconnected is a no-op. Credential failure aborts and
// reverts; the caller decides whether to try again.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state != types.StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	if m.active == nil {
		m.mu.Unlock()
		return ErrNoProject
	}
	project := *m.active
	m.gen++
	gen := m.gen
	m.setStateLocked(types.StateConnecting)
	muted := m.muted
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ConnectAttempts.Inc()
	}

	cred, err := m.store.FetchCredential(ctx)
	if err != nil {
		m.failConnect(gen, "credential", err)
		return err
	}

	suiteID := project.SuiteID
	if suiteID == "" {
		suiteID = m.prefs.Get().SuiteID
	}
	params := transport.ConnectParams{
		Credential: cred.Value,
		Graph:      m.suites.Graph(suiteID),
		Guardrails: m.cfg.Guardrails,
		TabContext: m.workspace.TabMeta(),
		Codec:      m.prefs.Get().Codec,
		Muted:      muted,
	}

	hctx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	defer cancel()
	if err := m.transport.Connect(hctx, params); err != nil {
		m.failConnect(gen, "handshake", err)
		return err
	}

	m.mu.Lock()
	if gen != m.gen {
		// A disconnect raced the handshake; tear the late connection down
		// before any bookkeeping can touch the current session.
		m.mu.Unlock()
		if err := m.transport.Disconnect(context.Background()); err != nil {
			m.log.Warn("teardown of superseded connection failed", zap.Error(err))
		}
		return nil
	}
	m.mu.Unlock()

	// Bookkeeping below is best-effort: the conversation works without it.
	m.resume(ctx, project, gen)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if err := m.transport.Disconnect(context.Background()); err != nil {
			m.log.Warn("teardown of superseded connection failed", zap.Error(err))
		}
		return nil
	}
	m.boundProjectID = project.ID
	m.setStateLocked(types.StateConnected)
	muted = m.muted
	m.mu.Unlock()

	// Reapply mute unconditionally: the toggle may have flipped while the
	// handshake was in flight.
	if err := m.transport.SetMuted(muted); err != nil {
		m.log.Warn("mute reapply failed", zap.Error(err))
	}

	m.log.Info("connected",
		zap.String("project_id", project.ID),
		zap.String("suite_id", suiteID))
	return nil
}

// resume binds the manager to the project's most recent unsaved working
// session, creating one only when none exists. Every failure here is logged
// and swallowed, but a failure must never leave another project's session
// as current: the transcript would accumulate this project's turns and the
// disconnect save would write them into the wrong record. Commits are
// generation-guarded so a superseded connect cannot touch the bookkeeping.
func (m *Manager) resume(ctx context.Context, project types.Project, gen uint64) {
	ws, err := m.store.LatestWorkingSession(ctx, project.ID)
	if err != nil {
		m.log.Warn("working session lookup failed, continuing without record",
			zap.String("project_id", project.ID),
			zap.Error(err))
		m.dropForeignSession(project.ID, gen)
		return
	}

	if ws != nil {
		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.current = ws
		m.transcripts.Replace(ws.Transcript)
		m.mu.Unlock()
		m.log.Info("resumed working session",
			zap.String("session_id", ws.ID),
			zap.Int("transcript_len", len(ws.Transcript)))
		return
	}

	created, err := m.store.CreateWorkingSession(ctx, project.ID, project.SuiteID)
	if err != nil {
		m.log.Warn("working session create failed, continuing without record",
			zap.String("project_id", project.ID),
			zap.Error(err))
		m.dropForeignSession(project.ID, gen)
		return
	}
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.current = created
	m.transcripts.Reset()
	m.mu.Unlock()
	m.log.Info("created working session", zap.String("session_id", created.ID))
}

// dropForeignSession clears the current session and transcript when they
// belong to a different project than the one being connected. A same-project
// record survives a failed refresh; a foreign one must not.
func (m *Manager) dropForeignSession(projectID string, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	if m.current == nil || m.current.ProjectID == projectID {
		return
	}
	m.log.Warn("dropping working session bound to another project",
		zap.String("session_id", m.current.ID),
		zap.String("session_project_id", m.current.ProjectID),
		zap.String("project_id", projectID))
	m.current = nil
	m.transcripts.Reset()
}

// Disconnect tears the connection down. The working session stays resumable;
// its transcript gets one best-effort save that races teardown rather than
// gating it. The state always lands on disconnected, even when the transport
// teardown fails.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == types.StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.gen++
	sessionID := ""
	if m.current != nil {
		sessionID = m.current.ID
	}
	m.speaking = false
	m.recording = false
	m.setStateLocked(types.StateDisconnected)
	m.mu.Unlock()

	if sessionID != "" {
		msgs := m.transcripts.Messages(true)
		go func() {
			sctx, cancel := context.WithTimeout(context.Background(), m.cfg.FinalSaveTimeout)
			defer cancel()
			if err := m.store.SaveTranscript(sctx, sessionID, msgs); err != nil {
				m.log.Warn("final transcript save failed",
					zap.String("session_id", sessionID),
					zap.Error(err))
			}
		}()
	}

	if err := m.transport.Disconnect(ctx); err != nil {
		m.log.Warn("transport teardown failed", zap.Error(err))
	}
	m.log.Info("disconnected")
	return nil
}

// SetMuted records the mute toggle and applies it to a live connection
// immediately. Connect reapplies it after every transition to connected, so
// a toggle during the handshake is never lost.
func (m *Manager) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	connected := m.state == types.StateConnected
	m.mu.Unlock()

	if !connected {
		return
	}
	if err := m.transport.SetMuted(muted); err != nil {
		m.log.Warn("mute apply failed", zap.Error(err))
	}
}

// Muted returns the mute toggle.
func (m *Manager) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// SetCodec persists the codec preference. The transport negotiates codec
// only at setup, so a change while not disconnected demands a full reload
// with the new codec carried in the navigable state.
func (m *Manager) SetCodec(codec string) error {
	if _, err := m.prefs.Update(func(s *prefs.Settings) {
		s.Codec = codec
	}); err != nil {
		return err
	}

	m.mu.Lock()
	live := m.state != types.StateDisconnected
	m.mu.Unlock()
	if live {
		m.bus.Publish(events.TopicReload, map[string]string{"codec": codec})
	}
	return nil
}

// SetSpeaking flags the push-to-talk active speaker. Ephemeral; cleared on
// disconnect.
func (m *Manager) SetSpeaking(on bool) {
	m.mu.Lock()
	m.speaking = on
	m.mu.Unlock()
}

// SetRecording flags an active recording. Ephemeral; cleared on disconnect.
func (m *Manager) SetRecording(on bool) {
	m.mu.Lock()
	m.recording = on
	m.mu.Unlock()
}

// Flags returns the ephemeral UI flags.
func (m *Manager) Flags() (speaking, recording bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaking, m.recording
}

// SaveConversation persists the live transcript and then a user-named saved
// copy. The working session itself stays unsaved and keeps accumulating.
func (m *Manager) SaveConversation(ctx context.Context, name string) (*types.WorkingSession, error) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil, ErrNoSession
	}
	sessionID := m.current.ID
	m.mu.Unlock()

	if err := m.store.SaveTranscript(ctx, sessionID, m.transcripts.Messages(true)); err != nil {
		return nil, err
	}
	return m.store.SaveNamedCopy(ctx, sessionID, name)
}

// NewConversation abandons the current working session and starts a fresh
// one for the active project with an empty transcript.
func (m *Manager) NewConversation(ctx context.Context) (*types.WorkingSession, error) {
	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		return nil, ErrNoProject
	}
	project := *m.active
	m.mu.Unlock()

	created, err := m.store.CreateWorkingSession(ctx, project.ID, project.SuiteID)
	if err != nil {
		return nil, err
	}

	m.transcripts.Reset()
	m.mu.Lock()
	m.current = created
	m.mu.Unlock()
	return created, nil
}

// failConnect reverts a failed connect attempt unless a newer operation
// already owns the state.
func (m *Manager) failConnect(gen uint64, stage string, err error) {
	if m.metrics != nil {
		m.metrics.ConnectFailures.WithLabelValues(stage).Inc()
	}
	m.log.Warn("connect failed",
		zap.String("stage", stage),
		zap.Error(err))

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.setStateLocked(types.StateDisconnected)
}

// setStateLocked must be called with the lock held.
func (m *Manager) setStateLocked(state types.ConnectionState) {
	m.state = state
	m.bus.Publish(events.TopicConnection, state)
	if m.metrics != nil {
		switch state {
		case types.StateDisconnected:
			m.metrics.SetConnectionState(0)
		case types.StateConnecting:
			m.metrics.SetConnectionState(1)
		case types.StateConnected:
			m.metrics.SetConnectionState(2)
		}
	}
}
