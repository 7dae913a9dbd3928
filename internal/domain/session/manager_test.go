package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxwork/voxwork/internal/events"
	"github.com/voxwork/voxwork/internal/infrastructure/logging"
	"github.com/voxwork/voxwork/internal/prefs"
	"github.com/voxwork/voxwork/internal/shared/types"
	"github.com/voxwork/voxwork/internal/suite"
	"github.com/voxwork/voxwork/internal/transcript"
	"github.com/voxwork/voxwork/internal/transport"
)

type fakeTransport struct {
	mu            sync.Mutex
	connected     bool
	params        []transport.ConnectParams
	muteCalls     []bool
	disconnects   int
	connectErr    error
	disconnectErr error

	// When set, Connect signals started and blocks until release closes.
	started chan struct{}
	release chan struct{}
}

func (f *fakeTransport) Connect(_ context.Context, params transport.ConnectParams) error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.params = append(f.params, params)
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
	return f.disconnectErr
}

func (f *fakeTransport) SendText(_ context.Context, _ string) error { return nil }

func (f *fakeTransport) SetMuted(muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muteCalls = append(f.muteCalls, muted)
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) lastParams() transport.ConnectParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params[len(f.params)-1]
}

func (f *fakeTransport) mutes() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.muteCalls...)
}

type fakeStore struct {
	mu          sync.Mutex
	credErr     error
	latest      *types.WorkingSession
	latestErr   error
	createErr   error
	createCount int
	transcripts map[string][]types.Message
	copies      []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{transcripts: make(map[string][]types.Message)}
}

func (f *fakeStore) FetchCredential(_ context.Context) (types.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.credErr != nil {
		return types.Credential{}, f.credErr
	}
	return types.Credential{Value: "ek_test_secret"}, nil
}

func (f *fakeStore) LatestWorkingSession(_ context.Context, _ string) (*types.WorkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	if f.latest == nil {
		return nil, nil
	}
	cp := *f.latest
	return &cp, nil
}

func (f *fakeStore) CreateWorkingSession(_ context.Context, projectID, suiteID string) (*types.WorkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createCount++
	return &types.WorkingSession{
		ID:        "sess_created",
		ProjectID: projectID,
		SuiteID:   suiteID,
	}, nil
}

func (f *fakeStore) SaveTranscript(_ context.Context, sessionID string, msgs []types.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts[sessionID] = append([]types.Message(nil), msgs...)
	return nil
}

func (f *fakeStore) SaveNamedCopy(_ context.Context, sessionID, name string) (*types.WorkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, name)
	return &types.WorkingSession{ID: "sess_copy", Name: name, IsSaved: true}, nil
}

func (f *fakeStore) savedTranscript(sessionID string) ([]types.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs, ok := f.transcripts[sessionID]
	return msgs, ok
}

type fakeWorkspace struct{}

func (fakeWorkspace) TabMeta() []types.TabMeta {
	return []types.TabMeta{{ID: "t1", Name: "Notes", Kind: types.KindMarkdown}}
}

type sessionFixture struct {
	manager   *Manager
	transport *fakeTransport
	store     *fakeStore
	msgs      *transcript.Store
	prefs     *prefs.Store
	bus       *events.Bus
}

var projectA = types.Project{ID: "proj-a", Name: "Alpha", SuiteID: "writing"}
var projectB = types.Project{ID: "proj-b", Name: "Beta", SuiteID: "writing"}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	settings, err := prefs.Open(filepath.Join(t.TempDir(), "prefs.toml"))
	require.NoError(t, err)

	f := &sessionFixture{
		transport: &fakeTransport{},
		store:     newFakeStore(),
		msgs:      transcript.NewStore(),
		prefs:     settings,
		bus:       events.NewBus(),
	}
	f.manager = NewManager(f.transport, f.store, f.msgs, f.prefs, suite.NewCatalog(), fakeWorkspace{}, f.bus, logging.NewNop()).
		WithConfig(Config{
			HandshakeTimeout: time.Second,
			FinalSaveTimeout: time.Second,
			Guardrails:       []string{"test_guardrail"},
		})
	f.manager.SetActiveProject(projectA)
	return f
}

func TestConnectResumesLatestWorkingSession(t *testing.T) {
	f := newSessionFixture(t)
	f.store.latest = &types.WorkingSession{
		ID:        "sess_existing",
		ProjectID: projectA.ID,
		Transcript: []types.Message{
			{ID: "m1", Role: types.RoleUser, Content: "hello"},
			{ID: "m2", Role: types.RoleAssistant, Content: "hi"},
		},
	}

	require.NoError(t, f.manager.Connect(context.Background()))

	assert.Equal(t, types.StateConnected, f.manager.State())
	current := f.manager.Current()
	require.NotNil(t, current)
	assert.Equal(t, "sess_existing", current.ID)
	assert.Equal(t, 2, f.msgs.Len(), "resumed transcript is loaded, not reset")
	assert.Equal(t, 0, f.store.createCount, "resumption must not create a duplicate")

	params := f.transport.lastParams()
	assert.Equal(t, "ek_test_secret", params.Credential)
	assert.Equal(t, "opus", params.Codec)
	assert.Equal(t, []string{"test_guardrail"}, params.Guardrails)
	require.Len(t, params.TabContext, 1)
	assert.Equal(t, "Notes", params.TabContext[0].Name)
	// Unknown suite id resolves to the legacy single-agent graph.
	assert.Equal(t, "legacy", params.Graph.ID)
}

func TestConnectCreatesSessionWhenNoneExists(t *testing.T) {
	f := newSessionFixture(t)
	f.msgs.Append(types.RoleUser, "stale", false)

	require.NoError(t, f.manager.Connect(context.Background()))

	current := f.manager.Current()
	require.NotNil(t, current)
	assert.Equal(t, "sess_created", current.ID)
	assert.Equal(t, 1, f.store.createCount)
	assert.Equal(t, 0, f.msgs.Len(), "fresh session starts with an empty transcript")
}

func TestConnectCredentialFailureReverts(t *testing.T) {
	f := newSessionFixture(t)
	f.store.credErr = errors.New("store down")

	err := f.manager.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.StateDisconnected, f.manager.State())
	assert.False(t, f.transport.Connected(), "handshake must not be attempted without a credential")

	// No auto-retry; an explicit re-invoke works once the store recovers.
	f.store.credErr = nil
	require.NoError(t, f.manager.Connect(context.Background()))
	assert.Equal(t, types.StateConnected, f.manager.State())
}

func TestConnectHandshakeFailureReverts(t *testing.T) {
	f := newSessionFixture(t)
	f.transport.connectErr = errors.New("gateway refused")

	err := f.manager.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.StateDisconnected, f.manager.State())
}

func TestConnectIsNoOpUnlessDisconnected(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.manager.Connect(context.Background()))
	require.NoError(t, f.manager.Connect(context.Background()))

	f.transport.mu.Lock()
	attempts := len(f.transport.params)
	f.transport.mu.Unlock()
	assert.Equal(t, 1, attempts)
}

func TestBookkeepingFailureDoesNotRollBackConnection(t *testing.T) {
	f := newSessionFixture(t)
	f.store.latestErr = errors.New("session index unavailable")

	require.NoError(t, f.manager.Connect(context.Background()))
	assert.Equal(t, types.StateConnected, f.manager.State())
	assert.Nil(t, f.manager.Current(), "no record, but the conversation proceeds")
}

func TestDisconnectSavesTranscriptAndFailsOpen(t *testing.T) {
	f := newSessionFixture(t)
	f.store.latest = &types.WorkingSession{ID: "sess_existing", ProjectID: projectA.ID}
	require.NoError(t, f.manager.Connect(context.Background()))

	f.msgs.Append(types.RoleUser, "note to self", false)
	f.msgs.Append(types.RoleUser, `[TIMER_HALFWAY: 50% complete, 5m remaining for "X"]`, true)

	f.transport.disconnectErr = errors.New("socket already gone")
	f.manager.SetSpeaking(true)
	f.manager.SetRecording(true)

	require.NoError(t, f.manager.Disconnect(context.Background()))
	assert.Equal(t, types.StateDisconnected, f.manager.State())

	speaking, recording := f.manager.Flags()
	assert.False(t, speaking)
	assert.False(t, recording)

	require.Eventually(t, func() bool {
		msgs, ok := f.store.savedTranscript("sess_existing")
		return ok && len(msgs) == 2
	}, time.Second, 5*time.Millisecond, "final save includes hidden tokens")

	// The working session stays resumable after disconnect.
	require.NoError(t, f.manager.Connect(context.Background()))
	current := f.manager.Current()
	require.NotNil(t, current)
	assert.Equal(t, "sess_existing", current.ID)
}

func TestProjectSwitchForcesDisconnectWithNotice(t *testing.T) {
	f := newSessionFixture(t)
	ch, cancel := f.bus.Subscribe(events.TopicNotice)
	defer cancel()

	require.NoError(t, f.manager.Connect(context.Background()))
	f.manager.SetActiveProject(projectB)

	assert.Equal(t, types.StateDisconnected, f.manager.State())
	assert.False(t, f.transport.Connected())

	select {
	case ev := <-ch:
		notice, ok := ev.Payload.(types.Notice)
		require.True(t, ok)
		assert.Equal(t, "warning", notice.Level)
	case <-time.After(time.Second):
		t.Fatal("expected a user-visible notice")
	}
}

func TestReselectingSameProjectKeepsConnection(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.manager.Connect(context.Background()))

	f.manager.SetActiveProject(projectA)
	assert.Equal(t, types.StateConnected, f.manager.State())
}

func TestMuteToggledDuringHandshakeIsReapplied(t *testing.T) {
	f := newSessionFixture(t)
	f.transport.started = make(chan struct{}, 1)
	f.transport.release = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- f.manager.Connect(context.Background()) }()

	<-f.transport.started
	assert.Equal(t, types.StateConnecting, f.manager.State())
	f.manager.SetMuted(true) // not connected yet, nothing applied
	assert.Empty(t, f.transport.mutes())

	close(f.transport.release)
	require.NoError(t, <-done)

	mutes := f.transport.mutes()
	require.NotEmpty(t, mutes)
	assert.True(t, mutes[len(mutes)-1], "mute state set during the handshake lands on the live connection")
}

func TestSetMutedAppliesImmediatelyWhenConnected(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.manager.Connect(context.Background()))

	before := len(f.transport.mutes())
	f.manager.SetMuted(true)
	mutes := f.transport.mutes()
	require.Len(t, mutes, before+1)
	assert.True(t, mutes[len(mutes)-1])
}

func TestSetCodecRequiresReloadOnlyWhenLive(t *testing.T) {
	f := newSessionFixture(t)
	ch, cancel := f.bus.Subscribe(events.TopicReload)
	defer cancel()

	require.NoError(t, f.manager.SetCodec("pcm16"))
	select {
	case ev := <-ch:
		t.Fatalf("no reload needed while disconnected: %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, "pcm16", f.prefs.Get().Codec)

	require.NoError(t, f.manager.Connect(context.Background()))
	require.NoError(t, f.manager.SetCodec("opus"))

	select {
	case ev := <-ch:
		payload, ok := ev.Payload.(map[string]string)
		require.True(t, ok)
		assert.Equal(t, "opus", payload["codec"])
	case <-time.After(time.Second):
		t.Fatal("expected a reload event")
	}
}

func TestSaveConversationPersistsNamedCopy(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.manager.SaveConversation(context.Background(), "standup notes")
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, f.manager.Connect(context.Background()))
	f.msgs.Append(types.RoleUser, "hello", false)

	saved, err := f.manager.SaveConversation(context.Background(), "standup notes")
	require.NoError(t, err)
	assert.True(t, saved.IsSaved)

	// The live working session keeps accumulating, unsaved.
	current := f.manager.Current()
	require.NotNil(t, current)
	assert.False(t, current.IsSaved)

	msgs, ok := f.store.savedTranscript(current.ID)
	require.True(t, ok)
	assert.Len(t, msgs, 1)
	assert.Equal(t, []string{"standup notes"}, f.store.copies)
}

func TestResumeFailureNeverKeepsAnotherProjectsSession(t *testing.T) {
	f := newSessionFixture(t)
	f.store.latest = &types.WorkingSession{
		ID:         "sess_a",
		ProjectID:  projectA.ID,
		Transcript: []types.Message{{ID: "m1", Role: types.RoleUser, Content: "alpha notes"}},
	}
	require.NoError(t, f.manager.Connect(context.Background()))
	require.NoError(t, f.manager.Disconnect(context.Background()))

	// Switch projects while disconnected, then reconnect with the session
	// index down. The old project's record must not stay current: its
	// transcript would absorb the new project's turns and the disconnect
	// save would write them into the wrong session.
	f.manager.SetActiveProject(projectB)
	f.store.latestErr = errors.New("session index unavailable")

	require.NoError(t, f.manager.Connect(context.Background()))
	assert.Equal(t, types.StateConnected, f.manager.State())
	assert.Nil(t, f.manager.Current())
	assert.Equal(t, 0, f.msgs.Len())
}

func TestResumeFailureKeepsSameProjectSession(t *testing.T) {
	f := newSessionFixture(t)
	f.store.latest = &types.WorkingSession{
		ID:         "sess_a",
		ProjectID:  projectA.ID,
		Transcript: []types.Message{{ID: "m1", Role: types.RoleUser, Content: "alpha notes"}},
	}
	require.NoError(t, f.manager.Connect(context.Background()))
	require.NoError(t, f.manager.Disconnect(context.Background()))

	// Same project, failed refresh: the record is still the right one.
	f.store.latestErr = errors.New("session index unavailable")
	require.NoError(t, f.manager.Connect(context.Background()))

	current := f.manager.Current()
	require.NotNil(t, current)
	assert.Equal(t, "sess_a", current.ID)
	assert.Equal(t, 1, f.msgs.Len())
}

func TestDisconnectDuringHandshakeSupersedesBookkeeping(t *testing.T) {
	f := newSessionFixture(t)
	f.store.latest = &types.WorkingSession{
		ID:         "sess_late",
		ProjectID:  projectA.ID,
		Transcript: []types.Message{{ID: "m1", Role: types.RoleUser, Content: "late"}},
	}
	f.transport.started = make(chan struct{}, 1)
	f.transport.release = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- f.manager.Connect(context.Background()) }()

	<-f.transport.started
	require.NoError(t, f.manager.Disconnect(context.Background()))
	close(f.transport.release)
	require.NoError(t, <-done)

	// The superseded connect must leave no trace: no current session, no
	// resumed transcript, no lingering connection.
	assert.Equal(t, types.StateDisconnected, f.manager.State())
	assert.Nil(t, f.manager.Current())
	assert.Equal(t, 0, f.msgs.Len())
	assert.False(t, f.transport.Connected())
}

func TestNewConversationResetsTranscript(t *testing.T) {
	f := newSessionFixture(t)
	f.store.latest = &types.WorkingSession{
		ID:         "sess_existing",
		ProjectID:  projectA.ID,
		Transcript: []types.Message{{ID: "m1", Role: types.RoleUser, Content: "old"}},
	}
	require.NoError(t, f.manager.Connect(context.Background()))
	require.Equal(t, 1, f.msgs.Len())

	created, err := f.manager.NewConversation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sess_created", created.ID)
	assert.Equal(t, 0, f.msgs.Len())

	current := f.manager.Current()
	require.NotNil(t, current)
	assert.Equal(t, "sess_created", current.ID)
}
