package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voxwork/voxwork/internal/domain/session"
	"github.com/voxwork/voxwork/internal/domain/timer"
	"github.com/voxwork/voxwork/internal/domain/workspace"
	"github.com/voxwork/voxwork/internal/infrastructure/logging"
	"github.com/voxwork/voxwork/internal/prefs"
	"github.com/voxwork/voxwork/internal/shared/types"
	"github.com/voxwork/voxwork/internal/store"
	"github.com/voxwork/voxwork/internal/suite"
	"github.com/voxwork/voxwork/internal/transcript"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	sessions    *session.Manager
	workspace   *workspace.Engine
	timers      *timer.Manager
	transcripts *transcript.Store
	prefs       *prefs.Store
	suites      *suite.Catalog
	store       *store.Client
	log         *logging.Logger
}

// NewHandlers creates a new handler set.
func NewHandlers(
	sessions *session.Manager,
	ws *workspace.Engine,
	timers *timer.Manager,
	transcripts *transcript.Store,
	settings *prefs.Store,
	suites *suite.Catalog,
	storeClient *store.Client,
	log *logging.Logger,
) *Handlers {
	return &Handlers{
		sessions:    sessions,
		workspace:   ws,
		timers:      timers,
		transcripts: transcripts,
		prefs:       settings,
		suites:      suites,
		store:       storeClient,
		log:         log.Named("api"),
	}
}

// Root handles the basic liveness check.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "voxwork",
	})
}

// Health reports each manager's status plus the store breaker.
func (h *Handlers) Health(c *gin.Context) {
	timerState, hasTimer := h.timers.Snapshot()
	body := gin.H{
		"status":        "healthy",
		"connection":    h.sessions.State(),
		"save_status":   h.workspace.Status(),
		"store_breaker": h.store.BreakerState().String(),
		"transcript":    gin.H{"messages": h.transcripts.Len()},
	}
	if hasTimer {
		body["timer"] = gin.H{
			"label":     timerState.Label,
			"status":    timerState.Status,
			"remaining": timerState.Remaining(time.Now()).Seconds(),
		}
	}
	c.JSON(http.StatusOK, body)
}

// Connect brings the voice session up for the active project.
func (h *Handlers) Connect(c *gin.Context) {
	if err := h.sessions.Connect(c.Request.Context()); err != nil {
		if errors.Is(err, session.ErrNoProject) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.sessions.State()})
}

// Disconnect tears the voice session down.
func (h *Handlers) Disconnect(c *gin.Context) {
	if err := h.sessions.Disconnect(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.sessions.State()})
}

// GetConnection reports the session state and its working session record.
func (h *Handlers) GetConnection(c *gin.Context) {
	speaking, recording := h.sessions.Flags()
	body := gin.H{
		"state":     h.sessions.State(),
		"muted":     h.sessions.Muted(),
		"speaking":  speaking,
		"recording": recording,
	}
	if current := h.sessions.Current(); current != nil {
		body["session"] = current
	}
	c.JSON(http.StatusOK, body)
}

type activateRequest struct {
	Project       types.Project `json:"project" binding:"required"`
	SelectedTabID string        `json:"selected_tab_id"`
}

// ActivateProject makes a project active: the session manager may force a
// disconnect, then the workspace loads the project's tabs.
func (h *Handlers) ActivateProject(c *gin.Context) {
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Project.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "project id is required"})
		return
	}

	h.sessions.SetActiveProject(req.Project)
	h.workspace.Load(req.Project, req.SelectedTabID)

	c.JSON(http.StatusOK, gin.H{
		"project_id":   req.Project.ID,
		"selected_tab": h.workspace.SelectedID(),
		"connection":   h.sessions.State(),
	})
}

// ListTabs returns the in-memory tab collection.
func (h *Handlers) ListTabs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"project_id":   h.workspace.ProjectID(),
		"tabs":         h.workspace.Tabs(),
		"selected_tab": h.workspace.SelectedID(),
		"save_status":  h.workspace.Status(),
	})
}

type addTabRequest struct {
	Name string        `json:"name" binding:"required"`
	Kind types.TabKind `json:"kind"`
}

// AddTab appends a new tab.
func (h *Handlers) AddTab(c *gin.Context) {
	var req addTabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Kind == "" {
		req.Kind = types.KindMarkdown
	}
	if req.Kind != types.KindMarkdown && req.Kind != types.KindCSV {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tab kind"})
		return
	}

	tab, err := h.workspace.AddTab(req.Name, req.Kind)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, tab)
}

type renameTabRequest struct {
	Name string `json:"name" binding:"required"`
}

// RenameTab renames a tab.
func (h *Handlers) RenameTab(c *gin.Context) {
	var req renameTabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.tabMutation(c, h.workspace.RenameTab(c.Param("id"), req.Name))
}

type contentRequest struct {
	Content string `json:"content"`
}

// SetTabContent replaces a tab's content.
func (h *Handlers) SetTabContent(c *gin.Context) {
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.tabMutation(c, h.workspace.SetContent(c.Param("id"), req.Content))
}

// DeleteTab removes a tab.
func (h *Handlers) DeleteTab(c *gin.Context) {
	h.tabMutation(c, h.workspace.DeleteTab(c.Param("id")))
}

// SelectTab moves the selected-tab reference.
func (h *Handlers) SelectTab(c *gin.Context) {
	h.tabMutation(c, h.workspace.SelectTab(c.Param("id")))
}

type reorderRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// ReorderTabs rearranges the tab collection.
func (h *Handlers) ReorderTabs(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.workspace.Reorder(req.IDs); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, workspace.ErrTabNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tabs": h.workspace.Tabs()})
}

func (h *Handlers) tabMutation(c *gin.Context, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, workspace.ErrTabNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tabs":         h.workspace.Tabs(),
		"selected_tab": h.workspace.SelectedID(),
	})
}

// ForceSave bypasses the debounce, used by the explicit retry action.
func (h *Handlers) ForceSave(c *gin.Context) {
	if err := h.workspace.ForceSave(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":       err.Error(),
			"save_status": h.workspace.Status(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"save_status": h.workspace.Status()})
}

// Beacon is the page-hide/unload path: fire-and-forget, replies immediately
// so teardown is never blocked on the write.
func (h *Handlers) Beacon(c *gin.Context) {
	h.workspace.FlushBeacon()
	c.Status(http.StatusNoContent)
}

type timerStartRequest struct {
	Label           string                `json:"label" binding:"required"`
	DurationSeconds int                   `json:"duration_seconds" binding:"required"`
	Prefs           *types.MilestonePrefs `json:"prefs"`
}

// StartTimer starts a countdown, replacing any existing one wholesale.
func (h *Handlers) StartTimer(c *gin.Context) {
	var req timerStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DurationSeconds <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "duration must be positive"})
		return
	}

	milestonePrefs := types.DefaultMilestonePrefs()
	if req.Prefs != nil {
		milestonePrefs = *req.Prefs
	}

	state, replaced := h.timers.Start(req.Label, time.Duration(req.DurationSeconds)*time.Second, milestonePrefs)
	body := gin.H{"timer": state}
	if replaced != nil {
		body["replaced"] = replaced
	}
	c.JSON(http.StatusCreated, body)
}

// PauseTimer pauses the running countdown.
func (h *Handlers) PauseTimer(c *gin.Context) {
	state, err := h.timers.Pause()
	if err != nil {
		h.timerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": state})
}

// ResumeTimer resumes a paused countdown.
func (h *Handlers) ResumeTimer(c *gin.Context) {
	state, err := h.timers.Resume()
	if err != nil {
		h.timerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": state})
}

// StopTimer removes the countdown entirely, completed or not.
func (h *Handlers) StopTimer(c *gin.Context) {
	if err := h.timers.Stop(); err != nil {
		h.timerError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetTimer returns the current countdown, if one exists.
func (h *Handlers) GetTimer(c *gin.Context) {
	state, ok := h.timers.Snapshot()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no timer"})
		return
	}
	now := time.Now()
	c.JSON(http.StatusOK, gin.H{
		"timer":             state,
		"elapsed_seconds":   state.Elapsed(now).Seconds(),
		"remaining_seconds": state.Remaining(now).Seconds(),
	})
}

func (h *Handlers) timerError(c *gin.Context, err error) {
	status := http.StatusConflict
	if errors.Is(err, timer.ErrNoTimer) {
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// ListTranscript returns the renderable transcript; hidden relay tokens are
// included only when explicitly requested.
func (h *Handlers) ListTranscript(c *gin.Context) {
	includeHidden := c.Query("include_hidden") == "true"
	c.JSON(http.StatusOK, gin.H{
		"messages": h.transcripts.Messages(includeHidden),
	})
}

// ExportTranscript streams the full transcript, hidden tokens included, as
// gzip-compressed JSON.
func (h *Handlers) ExportTranscript(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Header("Content-Encoding", "gzip")
	c.Header("Content-Disposition", `attachment; filename="transcript.json.gz"`)
	if err := h.transcripts.ExportGzip(c.Writer); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}

type saveConversationRequest struct {
	Name string `json:"name" binding:"required"`
}

// SaveConversation persists a named copy of the working session.
func (h *Handlers) SaveConversation(c *gin.Context) {
	var req saveConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := h.sessions.SaveConversation(c.Request.Context(), req.Name)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, saved)
}

// NewConversation abandons the working session for a fresh one.
func (h *Handlers) NewConversation(c *gin.Context) {
	created, err := h.sessions.NewConversation(c.Request.Context())
	if err != nil {
		if errors.Is(err, session.ErrNoProject) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

// SetMuted toggles microphone mute.
func (h *Handlers) SetMuted(c *gin.Context) {
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.sessions.SetMuted(req.Muted)
	c.JSON(http.StatusOK, gin.H{"muted": req.Muted})
}

type flagsRequest struct {
	Speaking  *bool `json:"speaking"`
	Recording *bool `json:"recording"`
}

// SetFlags updates the ephemeral push-to-talk and recording flags.
func (h *Handlers) SetFlags(c *gin.Context) {
	var req flagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Speaking != nil {
		h.sessions.SetSpeaking(*req.Speaking)
	}
	if req.Recording != nil {
		h.sessions.SetRecording(*req.Recording)
	}
	speaking, recording := h.sessions.Flags()
	c.JSON(http.StatusOK, gin.H{"speaking": speaking, "recording": recording})
}

// GetSettings returns the durable preferences.
func (h *Handlers) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.prefs.Get())
}

type settingsRequest struct {
	PushToTalk *bool   `json:"push_to_talk"`
	Playback   *bool   `json:"playback"`
	Codec      *string `json:"codec"`
	SuiteID    *string `json:"suite_id"`
}

// UpdateSettings patches the durable preferences. A codec change while a
// session is live additionally publishes a reload request.
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Codec != nil {
		if err := h.sessions.SetCodec(*req.Codec); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	updated, err := h.prefs.Update(func(s *prefs.Settings) {
		if req.PushToTalk != nil {
			s.PushToTalk = *req.PushToTalk
		}
		if req.Playback != nil {
			s.Playback = *req.Playback
		}
		if req.SuiteID != nil {
			s.SuiteID = *req.SuiteID
		}
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// ListSuites returns the loaded persona suite ids.
func (h *Handlers) ListSuites(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"suites": h.suites.IDs()})
}
