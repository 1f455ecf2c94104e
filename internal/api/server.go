package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxseedlab/voicenote/internal/draft"
	apperrors "github.com/foxseedlab/voicenote/internal/errors"
	"github.com/foxseedlab/voicenote/internal/recording"
	"github.com/foxseedlab/voicenote/internal/voice"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// Recorder is the recording surface exposed to the embedding UI.
type Recorder interface {
	Start(ctx context.Context, channelID, rootID string) error
	Stop(ctx context.Context) (voice.Artifact, error)
	Cancel(ctx context.Context) error
	Send(ctx context.Context, channelID, rootID string) (voice.Delivery, error)
	State() recording.State
	Artifact() (voice.Artifact, bool)
	OnElapsed(fn func(time.Duration))
}

type DraftService interface {
	Drafts(ctx context.Context) ([]draft.Draft, error)
	Resume(ctx context.Context) ([]voice.Delivery, error)
	Discard(ctx context.Context, key string) error
}

type Server struct {
	recorder Recorder
	drafts   DraftService
	hub      *elapsedHub
}

func NewServer(recorder Recorder, drafts DraftService) *Server {
	return &Server{recorder: recorder, drafts: drafts, hub: newElapsedHub()}
}

type targetRequest struct {
	ChannelID string `json:"channel_id"`
	RootID    string `json:"root_id"`
}

type artifactResponse struct {
	DurationMillis int64     `json:"duration_ms"`
	Bytes          int       `json:"bytes"`
	StartedAt      time.Time `json:"started_at"`
	DraftKey       string    `json:"draft_key"`
}

type stateResponse struct {
	State    recording.State   `json:"state"`
	Artifact *artifactResponse `json:"artifact"`
}

type deliveryResponse struct {
	PostID   string `json:"post_id"`
	FileID   string `json:"file_id"`
	Attempts int    `json:"attempts"`
	DraftKey string `json:"draft_key"`
}

type draftResponse struct {
	Key            string    `json:"key"`
	Filename       string    `json:"filename"`
	ChannelID      string    `json:"channel_id"`
	RootID         string    `json:"root_id,omitempty"`
	DurationMillis int64     `json:"duration_ms"`
	Bytes          int       `json:"bytes"`
	CreatedAt      time.Time `json:"created_at"`
}

type resumeResponse struct {
	Delivered []deliveryResponse `json:"delivered"`
	Error     string             `json:"error,omitempty"`
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	rec := router.Group("/recording")
	rec.GET("", s.handleState)
	rec.POST("/start", s.handleStart)
	rec.POST("/stop", s.handleStop)
	rec.POST("/cancel", s.handleCancel)
	rec.POST("/send", s.handleSend)
	rec.GET("/elapsed", s.handleElapsed)

	router.GET("/drafts", s.handleListDrafts)
	router.POST("/drafts/resume", s.handleResume)
	router.DELETE("/drafts/:key", s.handleDiscard)
	return router
}

// Run serves the API on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("control api shutdown failed", "error", err)
		}
	}()

	slog.Info("control api listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control api: %w", err)
	}
	return nil
}

func (s *Server) handleState(c *gin.Context) {
	resp := stateResponse{State: s.recorder.State()}
	if a, ok := s.recorder.Artifact(); ok {
		resp.Artifact = toArtifactResponse(a)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStart(c *gin.Context) {
	var req targetRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if err := s.recorder.Start(c.Request.Context(), req.ChannelID, req.RootID); err != nil {
		writeError(c, err)
		return
	}
	s.recorder.OnElapsed(s.hub.broadcast)
	c.JSON(http.StatusOK, stateResponse{State: s.recorder.State()})
}

func (s *Server) handleStop(c *gin.Context) {
	a, err := s.recorder.Stop(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if a.IsEmpty() {
		retained, ok := s.recorder.Artifact()
		if !ok {
			writeError(c, apperrors.NewNotRecording())
			return
		}
		a = retained
	}
	c.JSON(http.StatusOK, toArtifactResponse(a))
}

func (s *Server) handleCancel(c *gin.Context) {
	if err := s.recorder.Cancel(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleSend keeps delivering after the client disconnects; the retry loop
// is bounded by the attempt limit.
func (s *Server) handleSend(c *gin.Context) {
	var req targetRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	d, err := s.recorder.Send(context.WithoutCancel(c.Request.Context()), req.ChannelID, req.RootID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDeliveryResponse(d))
}

func (s *Server) handleListDrafts(c *gin.Context) {
	list, err := s.drafts.Drafts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]draftResponse, 0, len(list))
	for _, d := range list {
		resp = append(resp, draftResponse{
			Key:            d.Key,
			Filename:       d.Filename,
			ChannelID:      d.ChannelID,
			RootID:         d.RootID,
			DurationMillis: d.DurationMillis,
			Bytes:          len(d.Payload),
			CreatedAt:      d.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleResume(c *gin.Context) {
	deliveries, err := s.drafts.Resume(context.WithoutCancel(c.Request.Context()))
	if err != nil && len(deliveries) == 0 && apperrors.CodeOf(err) == apperrors.CodeInternal {
		writeError(c, err)
		return
	}
	resp := resumeResponse{Delivered: make([]deliveryResponse, 0, len(deliveries))}
	for _, d := range deliveries {
		resp.Delivered = append(resp.Delivered, toDeliveryResponse(d))
	}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusMultiStatus
	}
	c.JSON(status, resp)
}

func (s *Server) handleDiscard(c *gin.Context) {
	if err := s.drafts.Discard(c.Request.Context(), c.Param("key")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func bindOptionalJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, apperrors.NewInvalidInput("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func writeError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	status := statusForCode(code)
	if status >= http.StatusInternalServerError {
		slog.Error("control api request failed", "error", err, "path", c.FullPath(), "code", code)
	}
	c.JSON(status, gin.H{"code": code, "error": err.Error()})
}

func statusForCode(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.CodeAlreadyRecording, apperrors.CodeNotRecording:
		return http.StatusConflict
	case apperrors.CodeDraftNotFound:
		return http.StatusNotFound
	case apperrors.CodeUploadFailed, apperrors.CodeRetryExhausted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func toArtifactResponse(a voice.Artifact) *artifactResponse {
	return &artifactResponse{
		DurationMillis: a.DurationMillis(),
		Bytes:          len(a.Payload),
		StartedAt:      a.StartedAt,
		DraftKey:       a.DraftKey(),
	}
}

func toDeliveryResponse(d voice.Delivery) deliveryResponse {
	return deliveryResponse{
		PostID:   d.PostID,
		FileID:   d.FileID,
		Attempts: d.Attempts,
		DraftKey: d.DraftKey,
	}
}
