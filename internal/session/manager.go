package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/audio"
	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/backend"
	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/capture"
	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/display"
	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/gate"
	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/metrics"
	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/settings"
)

var (
	// ErrAlreadyCapturing reports a start request for a source key that
	// already has a live session.
	ErrAlreadyCapturing = errors.New("capture already active for source")

	// ErrBackendUnavailable reports a failed backend health probe during
	// session start.
	ErrBackendUnavailable = errors.New("recognition backend unavailable")
)

const (
	DefaultForwardInterval = 500 * time.Millisecond
	DefaultIdleTimeout     = 2 * time.Minute
	DefaultCleanupInterval = 30 * time.Second
)

// Config contains session manager configuration.
type Config struct {
	ForwardInterval time.Duration
	BufferCapacity  int
	IdleTimeout     time.Duration
	CleanupInterval time.Duration

	// Fallback languages used when the settings store cannot be read.
	DefaultSourceLanguage string
	DefaultTargetLanguage string
}

// Deps are the collaborators one manager orchestrates.
type Deps struct {
	Source  capture.Source
	Sink    display.Sink
	Store   settings.Store
	Client  *backend.Client
	Gate    *gate.Gate
	Metrics *metrics.Metrics
}

// Session is one live capture session for a source key.
type Session struct {
	SourceKey string
	StartTime time.Time

	stream capture.Stream
	buffer *audio.RingBuffer

	// processing is the non-blocking dispatch mutex: set while one chunk is
	// in flight, chunks arriving meanwhile are buffered and dropped.
	processing    atomic.Bool
	lastForwarded atomic.Int64 // unix nanos of the last forwarded chunk
	lastActivity  atomic.Int64 // unix nanos of the last received chunk

	chunksReceived atomic.Uint64
	chunksDropped  atomic.Uint64
	chunksGatedOut atomic.Uint64
	dispatches     atomic.Uint64
	dispatchFailed atomic.Uint64
	subtitlesSent  atomic.Uint64

	done chan struct{}
}

// SessionInfo is a read-only snapshot of one session for monitoring.
type SessionInfo struct {
	SourceKey      string    `json:"source_key"`
	StartTime      time.Time `json:"start_time"`
	LastActivity   time.Time `json:"last_activity"`
	ChunksReceived uint64    `json:"chunks_received"`
	ChunksDropped  uint64    `json:"chunks_dropped"`
	ChunksGatedOut uint64    `json:"chunks_gated_out"`
	Dispatches     uint64    `json:"dispatches"`
	DispatchFailed uint64    `json:"dispatch_failed"`
	SubtitlesSent  uint64    `json:"subtitles_sent"`
	BufferedChunks int       `json:"buffered_chunks"`
}

// Manager owns all live sessions and the chunk pipeline.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	cfg      Config

	source  capture.Source
	sink    display.Sink
	store   settings.Store
	client  *backend.Client
	gate    *gate.Gate
	metrics *metrics.Metrics

	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewManager creates a session manager and starts its idle cleanup routine.
func NewManager(logger *slog.Logger, cfg Config, deps Deps) (*Manager, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("capture source is required")
	}
	if deps.Client == nil {
		return nil, fmt.Errorf("backend client is required")
	}
	if deps.Sink == nil {
		deps.Sink = display.NewLogSink(logger)
	}
	if deps.Gate == nil {
		deps.Gate = gate.New(0)
	}
	if deps.Store == nil {
		deps.Store = settings.NewMemoryStore(settings.Snapshot{
			SourceLanguage: cfg.DefaultSourceLanguage,
			TargetLanguage: cfg.DefaultTargetLanguage,
		})
	}

	if cfg.ForwardInterval <= 0 {
		cfg.ForwardInterval = DefaultForwardInterval
	}
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = audio.DefaultRingCapacity
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
		cfg:      cfg,
		source:   deps.Source,
		sink:     deps.Sink,
		store:    deps.Store,
		client:   deps.Client,
		gate:     deps.Gate,
		metrics:  deps.Metrics,
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr, nil
}

// StartCapture begins a session for the given source key. The backend is
// probed first; no session state is created when the probe or the capture
// acquisition fails.
func (m *Manager) StartCapture(ctx context.Context, sourceKey string) error {
	m.mu.RLock()
	_, exists := m.sessions[sourceKey]
	m.mu.RUnlock()

	if exists {
		return fmt.Errorf("%w: %s", ErrAlreadyCapturing, sourceKey)
	}

	if _, err := m.client.Health(ctx); err != nil {
		m.logger.Error("Backend health check failed",
			slog.String("source_key", sourceKey),
			slog.String("error", err.Error()),
		)
		m.publishError(sourceKey, "recognition backend unavailable")
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// The stream must outlive the start request: it is scoped to the
	// manager and released by StopCapture, not by the caller's context.
	stream, err := m.source.Begin(m.ctx, sourceKey)
	if err != nil {
		m.publishError(sourceKey, "capture unavailable")
		return fmt.Errorf("failed to begin capture: %w", err)
	}

	m.mu.Lock()
	if _, exists := m.sessions[sourceKey]; exists {
		// Lost the start race; release the stream we just acquired.
		m.mu.Unlock()
		if closeErr := stream.Close(); closeErr != nil {
			m.logger.Warn("Failed to release redundant capture stream",
				slog.String("source_key", sourceKey),
				slog.String("error", closeErr.Error()),
			)
		}
		return fmt.Errorf("%w: %s", ErrAlreadyCapturing, sourceKey)
	}

	now := time.Now()
	session := &Session{
		SourceKey: sourceKey,
		StartTime: now,
		stream:    stream,
		buffer:    audio.NewRingBuffer(m.cfg.BufferCapacity),
		done:      make(chan struct{}),
	}
	session.lastActivity.Store(now.UnixNano())

	m.sessions[sourceKey] = session
	active := len(m.sessions)
	m.mu.Unlock()

	m.metrics.RecordSessionStarted()
	m.metrics.SetActiveSessions(active)

	go m.run(session)

	m.sink.Publish(display.Event{Type: display.EventStarted, SourceKey: sourceKey})
	m.logger.Info("Capture session started",
		slog.String("source_key", sourceKey),
		slog.Int("active_sessions", active),
	)

	return nil
}

// StopCapture ends the session for the given source key. Stopping a key with
// no session is a no-op, so host lifecycle hooks can call it unconditionally.
func (m *Manager) StopCapture(sourceKey string) error {
	m.mu.Lock()
	session, exists := m.sessions[sourceKey]
	if !exists {
		m.mu.Unlock()
		return nil
	}
	delete(m.sessions, sourceKey)
	active := len(m.sessions)
	m.mu.Unlock()

	if err := session.stream.Close(); err != nil {
		m.logger.Warn("Failed to close capture stream",
			slog.String("source_key", sourceKey),
			slog.String("error", err.Error()),
		)
	}

	// The chunk loop exits once the stream's channel closes.
	<-session.done

	session.buffer.Reset()

	duration := time.Since(session.StartTime)
	m.metrics.RecordSessionStopped(duration.Seconds())
	m.metrics.SetActiveSessions(active)

	m.sink.Publish(display.Event{Type: display.EventStopped, SourceKey: sourceKey})
	m.logger.Info("Capture session stopped",
		slog.String("source_key", sourceKey),
		slog.Duration("duration", duration),
		slog.Uint64("chunks_received", session.chunksReceived.Load()),
		slog.Uint64("dispatches", session.dispatches.Load()),
		slog.Uint64("subtitles_sent", session.subtitlesSent.Load()),
	)

	return nil
}

// GetSession returns the monitoring snapshot for one source key.
func (m *Manager) GetSession(sourceKey string) (SessionInfo, bool) {
	m.mu.RLock()
	session, exists := m.sessions[sourceKey]
	m.mu.RUnlock()

	if !exists {
		return SessionInfo{}, false
	}

	return session.info(), true
}

// GetAllSessions returns monitoring snapshots of all live sessions.
func (m *Manager) GetAllSessions() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, session := range m.sessions {
		infos = append(infos, session.info())
	}

	return infos
}

// GetActiveSessionCount returns the number of live sessions.
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// TranslateText forwards an on-demand text translation to the backend.
// Failures surface to the display sink as error events.
func (m *Manager) TranslateText(ctx context.Context, req backend.TextRequest) (*backend.TextTranslation, error) {
	var result *backend.TextTranslation
	err := m.client.Coordinator().Retry(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = m.client.TranslateText(ctx, req)
		return callErr
	}, -1)
	if err != nil {
		m.logger.Error("Text translation failed", slog.String("error", err.Error()))
		m.publishError("", "text translation failed")
		return nil, err
	}

	return result, nil
}

// Stop stops all sessions and the cleanup routine.
func (m *Manager) Stop() {
	m.logger.Info("Stopping session manager...")

	m.mu.RLock()
	keys := make([]string, 0, len(m.sessions))
	for key := range m.sessions {
		keys = append(keys, key)
	}
	m.mu.RUnlock()

	for _, key := range keys {
		if err := m.StopCapture(key); err != nil {
			m.logger.Warn("Failed to stop session",
				slog.String("source_key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	m.cancel()
	<-m.cleanup

	m.logger.Info("Session manager stopped",
		slog.Int("remaining_sessions", m.GetActiveSessionCount()),
	)
}

// run drains the capture stream until it closes, then tears the session
// down through the normal stop path.
func (m *Manager) run(s *Session) {
	defer close(s.done)

	for chunk := range s.stream.Chunks() {
		m.handleChunk(s, chunk)
	}

	// StopCapture waits on done, so self-stop must not run on this
	// goroutine.
	go func() {
		if err := m.StopCapture(s.SourceKey); err != nil {
			m.logger.Warn("Failed to stop ended session",
				slog.String("source_key", s.SourceKey),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// handleChunk applies the gating policy to one captured chunk. Every chunk
// lands in the ring buffer; only chunks that clear the busy flag and the
// forward interval go on to the speech gate and dispatch.
func (m *Manager) handleChunk(s *Session, chunk audio.Chunk) {
	now := time.Now()
	s.lastActivity.Store(now.UnixNano())
	s.chunksReceived.Add(1)
	m.metrics.RecordChunkReceived()

	s.buffer.Add(chunk)

	if s.processing.Load() {
		s.chunksDropped.Add(1)
		m.metrics.RecordChunkDropped("busy")
		return
	}

	if last := s.lastForwarded.Load(); last != 0 && now.Sub(time.Unix(0, last)) < m.cfg.ForwardInterval {
		s.chunksDropped.Add(1)
		m.metrics.RecordChunkDropped("interval")
		return
	}

	if !s.processing.CompareAndSwap(false, true) {
		s.chunksDropped.Add(1)
		m.metrics.RecordChunkDropped("busy")
		return
	}
	s.lastForwarded.Store(now.UnixNano())

	go m.forward(s, chunk)
}

// forward runs the speech gate and dispatches one chunk to the backend.
// Dispatch errors are logged and swallowed; the next chunk tries again.
func (m *Manager) forward(s *Session, chunk audio.Chunk) {
	defer s.processing.Store(false)

	hasSpeech := m.gate.HasSpeech(chunk.Payload)
	m.metrics.RecordGateDecision(hasSpeech)
	if !hasSpeech {
		s.chunksGatedOut.Add(1)
		m.metrics.RecordChunkDropped("silent")
		return
	}

	snapshot := m.settingsSnapshot()

	// Send the buffered window so the recognizer sees trailing context from
	// chunks the throttle skipped.
	payload, err := s.buffer.Combined()
	if err != nil {
		payload = chunk.Payload
	}

	opts := backend.AudioOptions{
		SourceLanguage: snapshot.SourceLanguage,
		TargetLanguage: snapshot.TargetLanguage,
	}

	s.dispatches.Add(1)
	start := time.Now()

	var result *backend.TranscriptionResult
	operation := "transcribe"
	if translateWanted(snapshot) {
		operation = "translate_audio"
		result, err = m.client.TranslateAudio(m.ctx, payload, opts)
	} else {
		result, err = m.client.Transcribe(m.ctx, payload, opts)
	}

	m.metrics.RecordDispatch(operation, err, time.Since(start).Seconds())

	if err != nil {
		s.dispatchFailed.Add(1)
		m.logger.Warn("Chunk dispatch failed",
			slog.String("source_key", s.SourceKey),
			slog.String("operation", operation),
			slog.Uint64("seq", chunk.Seq),
			slog.String("error", err.Error()),
		)
		return
	}

	// Recognizer consumed the window; start the next one fresh.
	s.buffer.Reset()

	if result.Text == "" {
		return
	}

	language := snapshot.TargetLanguage
	if operation == "transcribe" {
		language = result.DetectedLanguage
		if language == "" {
			language = snapshot.SourceLanguage
		}
	}

	s.subtitlesSent.Add(1)
	m.sink.Publish(display.Event{
		Type:      display.EventSubtitle,
		SourceKey: s.SourceKey,
		Text:      result.Text,
		Language:  language,
	})
}

// settingsSnapshot reads current preferences, falling back to the configured
// defaults when the store cannot be read.
func (m *Manager) settingsSnapshot() settings.Snapshot {
	snapshot, err := m.store.Snapshot(m.ctx)
	if err != nil {
		m.logger.Warn("Settings store unavailable, using defaults",
			slog.String("error", err.Error()),
		)
		return settings.Snapshot{
			SourceLanguage: m.cfg.DefaultSourceLanguage,
			TargetLanguage: m.cfg.DefaultTargetLanguage,
		}
	}

	return snapshot
}

// translateWanted reports whether the snapshot asks for translation rather
// than plain transcription. An auto-detected source transcribes only: the
// spoken language is unknown until the recognizer reports it.
func translateWanted(s settings.Snapshot) bool {
	if s.TargetLanguage == "" || s.TargetLanguage == "auto" {
		return false
	}
	if s.SourceLanguage == "" || s.SourceLanguage == "auto" {
		return false
	}
	return s.TargetLanguage != s.SourceLanguage
}

func (m *Manager) publishError(sourceKey, message string) {
	m.sink.Publish(display.Event{
		Type:      display.EventError,
		SourceKey: sourceKey,
		Text:      message,
	})
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		SourceKey:      s.SourceKey,
		StartTime:      s.StartTime,
		LastActivity:   time.Unix(0, s.lastActivity.Load()),
		ChunksReceived: s.chunksReceived.Load(),
		ChunksDropped:  s.chunksDropped.Load(),
		ChunksGatedOut: s.chunksGatedOut.Load(),
		Dispatches:     s.dispatches.Load(),
		DispatchFailed: s.dispatchFailed.Load(),
		SubtitlesSent:  s.subtitlesSent.Load(),
		BufferedChunks: s.buffer.Len(),
	}
}

// startCleanupRoutine removes sessions with no chunk activity past the idle
// timeout.
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return

		case <-ticker.C:
			m.cleanupIdleSessions()
		}
	}
}

func (m *Manager) cleanupIdleSessions() {
	now := time.Now()
	var idle []string

	m.mu.RLock()
	for key, session := range m.sessions {
		if now.Sub(time.Unix(0, session.lastActivity.Load())) > m.cfg.IdleTimeout {
			idle = append(idle, key)
		}
	}
	m.mu.RUnlock()

	for _, key := range idle {
		m.logger.Info("Removing idle session", slog.String("source_key", key))
		if err := m.StopCapture(key); err != nil {
			m.logger.Warn("Failed to stop idle session",
				slog.String("source_key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}
