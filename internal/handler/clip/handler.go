package clip

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mkarlsen/voiceloop/internal/audio"
	"github.com/mkarlsen/voiceloop/internal/service/pipeline"
	"github.com/mkarlsen/voiceloop/pkg/utils"
)

// sessionCookie carries the clip session id between polling requests; the
// "session" query parameter overrides it for cookie-less clients.
const sessionCookie = "voiceloop_session"

const maxUploadBytes = 32 << 20

// ErrSessionNotFound 会话不存在或已被删除。
var ErrSessionNotFound = errors.New("clip session not found")

// Handler 提供基于轮询的语音对话接口。
// Browsers that cannot hold a websocket upload recorded clips and poll for
// reply text and audio instead. Each clip session wraps a pipeline session
// without a transmission worker; the poll endpoints drain the output queues
// directly.
type Handler struct {
	engines pipeline.Engines
	opts    pipeline.Options

	mu       sync.RWMutex
	sessions map[string]*clipSession
}

type clipSession struct {
	id      string
	session *pipeline.Session

	mu  sync.Mutex
	buf []float32
}

// New 创建轮询处理器
func New(engines pipeline.Engines, opts pipeline.Options) *Handler {
	return &Handler{
		engines:  engines,
		opts:     opts,
		sessions: make(map[string]*clipSession),
	}
}

// RegisterRoutes 注册轮询路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/clip", func(cr chi.Router) {
		cr.Post("/session", h.handleCreateSession)
		cr.Delete("/session", h.handleDeleteSession)
		cr.Post("/audio", h.handleUploadAudio)
		cr.Get("/message", h.handleMessage)
		cr.Get("/transcript", h.handleTranscript)
		cr.Get("/speech", h.handleSpeech)
		cr.Get("/stream", h.handleStream)
	})
}

// Close tears down every live session. Called on server shutdown.
func (h *Handler) Close() {
	h.mu.Lock()
	sessions := make([]*clipSession, 0, len(h.sessions))
	for _, cs := range h.sessions {
		sessions = append(sessions, cs)
	}
	h.sessions = make(map[string]*clipSession)
	h.mu.Unlock()

	for _, cs := range sessions {
		cs.session.Close()
	}
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()

	// Clip sessions outlive the request that created them; they are torn
	// down by DELETE /clip/session or server shutdown.
	session := pipeline.NewSession(context.Background(), h.engines, h.opts)
	session.Start()

	cs := &clipSession{id: id, session: session}
	h.mu.Lock()
	h.sessions[id] = cs
	h.mu.Unlock()

	log.Printf("[clip] session created: %s", id)

	http.SetCookie(w, &http.Cookie{
		Name:  sessionCookie,
		Value: id,
		Path:  "/",
	})
	utils.RespondJSON(w, http.StatusCreated, map[string]string{"sessionId": id})
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	cs, err := h.lookup(r)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	h.mu.Lock()
	delete(h.sessions, cs.id)
	h.mu.Unlock()
	cs.session.Close()

	log.Printf("[clip] session deleted: %s", cs.id)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"sessionId": cs.id})
}

// handleUploadAudio 接收一段录音分片。
// Chunks accumulate until isEnd is set; the final chunk triggers inline
// transcription and the response carries the recognized text.
func (h *Handler) handleUploadAudio(w http.ResponseWriter, r *http.Request) {
	cs, err := h.lookup(r)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	sampleRate, err := strconv.Atoi(strings.TrimSpace(r.FormValue("samplerate")))
	if err != nil || sampleRate <= 0 {
		utils.RespondError(w, http.StatusBadRequest, "samplerate form field is required")
		return
	}
	isEnd, _ := strconv.ParseBool(strings.TrimSpace(r.FormValue("isEnd")))

	file, _, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio form file is required")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio upload")
		return
	}
	samples, err := audio.DecodeSamples(raw)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cs.mu.Lock()
	cs.buf = append(cs.buf, samples...)
	if !isEnd {
		cs.mu.Unlock()
		utils.RespondJSON(w, http.StatusOK, map[string]any{"buffered": true})
		return
	}
	buffered := cs.buf
	cs.buf = nil
	cs.mu.Unlock()

	prepared := audio.Prepare(audio.Utterance{
		Samples:    buffered,
		SampleRate: sampleRate,
		Channels:   1,
	}, h.opts.TargetSampleRate)

	text, err := h.engines.Transcriber.Transcribe(r.Context(), prepared, h.opts.TargetSampleRate)
	if err != nil {
		log.Printf("[clip] transcription failed session=%s: %v", cs.id, err)
		utils.RespondError(w, http.StatusBadGateway, "transcription failed")
		return
	}
	text = strings.TrimSpace(text)
	if text != "" {
		cs.session.HandleText(text)
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"transcription": text})
}

// handleMessage 取出下一段助手文本，空时返回204。
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	cs, err := h.lookup(r)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	token, ok := cs.session.PopToken()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": token})
}

// handleTranscript 取出下一条识别出的用户文本，空时返回204。
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	cs, err := h.lookup(r)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	text, ok := cs.session.PopTranscript()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"transcript": text})
}

// handleSpeech 取出下一段合成音频，空时返回204。
func (h *Handler) handleSpeech(w http.ResponseWriter, r *http.Request) {
	cs, err := h.lookup(r)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	clip, ok := cs.session.PopAudio()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(clip); err != nil {
		log.Printf("[clip] failed to write speech clip: %v", err)
	}
}

// handleStream 以SSE推送助手文本直至当前回复结束。
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	cs, err := h.lookup(r)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)

	ctx := r.Context()
	idle := h.opts.IdleInterval
	if idle <= 0 {
		idle = pipeline.DefaultIdleInterval
	}
	ticker := time.NewTicker(idle)
	defer ticker.Stop()

	for {
		token, ok := cs.session.PopToken()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-cs.session.Done():
				return
			case <-ticker.C:
			}
			continue
		}
		if token == pipeline.EndOfMessage {
			utils.SendSSEEvent(w, flusher, "done", map[string]bool{"done": true})
			return
		}
		utils.SendSSEChunk(w, flusher, map[string]string{"message": token})
	}
}

// lookup resolves the clip session from the query parameter or cookie.
func (h *Handler) lookup(r *http.Request) (*clipSession, error) {
	id := strings.TrimSpace(r.URL.Query().Get("session"))
	if id == "" {
		if cookie, err := r.Cookie(sessionCookie); err == nil {
			id = cookie.Value
		}
	}
	if id == "" {
		return nil, ErrSessionNotFound
	}

	h.mu.RLock()
	cs, ok := h.sessions[id]
	h.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cs, nil
}
