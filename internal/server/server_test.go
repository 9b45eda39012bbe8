package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Raikerian/go-voice-intake/internal/config"
	"github.com/Raikerian/go-voice-intake/internal/gateway"
	"github.com/Raikerian/go-voice-intake/internal/metrics"
	"github.com/Raikerian/go-voice-intake/internal/notes"
	"github.com/Raikerian/go-voice-intake/internal/visit"
	"github.com/Raikerian/go-voice-intake/pkg/audio"
	pkgopenai "github.com/Raikerian/go-voice-intake/pkg/openai"
)

// Prometheus collectors register into the default registry, so the test
// binary shares a single Metrics instance.
var testMetrics = metrics.NewMetrics()

// recordingProvider stands in for the OpenAI Realtime connection.
type recordingProvider struct {
	mu          sync.Mutex
	connected   bool
	closedConn  bool
	audioFrames int
	responses   []string
	systemTexts []string
}

func (p *recordingProvider) Connect(ctx context.Context, instructions string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true

	return nil
}

func (p *recordingProvider) SendAudio(ctx context.Context, audioBase64 string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audioFrames++

	return nil
}

func (p *recordingProvider) CommitAudio(ctx context.Context) error { return nil }

func (p *recordingProvider) GenerateResponse(ctx context.Context, instructions string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, instructions)

	return nil
}

func (p *recordingProvider) SendSystemText(ctx context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.systemTexts = append(p.systemTexts, text)

	return nil
}

func (p *recordingProvider) SendToolOutput(ctx context.Context, callID, output, ack string) error {
	return nil
}

func (p *recordingProvider) SetEventHandlers(handlers gateway.RealtimeEventHandlers) {}

func (p *recordingProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closedConn = true

	return nil
}

func (p *recordingProvider) frameCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.audioFrames
}

type recordingFactory struct {
	mu   sync.Mutex
	last *recordingProvider
}

func (f *recordingFactory) NewProvider() gateway.RealtimeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = &recordingProvider{}

	return f.last
}

func (f *recordingFactory) lastProvider() *recordingProvider {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.last
}

type stubFinalizer struct {
	mu    sync.Mutex
	draft *notes.Draft
	err   error
}

func (f *stubFinalizer) Finalize(ctx context.Context, sessionID string, snapshot map[string]any, locale string) (*notes.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	return f.draft, nil
}

type serverFixture struct {
	server    *Server
	cfg       *config.Config
	factory   *recordingFactory
	finalizer *stubFinalizer
}

func newTestServer(t *testing.T, openaiClient *openai.Client) *serverFixture {
	t.Helper()

	logger := zaptest.NewLogger(t)

	cfg := &config.Config{
		Server: config.ServerConfig{Addr: "127.0.0.1:0"},
		OpenAI: config.OpenAIConfig{
			RealtimeModel:   "gpt-4o-realtime-preview",
			TranscribeModel: "gpt-4o-mini-transcribe",
		},
		Gateway: config.GatewayConfig{
			Voice:                 "verse",
			MaxConcurrentSessions: 4,
			InactivityTimeout:     120,
			MaxSessionLength:      30,
		},
		Intake: config.IntakeConfig{
			MaxNotesLen:        12000,
			NotesDebounceMs:    5,
			MaxTrackedSessions: 64,
		},
		Visit: config.VisitConfig{TimeoutSeconds: 2},
	}

	fixture := &serverFixture{
		cfg:       cfg,
		factory:   &recordingFactory{},
		finalizer: &stubFinalizer{},
	}

	gatewayService := gateway.NewService(
		logger,
		cfg,
		gateway.NewSessionManager(logger, cfg),
		fixture.factory,
		notes.NewStore(cfg.Intake.MaxTrackedSessions, cfg.Intake.MaxNotesLen),
		fixture.finalizer,
		pkgopenai.NewPricingService(filepath.Join(t.TempDir(), "missing.json")),
		visit.NewWriter(logger, cfg),
		testMetrics,
	)
	t.Cleanup(func() {
		_ = gatewayService.Shutdown(context.Background())
	})

	fixture.server = NewServer(logger, cfg, gatewayService, openaiClient, testMetrics)

	return fixture
}

// do routes one request through the real mux.
func (f *serverFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.server.Handler.ServeHTTP(rec, req)

	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return body
}

func TestHandleHealthz(t *testing.T) {
	fixture := newTestServer(t, nil)

	rec := fixture.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["active_sessions"])
}

func TestHandlePrompt(t *testing.T) {
	fixture := newTestServer(t, nil)

	rec := fixture.do(httptest.NewRequest(http.MethodGet, "/realtime/prompt", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "gpt-4o-realtime-preview", body["model"])
	assert.Equal(t, "verse", body["voice"])
	assert.Contains(t, body["head"], "Conduct rules:")
	assert.LessOrEqual(t, len(body["head"].(string)), promptHeadLimit)
	assert.Greater(t, body["length"].(float64), float64(0))
}

func TestNotesRoundTrip(t *testing.T) {
	fixture := newTestServer(t, nil)

	put := func(payload string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/realtime/sessions/sess-1/notes",
			strings.NewReader(payload))

		return fixture.do(req)
	}

	rec := put(`{"notes":"first line"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "Notes overwritten.", body["message"])

	rec = put(`{"notes":"second line","mode":"append"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Notes appended.", decodeBody(t, rec)["message"])

	rec = fixture.do(httptest.NewRequest(http.MethodGet, "/realtime/sessions/sess-1/notes", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, "sess-1", body["session_id"])
	assert.Equal(t, "first line second line", body["notes"])
}

func TestHandlePutNotes_BadRequests(t *testing.T) {
	fixture := newTestServer(t, nil)

	tests := map[string]struct {
		payload string
	}{
		"malformed_json": {payload: `{"notes":`},
		"unknown_mode":   {payload: `{"notes":"x","mode":"merge"}`},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/realtime/sessions/sess-1/notes",
				strings.NewReader(tt.payload))

			rec := fixture.do(req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleGetNotes_UnknownSession(t *testing.T) {
	fixture := newTestServer(t, nil)

	rec := fixture.do(httptest.NewRequest(http.MethodGet, "/realtime/sessions/ghost/notes", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSessions_Empty(t *testing.T) {
	fixture := newTestServer(t, nil)

	rec := fixture.do(httptest.NewRequest(http.MethodGet, "/realtime/sessions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])
}

func TestHandleSessionStatus_NotFound(t *testing.T) {
	fixture := newTestServer(t, nil)

	rec := fixture.do(httptest.NewRequest(http.MethodGet, "/realtime/sessions/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleFinalize(t *testing.T) {
	fixture := newTestServer(t, nil)
	fixture.finalizer.draft = &notes.Draft{
		SpeechOutput: "Draft ready.",
		SOAP:         notes.SOAP{Subjective: "Cough.", Plan: "Rest."},
		Confidence:   0.8,
	}

	rec := fixture.do(httptest.NewRequest(http.MethodPost, "/realtime/sessions/sess-1/finalize", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "SOAP draft ready.", body["message"])

	draft, ok := body["draft"].(map[string]any)
	require.True(t, ok, "draft should be embedded in the response")
	assert.Equal(t, "Draft ready.", draft["speech_output"])
}

func TestHandleFinalize_Failure(t *testing.T) {
	fixture := newTestServer(t, nil)
	fixture.finalizer.err = errors.New("model unavailable")

	rec := fixture.do(httptest.NewRequest(http.MethodPost, "/realtime/sessions/sess-1/finalize", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["ok"])
	assert.Contains(t, body["message"], "Finalization failed")
}

func TestMethodNotAllowed(t *testing.T) {
	fixture := newTestServer(t, nil)

	rec := fixture.do(httptest.NewRequest(http.MethodDelete, "/realtime/sessions/sess-1/notes", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleMetrics(t *testing.T) {
	fixture := newTestServer(t, nil)

	rec := fixture.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "intake_sessions_created_total")
}

func newTranscribeBackend(t *testing.T, status int, text string) *openai.Client {
	t.Helper()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/audio/transcriptions"),
			"unexpected upstream path %s", r.URL.Path)

		if status != http.StatusOK {
			http.Error(w, `{"error":{"message":"boom"}}`, status)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"text": text})
	}))
	t.Cleanup(backend.Close)

	clientCfg := openai.DefaultConfig("test-key")
	clientCfg.BaseURL = backend.URL + "/v1"

	return openai.NewClientWithConfig(clientCfg)
}

func buildUpload(t *testing.T, language string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "clip.wav")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-wav-bytes"))
	require.NoError(t, err)

	if language != "" {
		require.NoError(t, writer.WriteField("language", language))
	}
	require.NoError(t, writer.Close())

	return &buf, writer.FormDataContentType()
}

func TestHandleTranscribe(t *testing.T) {
	client := newTranscribeBackend(t, http.StatusOK, "  patient reports dizziness  ")
	fixture := newTestServer(t, client)

	body, contentType := buildUpload(t, "fr")
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", contentType)

	rec := fixture.do(req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp TranscriptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "transcript", resp.Kind)
	assert.Equal(t, "  patient reports dizziness  ", resp.Data.Raw)
	assert.Equal(t, "patient reports dizziness", resp.Data.Cleaned)
	assert.Equal(t, "fr", resp.Data.Language)
}

func TestHandleTranscribe_DefaultLanguage(t *testing.T) {
	client := newTranscribeBackend(t, http.StatusOK, "hello")
	fixture := newTestServer(t, client)

	body, contentType := buildUpload(t, "")
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", contentType)

	rec := fixture.do(req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp TranscriptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "en", resp.Data.Language)
}

func TestHandleTranscribe_MissingFile(t *testing.T) {
	fixture := newTestServer(t, newTranscribeBackend(t, http.StatusOK, "unused"))

	req := httptest.NewRequest(http.MethodPost, "/transcribe", strings.NewReader("not-multipart"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := fixture.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTranscribe_UpstreamFailure(t *testing.T) {
	client := newTranscribeBackend(t, http.StatusInternalServerError, "")
	fixture := newTestServer(t, client)

	body, contentType := buildUpload(t, "")
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", contentType)

	rec := fixture.do(req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCheckOrigin(t *testing.T) {
	tests := map[string]struct {
		allowed []string
		origin  string
		want    bool
	}{
		"no_origin_header": {
			allowed: []string{"https://clinic.example"},
			origin:  "",
			want:    true,
		},
		"empty_allowlist_admits_all": {
			allowed: nil,
			origin:  "https://anywhere.example",
			want:    true,
		},
		"exact_match": {
			allowed: []string{"https://clinic.example"},
			origin:  "https://clinic.example",
			want:    true,
		},
		"mismatch_rejected": {
			allowed: []string{"https://clinic.example"},
			origin:  "https://evil.example",
			want:    false,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			fixture := newTestServer(t, nil)
			fixture.cfg.Server.AllowedOrigins = tt.allowed

			req := httptest.NewRequest(http.MethodGet, "/realtime/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			assert.Equal(t, tt.want, fixture.server.checkOrigin(req))
		})
	}
}

func float32LE(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, sample := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(sample))
	}

	return buf
}

func TestWebSocketSession(t *testing.T) {
	fixture := newTestServer(t, nil)

	ts := httptest.NewServer(fixture.server.server.Handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/realtime/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":        "session.start",
		"native_rate": 48000,
		"patient_id":  "patient-9",
	}))

	var created map[string]any
	require.NoError(t, conn.ReadJSON(&created))
	assert.Equal(t, "session.created", created["type"])
	assert.NotEmpty(t, created["session_id"])
	assert.Equal(t, float64(48000), created["native_rate"])

	provider := fixture.factory.lastProvider()
	require.NotNil(t, provider)

	// One full 20ms block of capture audio
	block := float32LE(make([]float32, audio.InputBlockSize(48000)))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, block))

	var telemetry map[string]any
	require.NoError(t, conn.ReadJSON(&telemetry))
	assert.Equal(t, "telemetry", telemetry["type"])
	assert.Equal(t, "init", telemetry["kind"])

	assert.Eventually(t, func() bool { return provider.frameCount() == 1 },
		2*time.Second, 10*time.Millisecond, "the block should reach the upstream provider")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "session.end"}))

	var ended map[string]any
	require.NoError(t, conn.ReadJSON(&ended))
	assert.Equal(t, "session.ended", ended["type"])
	assert.Equal(t, "ended by client", ended["reason"])
}

func TestWebSocketSession_RejectsBadRate(t *testing.T) {
	fixture := newTestServer(t, nil)

	ts := httptest.NewServer(fixture.server.server.Handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/realtime/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":        "session.start",
		"native_rate": 44123,
	}))

	var rejection map[string]any
	require.NoError(t, conn.ReadJSON(&rejection))
	assert.Equal(t, "error", rejection["type"])
	assert.Contains(t, rejection["message"], "unsupported native rate")
}
