package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"subtitler/internal/config"
	"subtitler/internal/logging"
	"subtitler/internal/metrics"
	"subtitler/internal/pipeline"
	"subtitler/internal/services"
	"subtitler/internal/subtitles"
	"subtitler/internal/testsupport"
)

const sampleSRT = "1\n00:00:00,000 --> 00:00:01,000\nHello\n\n"

type stubRunner struct {
	result   pipeline.Result
	err      error
	got      pipeline.Request
	uploaded []byte
}

func (s *stubRunner) Run(_ context.Context, req pipeline.Request) (pipeline.Result, error) {
	s.got = req
	s.uploaded, _ = os.ReadFile(req.Video)
	if s.err != nil {
		return s.result, s.err
	}
	if err := os.WriteFile(req.OutputPath, []byte(sampleSRT), 0o644); err != nil {
		return pipeline.Result{}, err
	}
	res := s.result
	res.OutputPath = req.OutputPath
	return res, nil
}

type stubTranslation struct {
	target string
}

func (s *stubTranslation) Translate(_ context.Context, content, target string, _ pipeline.ProgressFunc) (pipeline.TranslateResult, error) {
	s.target = target
	return pipeline.TranslateResult{Content: strings.ToUpper(content), Target: target, Untranslated: []int{2, 5}}, nil
}

type stubMuxer struct {
	req subtitles.MuxRequest
	err error
}

func (s *stubMuxer) Mux(_ context.Context, req subtitles.MuxRequest) (subtitles.MuxResult, error) {
	s.req = req
	if s.err != nil {
		return subtitles.MuxResult{}, s.err
	}
	if err := os.WriteFile(req.OutputPath, []byte("muxed video"), 0o644); err != nil {
		return subtitles.MuxResult{}, err
	}
	return subtitles.MuxResult{OutputPath: req.OutputPath, Mode: req.Mode}, nil
}

type formFile struct {
	field, name, content string
}

func multipartRequest(t *testing.T, path string, files []formFile, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := io.WriteString(part, f.content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func newTestServer(t *testing.T, deps Dependencies, opts ...testsupport.ConfigOption) (*Server, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	return New(cfg, deps, logging.NewNop()), cfg
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func assertWorkDirEmpty(t *testing.T, cfg *config.Config) {
	t.Helper()
	entries, err := os.ReadDir(cfg.Paths.WorkDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty work dir, found %d entries", len(entries))
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, Dependencies{})
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected healthz response %d %s", rec.Code, rec.Body.String())
	}
}

func TestLanguages(t *testing.T) {
	srv, cfg := newTestServer(t, Dependencies{})
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/languages", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp languagesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Languages) != len(cfg.Translation.Languages) {
		t.Fatalf("expected %d languages, got %d", len(cfg.Translation.Languages), len(resp.Languages))
	}
	if resp.Languages[1].Code != "ru" || resp.Languages[1].Name == "" {
		t.Fatalf("unexpected language entry %+v", resp.Languages[1])
	}
}

func TestSubtitlesReturnsSRTWithFailedParts(t *testing.T) {
	runner := &stubRunner{result: pipeline.Result{
		RunID:         "run-1",
		PartsPlanned:  3,
		PartsProduced: 3,
		Failures:      []pipeline.PartFailure{{Sequence: 2, Err: errors.New("boom")}},
	}}
	srv, cfg := newTestServer(t, Dependencies{Runner: runner, Metrics: metrics.New()})

	req := multipartRequest(t, "/api/subtitles",
		[]formFile{{field: "video", name: "My Lecture.mp4", content: "video-bytes"}},
		map[string]string{"model": "small"})
	rec := serve(srv, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != sampleSRT {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if got := rec.Header().Get(headerFailedParts); got != "2" {
		t.Fatalf("expected failed parts header 2, got %q", got)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "My_Lecture.srt") {
		t.Fatalf("unexpected disposition %q", rec.Header().Get("Content-Disposition"))
	}
	if string(runner.uploaded) != "video-bytes" || runner.got.Model != "small" {
		t.Fatalf("runner saw %q model=%q", runner.uploaded, runner.got.Model)
	}
	assertWorkDirEmpty(t, cfg)
}

func TestSubtitlesAggregateFailure(t *testing.T) {
	agg := &pipeline.AggregateFailure{Failures: []pipeline.PartFailure{
		{Sequence: 1, Err: errors.New("a")},
		{Sequence: 2, Err: errors.New("b")},
		{Sequence: 3, Err: errors.New("c")},
	}}
	srv, cfg := newTestServer(t, Dependencies{Runner: &stubRunner{err: agg}})

	rec := serve(srv, multipartRequest(t, "/api/subtitles", []formFile{{field: "video", name: "v.mp4", content: "x"}}, nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if got := rec.Header().Get(headerFailedParts); got != "1,2,3" {
		t.Fatalf("expected all parts in header, got %q", got)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Kind != "aggregate" {
		t.Fatalf("unexpected kind %q", resp.Kind)
	}
	assertWorkDirEmpty(t, cfg)
}

func TestSubtitlesRequiresVideoField(t *testing.T) {
	srv, _ := newTestServer(t, Dependencies{Runner: &stubRunner{}})
	rec := serve(srv, multipartRequest(t, "/api/subtitles", nil, map[string]string{"model": "base"}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubtitlesRejectsOversizedUpload(t *testing.T) {
	srv, cfg := newTestServer(t, Dependencies{Runner: &stubRunner{}})
	cfg.Server.MaxUploadMB = 1
	big := strings.Repeat("x", 2<<20)
	rec := serve(srv, multipartRequest(t, "/api/subtitles", []formFile{{field: "video", name: "v.mp4", content: big}}, nil))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestTranslate(t *testing.T) {
	translation := &stubTranslation{}
	srv, _ := newTestServer(t, Dependencies{Translation: translation})

	rec := serve(srv, multipartRequest(t, "/api/translate",
		[]formFile{{field: "subtitle", name: "talk.srt", content: sampleSRT}},
		map[string]string{"lang": "ZH-cn"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if translation.target != "zh-CN" {
		t.Fatalf("expected configured spelling zh-CN, got %q", translation.target)
	}
	if rec.Body.String() != strings.ToUpper(sampleSRT) {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if rec.Header().Get(headerUntranslatedBlocks) != "2" {
		t.Fatalf("unexpected untranslated header %q", rec.Header().Get(headerUntranslatedBlocks))
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "talk.zh-CN.srt") {
		t.Fatalf("unexpected disposition %q", rec.Header().Get("Content-Disposition"))
	}
}

func TestTranslateRejectsUnsupportedLanguage(t *testing.T) {
	srv, _ := newTestServer(t, Dependencies{Translation: &stubTranslation{}})
	rec := serve(srv, multipartRequest(t, "/api/translate",
		[]formFile{{field: "subtitle", name: "talk.srt", content: sampleSRT}},
		map[string]string{"lang": "xx"}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTranslateUnavailableWithoutProvider(t *testing.T) {
	srv, _ := newTestServer(t, Dependencies{})
	rec := serve(srv, multipartRequest(t, "/api/translate",
		[]formFile{{field: "subtitle", name: "talk.srt", content: sampleSRT}},
		map[string]string{"lang": "ru"}))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestBurn(t *testing.T) {
	muxer := &stubMuxer{}
	srv, cfg := newTestServer(t, Dependencies{Muxer: muxer})

	rec := serve(srv, multipartRequest(t, "/api/burn",
		[]formFile{
			{field: "video", name: "clip.mp4", content: "video"},
			{field: "subtitle", name: "clip.srt", content: sampleSRT},
		}, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "muxed video" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if muxer.req.Mode != cfg.Mux.Mode {
		t.Fatalf("expected default mode %q, got %q", cfg.Mux.Mode, muxer.req.Mode)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "clip_subtitled.mp4") {
		t.Fatalf("unexpected disposition %q", rec.Header().Get("Content-Disposition"))
	}
	assertWorkDirEmpty(t, cfg)
}

func TestBurnMuxFailure(t *testing.T) {
	muxer := &stubMuxer{err: services.Wrap(services.ErrMux, "mux", "burn", "ffmpeg failed", errors.New("exit status 1"))}
	srv, _ := newTestServer(t, Dependencies{Muxer: muxer})
	rec := serve(srv, multipartRequest(t, "/api/burn",
		[]formFile{
			{field: "video", name: "clip.mp4", content: "video"},
			{field: "subtitle", name: "clip.srt", content: sampleSRT},
		}, map[string]string{"mode": "soft"}))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if muxer.req.Mode != "soft" {
		t.Fatalf("expected soft mode, got %q", muxer.req.Mode)
	}
}

func TestBearerAuth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Server.Token = "secret"
	srv := New(cfg, Dependencies{}, logging.NewNop())

	if rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/languages", nil)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/languages", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if rec := serve(srv, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/languages", nil)
	req.Header.Set("Authorization", "Bearer secret")
	if rec := serve(srv, req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
	if rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Fatalf("healthz must not require auth, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, Dependencies{Metrics: metrics.New()})
	serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "subtitler_http_requests_total 1") {
		t.Fatalf("unexpected metrics response %d:\n%s", rec.Code, rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{services.Wrap(services.ErrValidation, "x", "y", "bad", nil), http.StatusBadRequest},
		{services.Wrap(services.ErrProbe, "x", "y", "probe", nil), http.StatusUnprocessableEntity},
		{services.Wrap(services.ErrConfiguration, "x", "y", "cfg", nil), http.StatusServiceUnavailable},
		{services.Wrap(services.ErrMux, "x", "y", "mux", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
