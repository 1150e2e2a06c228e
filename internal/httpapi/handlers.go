package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"subtitler/internal/fileutil"
	"subtitler/internal/logging"
	"subtitler/internal/metrics"
	"subtitler/internal/pipeline"
	"subtitler/internal/services"
	"subtitler/internal/staging"
	"subtitler/internal/subtitles"
	"subtitler/internal/textutil"
)

const (
	headerFailedParts        = "X-Subtitler-Failed-Parts"
	headerUntranslatedBlocks = "X-Subtitler-Untranslated-Blocks"
	headerRunID              = "X-Subtitler-Run-ID"
	srtContentType           = "application/x-subrip; charset=utf-8"
	multipartMemory          = 32 << 20
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type languageOption struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	NativeName string `json:"native_name"`
}

type languagesResponse struct {
	Languages []languageOption `json:"languages"`
	Source    string           `json:"source"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	options := s.languages.Options()
	resp := languagesResponse{
		Languages: make([]languageOption, 0, len(options)),
		Source:    s.cfg.Translation.SourceLanguage,
	}
	for _, opt := range options {
		resp.Languages = append(resp.Languages, languageOption{Code: opt.Code, Name: opt.Name, NativeName: opt.NativeName})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runner == nil {
		s.writeFailure(w, r, services.Wrap(services.ErrConfiguration, "http", "subtitles", "pipeline not configured", nil))
		return
	}
	defer s.deps.Metrics.TrackRun()()

	run, err := staging.NewRun(s.cfg.Paths.WorkDir, s.logger)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	defer run.Close()

	if err := s.parseMultipart(w, r); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	video, original, err := s.saveUpload(r, "video", run.Dir, "upload")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	result, err := s.deps.Runner.Run(r.Context(), pipeline.Request{
		Video:      video,
		Model:      strings.TrimSpace(r.FormValue("model")),
		OutputPath: run.Path("subtitles.srt"),
	})
	s.deps.Metrics.ObserveRun(metrics.Outcome(result.Partial(), err), len(result.FailedSequences()), result.CacheHits, result.Elapsed)
	if err != nil {
		var agg *pipeline.AggregateFailure
		if errors.As(err, &agg) {
			w.Header().Set(headerFailedParts, joinInts(agg.Sequences()))
		}
		s.writeFailure(w, r, err)
		return
	}

	data, err := os.ReadFile(result.OutputPath)
	if err != nil {
		s.writeFailure(w, r, services.Wrap(services.ErrTransient, "http", "subtitles", "read output", err))
		return
	}
	w.Header().Set("Content-Type", srtContentType)
	w.Header().Set("Content-Disposition", attachment(stem(original)+".srt"))
	w.Header().Set(headerFailedParts, joinInts(result.FailedSequences()))
	w.Header().Set(headerRunID, result.RunID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Translation == nil {
		s.writeFailure(w, r, services.Wrap(services.ErrConfiguration, "http", "translate", "translation provider not configured", nil))
		return
	}
	if err := s.parseMultipart(w, r); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	requested := r.FormValue("lang")
	target, ok := s.languages.Resolve(requested)
	if !ok {
		s.writeFailure(w, r, services.Wrap(services.ErrValidation, "http", "translate",
			fmt.Sprintf("unsupported language %q (supported: %s)", requested, strings.Join(s.languages.Codes(), ", ")), nil))
		return
	}
	file, header, err := r.FormFile("subtitle")
	if err != nil {
		s.writeFailure(w, r, services.Wrap(services.ErrValidation, "http", "translate", `missing "subtitle" file field`, err))
		return
	}
	content, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		s.writeFailure(w, r, services.Wrap(services.ErrValidation, "http", "translate", "read upload", err))
		return
	}

	result, err := s.deps.Translation.Translate(r.Context(), string(content), target, nil)
	s.deps.Metrics.ObserveTranslation(metrics.Outcome(len(result.Untranslated) > 0, err), len(result.Untranslated))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", srtContentType)
	w.Header().Set("Content-Disposition", attachment(fmt.Sprintf("%s.%s.srt", stem(header.Filename), target)))
	w.Header().Set(headerUntranslatedBlocks, strconv.Itoa(len(result.Untranslated)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, result.Content)
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	if s.deps.Muxer == nil {
		s.writeFailure(w, r, services.Wrap(services.ErrConfiguration, "http", "burn", "muxer not configured", nil))
		return
	}
	defer s.deps.Metrics.TrackRun()()

	run, err := staging.NewRun(s.cfg.Paths.WorkDir, s.logger)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	defer run.Close()

	if err := s.parseMultipart(w, r); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	video, original, err := s.saveUpload(r, "video", run.Dir, "upload")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	subtitle, _, err := s.saveUpload(r, "subtitle", run.Dir, "subtitle")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	mode := strings.ToLower(strings.TrimSpace(r.FormValue("mode")))
	if mode == "" {
		mode = s.cfg.Mux.Mode
	}
	ext := filepath.Ext(original)
	if ext == "" {
		ext = ".mp4"
	}
	result, err := s.deps.Muxer.Mux(r.Context(), subtitles.MuxRequest{
		VideoPath:    video,
		SubtitlePath: subtitle,
		OutputPath:   run.Path("subtitled" + ext),
		Mode:         mode,
		Language:     strings.TrimSpace(r.FormValue("lang")),
	})
	s.deps.Metrics.ObserveMux(mode, metrics.Outcome(false, err))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	f, err := os.Open(result.OutputPath)
	if err != nil {
		s.writeFailure(w, r, services.Wrap(services.ErrTransient, "http", "burn", "open output", err))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.writeFailure(w, r, services.Wrap(services.ErrTransient, "http", "burn", "stat output", err))
		return
	}
	name := stem(original) + "_subtitled" + ext
	if ctype := mime.TypeByExtension(ext); ctype != "" {
		w.Header().Set("Content-Type", ctype)
	}
	w.Header().Set("Content-Disposition", attachment(name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// parseMultipart enforces server.max_upload_mb and parses the form.
func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	limit := int64(s.cfg.Server.MaxUploadMB) << 20
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("upload exceeds %d MB: %w", s.cfg.Server.MaxUploadMB, err)
		}
		if strings.Contains(err.Error(), "request body too large") {
			return fmt.Errorf("upload exceeds %d MB: %w", s.cfg.Server.MaxUploadMB, &http.MaxBytesError{Limit: limit})
		}
		return services.Wrap(services.ErrValidation, "http", "upload", "invalid multipart form", err)
	}
	return nil
}

// saveUpload copies a multipart file field into dir under a unique, safe
// name. It returns the saved path and the client's file name.
func (s *Server) saveUpload(r *http.Request, field, dir, prefix string) (string, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", "", services.Wrap(services.ErrValidation, "http", "upload", fmt.Sprintf("missing %q file field", field), err)
	}
	defer file.Close()

	path := filepath.Join(dir, textutil.UniqueName(header.Filename, prefix, s.now()))
	written, err := fileutil.WriteReader(path, file)
	if err != nil {
		return "", "", services.Wrap(services.ErrTransient, "http", "upload", "save "+field, err)
	}
	logging.WithContext(r.Context(), s.logger).Debug("upload saved",
		logging.String("field", field),
		logging.String("path", path),
		logging.Int64("bytes", written),
	)
	return path, header.Filename, nil
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := logging.WithContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logger, "request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.String("error_kind", services.Kind(err)),
			logging.Error(err),
		)
	} else {
		logger.Info("request rejected",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.String("error_kind", services.Kind(err)),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Kind: services.Kind(err)})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrNotFound):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrAggregate), errors.Is(err, services.ErrProbe):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	case services.IsTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func attachment(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}

func stem(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if safe := textutil.SafeName(base); safe != "" {
		return safe
	}
	return "subtitles"
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, strconv.Itoa(v))
	}
	return strings.Join(parts, ",")
}
