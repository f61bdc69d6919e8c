package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"mediagen/internal/domain"
	"mediagen/internal/pipeline"
)

const defaultMaxUpload = 32 << 20

type createJobRequest struct {
	SourceURL         string   `json:"sourceUrl"`
	SourceRef         string   `json:"sourceRef"`
	Directive         string   `json:"directive"`
	NegativeDirective string   `json:"negativeDirective"`
	PresetKey         string   `json:"presetKey"`
	Model             string   `json:"model"`
	Strength          *float64 `json:"strength"`
	Visibility        string   `json:"visibility"`
	AllowRemix        bool     `json:"allowRemix"`
	Kind              string   `json:"kind"`
	Shots             []string `json:"shots"`
	FPS               int      `json:"fps"`
	Width             int      `json:"width"`
	Height            int      `json:"height"`
}

func (req createJobRequest) toSubmit(userID string) pipeline.SubmitRequest {
	return pipeline.SubmitRequest{
		UserID:            userID,
		Kind:              req.Kind,
		Source:            pipeline.Input{URL: strings.TrimSpace(req.SourceURL), Ref: strings.TrimSpace(req.SourceRef)},
		Directive:         req.Directive,
		NegativeDirective: req.NegativeDirective,
		PresetKey:         req.PresetKey,
		Model:             req.Model,
		Strength:          req.Strength,
		Visibility:        domain.ParseVisibility(req.Visibility),
		AllowRemix:        req.AllowRemix,
		Shots:             req.Shots,
		FPS:               req.FPS,
		Width:             req.Width,
		Height:            req.Height,
	}
}

// CreateJob accepts a JSON or multipart submission and queues a job.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user context")
		return
	}
	req, err := a.decodeSubmission(r, userID)
	if err != nil {
		a.error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if a.Direct {
		res, err := a.Submit.SubmitDirect(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		a.json(w, http.StatusOK, map[string]any{
			"ok":            true,
			"providerJobId": res.ProviderJobID,
			"resultUrl":     res.ResultURL,
		})
		return
	}

	res, err := a.Submit.Submit(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{
		"ok":     true,
		"jobId":  res.JobID,
		"status": res.Status,
	})
}

func (a *App) decodeSubmission(r *http.Request, userID string) (pipeline.SubmitRequest, error) {
	limit := a.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var body createJobRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
			return pipeline.SubmitRequest{}, fmt.Errorf("invalid payload")
		}
		return body.toSubmit(userID), nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		return pipeline.SubmitRequest{}, fmt.Errorf("invalid multipart payload")
	}
	form := createJobRequest{
		SourceURL:         r.FormValue("sourceUrl"),
		SourceRef:         r.FormValue("sourceRef"),
		Directive:         r.FormValue("directive"),
		NegativeDirective: r.FormValue("negativeDirective"),
		PresetKey:         r.FormValue("presetKey"),
		Model:             r.FormValue("model"),
		Visibility:        r.FormValue("visibility"),
		Kind:              r.FormValue("kind"),
		Shots:             r.MultipartForm.Value["shots"],
	}
	form.AllowRemix, _ = strconv.ParseBool(r.FormValue("allowRemix"))
	form.FPS, _ = strconv.Atoi(r.FormValue("fps"))
	form.Width, _ = strconv.Atoi(r.FormValue("width"))
	form.Height, _ = strconv.Atoi(r.FormValue("height"))
	if raw := strings.TrimSpace(r.FormValue("strength")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return pipeline.SubmitRequest{}, fmt.Errorf("strength must be a number")
		}
		form.Strength = &v
	}
	req := form.toSubmit(userID)

	file, header, err := r.FormFile("file")
	switch {
	case err == http.ErrMissingFile:
	case err != nil:
		return pipeline.SubmitRequest{}, fmt.Errorf("invalid file")
	default:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return pipeline.SubmitRequest{}, fmt.Errorf("read file: %w", err)
		}
		req.Source = pipeline.Input{
			Data:        data,
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
		}
	}
	return req, nil
}

// GetJob returns the client envelope; ?persist=true finalizes a completed job.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user context")
		return
	}
	if a.Status == nil {
		a.error(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "job store unavailable")
		return
	}
	jobID := chi.URLParam(r, "id")
	persist, _ := strconv.ParseBool(r.URL.Query().Get("persist"))
	res, err := a.Status.Poll(r.Context(), userID, jobID, persist)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}

// GetStatus returns the generic status record.
func (a *App) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user context")
		return
	}
	if a.Status == nil {
		a.error(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "job store unavailable")
		return
	}
	rec, err := a.Status.Status(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, rec)
}
