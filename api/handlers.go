package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/taskcluster/artifactcore/artifact"
	"github.com/taskcluster/artifactcore/region"
	"github.com/taskcluster/artifactcore/service"
)

// ArtifactHandler is the HTTP-to-service adaptor: thin translation between
// HTTP requests and Artifact Service calls. It owns no business logic
// beyond parsing and response shaping.
type ArtifactHandler struct {
	service  *service.Service
	resolver *region.Resolver
}

// NewArtifactHandler creates an ArtifactHandler.
func NewArtifactHandler(svc *service.Service, resolver *region.Resolver) *ArtifactHandler {
	return &ArtifactHandler{service: svc, resolver: resolver}
}

type createArtifactRequest struct {
	StorageType string `json:"storageType"`
	ContentType string `json:"contentType"`
	Expires     string `json:"expires"`
	URL         string `json:"url"`
	Message     string `json:"message"`
	Reason      string `json:"reason"`
}

type createArtifactResponse struct {
	StorageType string `json:"storageType"`
	ContentType string `json:"contentType,omitempty"`
	Expires     string `json:"expires,omitempty"`
	PutURL      string `json:"putUrl,omitempty"`
}

// CreateArtifact handles "POST /task/{taskId}/runs/{runId}/artifacts/{name...}".
func (h *ArtifactHandler) CreateArtifact(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, r)
	if !ok {
		return
	}

	var body createArtifactRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "InputError", "invalid JSON body")
		return
	}
	expires, err := parseTime(body.Expires)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InputError", "invalid expires timestamp")
		return
	}

	res, err := h.service.CreateArtifact(r.Context(), service.CreateArtifactInput{
		TaskID:      r.PathValue("taskId"),
		RunID:       runID,
		Name:        r.PathValue("name"),
		StorageType: artifact.StorageType(body.StorageType),
		ContentType: body.ContentType,
		Expires:     expires,
		URL:         body.URL,
		Message:     body.Message,
		Reason:      body.Reason,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := createArtifactResponse{StorageType: string(res.StorageType), ContentType: res.ContentType, PutURL: res.PutURL}
	if !res.Expires.IsZero() {
		out.Expires = res.Expires.UTC().Format(timeLayout)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetArtifact handles "GET /task/{taskId}/runs/{runId}/artifacts/{name...}".
func (h *ArtifactHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, r)
	if !ok {
		return
	}
	h.get(w, r, runID, false)
}

// GetLatestArtifact handles "GET /task/{taskId}/artifacts/{name...}".
func (h *ArtifactHandler) GetLatestArtifact(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, 0, true)
}

func (h *ArtifactHandler) get(w http.ResponseWriter, r *http.Request, runID int64, latest bool) {
	res, err := h.service.GetArtifact(r.Context(), service.GetArtifactInput{
		TaskID:    r.PathValue("taskId"),
		RunID:     runID,
		Latest:    latest,
		Name:      r.PathValue("name"),
		Region:    h.resolver.RegionOf(r),
		SkipCache: region.SkipCache(r),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if res.Forbidden != nil {
		writeJSON(w, http.StatusForbidden, res.Forbidden)
		return
	}
	w.Header().Set("Location", res.Location)
	w.WriteHeader(http.StatusSeeOther)
}

type listArtifactsResponse struct {
	Artifacts         []artifact.JSON `json:"artifacts"`
	ContinuationToken string          `json:"continuationToken,omitempty"`
}

// ListArtifacts handles "GET /task/{taskId}/runs/{runId}/artifacts".
func (h *ArtifactHandler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, r)
	if !ok {
		return
	}
	h.list(w, r, runID, false)
}

// ListLatestArtifacts handles "GET /task/{taskId}/artifacts".
func (h *ArtifactHandler) ListLatestArtifacts(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, 0, true)
}

func (h *ArtifactHandler) list(w http.ResponseWriter, r *http.Request, runID int64, latest bool) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "InputError", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	res, err := h.service.ListArtifacts(r.Context(), service.ListArtifactsInput{
		TaskID:       r.PathValue("taskId"),
		RunID:        runID,
		Latest:       latest,
		Continuation: []byte(q.Get("continuationToken")),
		Limit:        limit,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listArtifactsResponse{
		Artifacts:         res.Artifacts,
		ContinuationToken: string(res.Continuation),
	})
}

const timeLayout = time.RFC3339

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseRunID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("runId")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "InputError", "invalid runId")
		return 0, false
	}
	return n, true
}
