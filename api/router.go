package api

import (
	"log/slog"
	"net/http"

	"github.com/taskcluster/artifactcore/config"
	"github.com/taskcluster/artifactcore/region"
	"github.com/taskcluster/artifactcore/service"
)

// Deps groups the collaborators NewRouter wires into the Request Adaptor.
type Deps struct {
	Service  *service.Service
	Resolver *region.Resolver
	Monitor  Observer // typically *monitor.PrometheusMonitor
	Metrics  http.Handler // optional: serves the Monitor's own exposition format
	Logger   *slog.Logger
}

// NewRouter creates an http.Handler with the five artifact endpoints
// registered on a Go 1.22+ method+pattern ServeMux. The returned stop func
// terminates the rate limiter's background cleanup goroutine and should be
// called on shutdown.
func NewRouter(deps Deps, rl config.RateLimitConfig, jwtSecret []byte) (http.Handler, func()) {
	mux := http.NewServeMux()

	mw := NewMiddleware(jwtSecret, deps.Logger)
	h := NewArtifactHandler(deps.Service, deps.Resolver)
	limit := mw.RateLimit(rl.RequestsPerSecond, rl.Burst)

	wrap := func(op string, handler http.HandlerFunc) http.Handler {
		return Trace(op, RequestID(limit(mw.Authenticate(mw.RequestLogger(op, deps.Monitor, handler)))))
	}

	mux.Handle("POST /task/{taskId}/runs/{runId}/artifacts/{name...}", wrap("createArtifact", h.CreateArtifact))
	mux.Handle("GET /task/{taskId}/runs/{runId}/artifacts/{name...}", wrap("getArtifact", h.GetArtifact))
	mux.Handle("GET /task/{taskId}/artifacts/{name...}", wrap("getLatestArtifact", h.GetLatestArtifact))
	mux.Handle("GET /task/{taskId}/runs/{runId}/artifacts", wrap("listArtifacts", h.ListArtifacts))
	mux.Handle("GET /task/{taskId}/artifacts", wrap("listLatestArtifacts", h.ListLatestArtifacts))

	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	return mux, mw.Stop
}
