// Package service implements the Artifact Service: the orchestrator owning
// the artifact lifecycle state machine, its idempotency and authorization
// checks, and backend dispatch. It is the single collaborator the HTTP
// layer calls into.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/taskcluster/artifactcore/artifact"
	"github.com/taskcluster/artifactcore/artifacterr"
	"github.com/taskcluster/artifactcore/authz"
	"github.com/taskcluster/artifactcore/monitor"
	"github.com/taskcluster/artifactcore/publisher"
	"github.com/taskcluster/artifactcore/store"
	"github.com/taskcluster/artifactcore/task"
)

const (
	createGraceWindow  = 15 * time.Minute
	exceptionWindow    = 25 * time.Minute
	putURLTTL          = 30*time.Minute + 10*time.Second
	signedGetTTL       = 30 * time.Minute
	writeSASTTL        = 30 * time.Minute
	defaultListLimit   = 1000
	maxListLimit       = 1000
)

// Bucket is the s3-bucket capability surface the service dispatches to,
// satisfied by *backend/s3.Bucket.
type Bucket interface {
	Name() string
	Region() string
	CreatePutUrl(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	CreateSignedGetUrl(ctx context.Context, key string, ttl time.Duration) (string, error)
	DirectURL(key string) string
	CloudFrontURL(key string) string
}

// BlobContainer is the blob-container capability surface, satisfied by
// *backend/azure.Container.
type BlobContainer interface {
	Name() string
	GenerateWriteSAS(ctx context.Context, path string, ttl time.Duration) (string, error)
	CreateSignedGetUrl(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// Config wires the Artifact Service to its collaborators: task reader,
// artifact store, authorizer, backend adapters, and event publisher.
type Config struct {
	Tasks          task.TaskReader
	Store          store.ArtifactStore
	Authorizer     authz.Authorizer
	Publisher      publisher.Publisher
	Monitor        monitor.Monitor
	PublicBucket   Bucket
	PrivateBucket  Bucket
	AzureContainer BlobContainer
	CloudMirrorHost string
	Logger         *slog.Logger
	// Now overrides the clock; defaults to time.Now. Tests set this to
	// pin "now" for grace-window and expiry assertions.
	Now func() time.Time
}

// Service is the Artifact Service.
type Service struct {
	tasks           task.TaskReader
	store           store.ArtifactStore
	authorizer      authz.Authorizer
	publisher       publisher.Publisher
	monitor         monitor.Monitor
	publicBucket    Bucket
	privateBucket   Bucket
	azureContainer  BlobContainer
	cloudMirrorHost string
	logger          *slog.Logger
	now             func() time.Time
}

// New builds a Service from cfg.
func New(cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tasks:           cfg.Tasks,
		store:           cfg.Store,
		authorizer:      cfg.Authorizer,
		publisher:       cfg.Publisher,
		monitor:         cfg.Monitor,
		publicBucket:    cfg.PublicBucket,
		privateBucket:   cfg.PrivateBucket,
		azureContainer:  cfg.AzureContainer,
		cloudMirrorHost: cfg.CloudMirrorHost,
		logger:          logger,
		now:             now,
	}
}

func prefixFor(taskID string, runID int64, name string) string {
	return taskID + "/" + strconv.FormatInt(runID, 10) + "/" + name
}

// ---- createArtifact ----

// CreateArtifactInput is the discriminated create request body.
type CreateArtifactInput struct {
	TaskID      string
	RunID       int64
	Name        string
	StorageType artifact.StorageType
	ContentType string
	Expires     time.Time
	URL         string // storageType == reference
	Message     string // storageType == error
	Reason      string // storageType == error
}

// CreateArtifactResult is the discriminated create reply.
type CreateArtifactResult struct {
	StorageType artifact.StorageType
	ContentType string
	Expires     time.Time
	PutURL      string
}

// CreateArtifact implements createArtifact.
func (s *Service) CreateArtifact(ctx context.Context, in CreateArtifactInput) (*CreateArtifactResult, error) {
	now := s.now()

	// 1. expiry grace window.
	if in.Expires.Before(now.Add(-createGraceWindow)) {
		return nil, artifacterr.Input("Expires must be in the future")
	}

	// 2. task must exist.
	t, ok, err := s.tasks.Load(ctx, in.TaskID)
	if err != nil {
		return nil, s.internal(err, "createArtifact", "load task %q", in.TaskID)
	}
	if !ok {
		return nil, artifacterr.Input("Task not found")
	}

	// 3. run must exist.
	if in.RunID < 0 || int(in.RunID) >= len(t.Runs) {
		return nil, artifacterr.Input("Run not found")
	}
	run := t.Runs[in.RunID]

	// 4. authorization.
	claims := authz.Claims{
		TaskID:      in.TaskID,
		RunID:       in.RunID,
		WorkerGroup: run.WorkerGroup,
		WorkerID:    run.WorkerID,
		Name:        in.Name,
	}
	if !s.authorizer.SatisfiesCreate(ctx, claims) {
		return nil, artifacterr.Authorization("insufficient scopes to create artifact %q", in.Name)
	}

	// 5. expires must not exceed task.expires.
	if in.Expires.After(t.Expires) {
		return nil, artifacterr.Input("expires %s is after task expires %s", in.Expires, t.Expires)
	}

	// 6. run must be uploadable.
	switch run.State {
	case task.RunRunning:
		// allowed
	case task.RunException:
		if now.Sub(run.Resolved) > exceptionWindow {
			return nil, artifacterr.Conflict("run %d resolved too long ago to accept uploads", in.RunID)
		}
	default:
		return nil, artifacterr.Conflict("run %d is not accepting uploads (status=%s)", in.RunID, t.Status())
	}

	// variant construction.
	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	details, err := s.buildDetails(in, contentType)
	if err != nil {
		return nil, err
	}

	rec := &artifact.Artifact{
		TaskID:      in.TaskID,
		RunID:       in.RunID,
		Name:        in.Name,
		StorageType: in.StorageType,
		ContentType: contentType,
		Expires:     in.Expires,
		Details:     details,
	}

	rec, err = s.persist(ctx, rec)
	if err != nil {
		return nil, err
	}

	if err := s.publish(t, rec, run); err != nil {
		return nil, err
	}

	return s.createReply(ctx, rec, now)
}

func (s *Service) buildDetails(in CreateArtifactInput, contentType string) (artifact.Details, error) {
	prefix := prefixFor(in.TaskID, in.RunID, in.Name)
	switch in.StorageType {
	case artifact.S3:
		bucket := s.privateBucket
		if artifact.IsPublicName(in.Name) {
			bucket = s.publicBucket
		}
		return artifact.S3Details{Bucket: bucket.Name(), Prefix: prefix}, nil
	case artifact.Azure:
		return artifact.AzureDetails{Container: s.azureContainer.Name(), Path: prefix}, nil
	case artifact.Reference:
		return artifact.ReferenceDetails{URL: in.URL}, nil
	case artifact.Error:
		return artifact.ErrorDetails{Message: in.Message, Reason: in.Reason}, nil
	default:
		// Unknown storageType is a programmer error, fatal.
		return nil, s.internal(nil, "createArtifact", "unknown storage type %q", in.StorageType)
	}
}

// persist performs the conditional-insert-then-reconcile idempotency branch.
// It must never fall back to read-then-insert.
func (s *Service) persist(ctx context.Context, rec *artifact.Artifact) (*artifact.Artifact, error) {
	err := s.store.Create(ctx, rec)
	if err == nil {
		return rec, nil
	}

	var conflict *store.ConflictError
	if !errors.As(err, &conflict) {
		return nil, s.internal(err, "createArtifact", "store create")
	}

	existing := conflict.Existing
	if existing.StorageType != rec.StorageType || existing.ContentType != rec.ContentType {
		return nil, artifacterr.Conflict("artifact %s already exists with a different storageType or contentType", rec.Name)
	}
	if rec.StorageType != artifact.Reference && !artifact.DetailsEqual(existing.Details, rec.Details) {
		return nil, artifacterr.Conflict("artifact %s already exists with different details", rec.Name)
	}

	// The max is taken against the record as Modify sees it, not the
	// conflict snapshot, so concurrent re-creates never lower expires.
	updated, err := s.store.Modify(ctx, rec.Key(), func(a *artifact.Artifact) error {
		if rec.Expires.After(a.Expires) {
			a.Expires = rec.Expires
		}
		if rec.StorageType == artifact.Reference {
			a.Details = rec.Details
		}
		return nil
	})
	if err != nil {
		return nil, s.internal(err, "createArtifact", "store modify")
	}
	return updated, nil
}

func (s *Service) publish(t *task.Task, rec *artifact.Artifact, run task.Run) error {
	event := publisher.ArtifactCreatedEvent{
		TaskID:      rec.TaskID,
		RunID:       rec.RunID,
		Status:      t.Status(),
		WorkerGroup: run.WorkerGroup,
		WorkerID:    run.WorkerID,
		Artifact:    rec.ToJSON(),
	}
	if err := s.publisher.PublishArtifactCreated(event, t.Routes); err != nil {
		s.monitor.ObservePublish(false)
		return s.internal(err, "createArtifact", "publish artifactCreated")
	}
	s.monitor.ObservePublish(true)
	return nil
}

func (s *Service) createReply(ctx context.Context, rec *artifact.Artifact, now time.Time) (*CreateArtifactResult, error) {
	switch rec.StorageType {
	case artifact.S3:
		d := rec.Details.(artifact.S3Details)
		bucket := s.bucketByName(d.Bucket)
		putURL, err := bucket.CreatePutUrl(ctx, d.Prefix, rec.ContentType, putURLTTL)
		if err != nil {
			return nil, s.internal(err, "createArtifact", "presign put url")
		}
		return &CreateArtifactResult{StorageType: artifact.S3, ContentType: rec.ContentType, Expires: now.Add(signedGetTTL), PutURL: putURL}, nil
	case artifact.Azure:
		d := rec.Details.(artifact.AzureDetails)
		putURL, err := s.azureContainer.GenerateWriteSAS(ctx, d.Path, writeSASTTL)
		if err != nil {
			return nil, s.internal(err, "createArtifact", "generate write sas")
		}
		return &CreateArtifactResult{StorageType: artifact.Azure, ContentType: rec.ContentType, Expires: now.Add(writeSASTTL), PutURL: putURL}, nil
	case artifact.Reference, artifact.Error:
		return &CreateArtifactResult{StorageType: rec.StorageType}, nil
	default:
		return nil, s.internal(nil, "createArtifact", "unknown storage type %q on stored artifact", rec.StorageType)
	}
}

func (s *Service) bucketByName(name string) Bucket {
	if s.publicBucket != nil && s.publicBucket.Name() == name {
		return s.publicBucket
	}
	return s.privateBucket
}

// ---- getArtifact / getLatestArtifact ----

// GetArtifactInput describes one get request, already resolved to an
// explicit runId or flagged Latest.
type GetArtifactInput struct {
	TaskID    string
	RunID     int64
	Latest    bool
	Name      string
	Region    string // from RegionResolver.RegionOf; "" means unknown
	SkipCache bool
}

// GetArtifactResult is either a redirect (Location set) or, for storageType
// "error", a 403 body.
type GetArtifactResult struct {
	Location string
	Forbidden *artifact.ErrorDetails
}

// GetArtifact implements getArtifact / getLatestArtifact.
func (s *Service) GetArtifact(ctx context.Context, in GetArtifactInput) (*GetArtifactResult, error) {
	t, ok, err := s.tasks.Load(ctx, in.TaskID)
	if err != nil {
		return nil, s.internal(err, "getArtifact", "load task %q", in.TaskID)
	}
	if !ok {
		return nil, artifacterr.NotFound("task %q not found", in.TaskID)
	}

	runID := in.RunID
	if in.Latest {
		if len(t.Runs) == 0 {
			return nil, artifacterr.NotFound("task %q has no runs", in.TaskID)
		}
		runID = int64(len(t.Runs) - 1)
	}

	if !artifact.IsPublicName(in.Name) {
		if !s.authorizer.SatisfiesGet(ctx, authz.Claims{Name: in.Name}) {
			return nil, artifacterr.Authorization("insufficient scopes to get artifact %q", in.Name)
		}
	}

	rec, err := s.store.Load(ctx, artifact.Key{TaskID: in.TaskID, RunID: runID, Name: in.Name})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, artifacterr.NotFound("artifact %q not found", in.Name)
		}
		return nil, s.internal(err, "getArtifact", "load artifact %q", in.Name)
	}

	return s.getReply(ctx, rec, in)
}

func (s *Service) getReply(ctx context.Context, rec *artifact.Artifact, in GetArtifactInput) (*GetArtifactResult, error) {
	switch rec.StorageType {
	case artifact.S3:
		return s.getS3Reply(ctx, rec, in)
	case artifact.Azure:
		d := rec.Details.(artifact.AzureDetails)
		if d.Container != s.azureContainer.Name() {
			// Sign against the currently configured container rather than
			// the one stored with the artifact.
			s.logger.Error("azure container mismatch", "stored", d.Container, "configured", s.azureContainer.Name(), "taskId", rec.TaskID, "name", rec.Name)
		}
		signed, err := s.azureContainer.CreateSignedGetUrl(ctx, d.Path, signedGetTTL)
		if err != nil {
			return nil, s.internal(err, "getArtifact", "sign azure get url")
		}
		return &GetArtifactResult{Location: signed}, nil
	case artifact.Reference:
		d := rec.Details.(artifact.ReferenceDetails)
		return &GetArtifactResult{Location: d.URL}, nil
	case artifact.Error:
		d := rec.Details.(artifact.ErrorDetails)
		return &GetArtifactResult{Forbidden: &d}, nil
	default:
		return nil, s.internal(nil, "getArtifact", "unknown storage type %q on artifact %s", rec.StorageType, rec.Name)
	}
}

func (s *Service) getS3Reply(ctx context.Context, rec *artifact.Artifact, in GetArtifactInput) (*GetArtifactResult, error) {
	d := rec.Details.(artifact.S3Details)

	if s.publicBucket == nil || d.Bucket != s.publicBucket.Name() {
		signed, err := s.privateBucket.CreateSignedGetUrl(ctx, d.Prefix, signedGetTTL)
		if err != nil {
			return nil, s.internal(err, "getArtifact", "sign s3 get url")
		}
		return &GetArtifactResult{Location: signed}, nil
	}

	if in.Region == "" || in.SkipCache {
		return &GetArtifactResult{Location: s.publicBucket.CloudFrontURL(d.Prefix)}, nil
	}
	if in.Region == s.publicBucket.Region() {
		return &GetArtifactResult{Location: s.publicBucket.DirectURL(d.Prefix)}, nil
	}
	canonical := s.publicBucket.DirectURL(d.Prefix)
	location := fmt.Sprintf("https://%s/v1/redirect/s3/%s/%s", s.cloudMirrorHost, in.Region, url.PathEscape(canonical))
	return &GetArtifactResult{Location: location}, nil
}

// ---- listArtifacts / listLatestArtifacts ----

// ListArtifactsInput describes one list request.
type ListArtifactsInput struct {
	TaskID       string
	RunID        int64
	Latest       bool
	Continuation []byte
	Limit        int
}

// ListArtifactsResult is the list reply.
type ListArtifactsResult struct {
	Artifacts    []artifact.JSON
	Continuation []byte
}

// ListArtifacts implements listArtifacts / listLatestArtifacts.
func (s *Service) ListArtifacts(ctx context.Context, in ListArtifactsInput) (*ListArtifactsResult, error) {
	t, ok, err := s.tasks.Load(ctx, in.TaskID)
	if err != nil {
		return nil, s.internal(err, "listArtifacts", "load task %q", in.TaskID)
	}
	if !ok {
		return nil, artifacterr.NotFound("task %q not found", in.TaskID)
	}

	runID := in.RunID
	if in.Latest {
		if len(t.Runs) == 0 {
			return nil, artifacterr.NotFound("task %q has no runs", in.TaskID)
		}
		runID = int64(len(t.Runs) - 1)
	} else if runID < 0 || int(runID) >= len(t.Runs) {
		return nil, artifacterr.NotFound("run %d not found", runID)
	}

	limit := in.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	page, err := s.store.Query(ctx, in.TaskID, runID, store.QueryOptions{Continuation: in.Continuation, Limit: limit})
	if err != nil {
		return nil, s.internal(err, "listArtifacts", "query store")
	}

	out := make([]artifact.JSON, 0, len(page.Entries))
	for _, a := range page.Entries {
		out = append(out, a.ToJSON())
	}
	return &ListArtifactsResult{Artifacts: out, Continuation: page.Continuation}, nil
}

func (s *Service) internal(cause error, op, format string, args ...any) error {
	err := artifacterr.Internal(cause, format, args...)
	s.monitor.ReportError(err, op)
	return err
}
