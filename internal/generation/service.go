package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"disc-report/internal/attempts"
	"disc-report/internal/delivery"
	"disc-report/internal/pdfmerge"
	"disc-report/internal/queue"
	"disc-report/internal/render"
	"disc-report/internal/report"
	"disc-report/internal/scoring"
	"disc-report/internal/shared/metrics"
	"disc-report/internal/shared/storage/object"
	"disc-report/internal/shared/telemetry"
)

// DocumentAssembler builds per-page HTML for a report.
type DocumentAssembler interface {
	Assemble(ctx context.Context, in report.Input) (report.Document, error)
}

// Service runs the finish flow: scoring, the generation lock, assembly,
// rendering, merging, storage and delivery.
type Service struct {
	Repo      attempts.Repo
	Lock      *attempts.Lock
	Scorer    *scoring.Engine
	Assembler DocumentAssembler
	Renderer  render.Renderer
	Delivery  *delivery.Manager
	Configs   delivery.ConfigRepo
	Store     object.ObjectStore
	Signer    object.Signer
	Queue     queue.Client
	Cfg       Config
	Now       func() time.Time
}

// RegisterRequest creates an attempt for a candidate.
type RegisterRequest struct {
	AttemptID      string `json:"attemptId"`
	CandidateName  string `json:"candidateName"`
	CandidateEmail string `json:"candidateEmail"`
}

// FinishRequest carries the completed questionnaire.
type FinishRequest struct {
	Answers        []scoring.Answer `json:"answers"`
	CandidateName  string           `json:"candidateName"`
	AssessmentDate *time.Time       `json:"assessmentDate"`
}

// Result is the outcome of a finish, process or resend call.
type Result struct {
	From        string
	Status      string
	StoragePath string
	Filename    string
	Cached      bool
	EmailStatus string
	RetryAfter  time.Duration
	Delivery    *delivery.Result
}

// Ready reports whether the document exists.
func (r Result) Ready() bool { return r.Status == attempts.StatusDone }

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (r Result) RetryAfterSeconds() int {
	return int((r.RetryAfter + time.Second - 1) / time.Second)
}

// DocumentAccess is either a signed URL or an open stream.
type DocumentAccess struct {
	URL       string
	ExpiresAt time.Time
	Body      io.ReadCloser
	Filename  string
}

// Register creates a new attempt owned by ownerID.
func (s *Service) Register(ctx context.Context, ownerID string, req RegisterRequest) (attempts.Attempt, error) {
	name := strings.TrimSpace(req.CandidateName)
	email := strings.TrimSpace(req.CandidateEmail)
	if ownerID == "" || name == "" {
		return attempts.Attempt{}, fmt.Errorf("%w: candidateName is required", ErrInvalidRequest)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return attempts.Attempt{}, fmt.Errorf("%w: candidateEmail is invalid", ErrInvalidRequest)
	}
	id := strings.TrimSpace(req.AttemptID)
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return attempts.Attempt{}, fmt.Errorf("%w: attemptId must be a uuid", ErrInvalidRequest)
	}

	a := attempts.Attempt{
		ID:             id,
		OwnerID:        ownerID,
		CandidateName:  name,
		CandidateEmail: email,
		Status:         attempts.StatusNone,
		EmailStatus:    attempts.EmailUnset,
		CreatedAt:      s.now(),
	}
	if err := s.Repo.Create(ctx, a); err != nil {
		return attempts.Attempt{}, err
	}
	telemetry.Info("attempt.registered", map[string]any{
		"attempt_id": id,
		"owner_id":   ownerID,
		"request_id": requestIDFromContext(ctx),
	})
	return a, nil
}

// Get returns the attempt if ownerID owns it.
func (s *Service) Get(ctx context.Context, ownerID, id string) (attempts.Attempt, error) {
	a, err := s.Repo.Get(ctx, id)
	if errors.Is(err, attempts.ErrNotFound) {
		return attempts.Attempt{}, ErrNotFound
	}
	if err != nil {
		return attempts.Attempt{}, err
	}
	if a.OwnerID != ownerID {
		return attempts.Attempt{}, ErrNotFound
	}
	return a, nil
}

// Finish scores the answers and produces the report. Finished attempts are
// answered from the stored document; concurrent finishes get a retry delay.
func (s *Service) Finish(ctx context.Context, ownerID, id string, req FinishRequest) (Result, error) {
	a, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return Result{}, err
	}

	res, err := s.finish(ctx, a, req)
	res.From = a.Status
	return res, err
}

func (s *Service) finish(ctx context.Context, a attempts.Attempt, req FinishRequest) (Result, error) {
	id := a.ID
	switch a.Status {
	case attempts.StatusDone, attempts.StatusProcessing:
		return s.Process(ctx, id)
	}

	score, err := s.score(req.Answers)
	if err != nil {
		return Result{}, err
	}
	finishedAt := s.now()
	if req.AssessmentDate != nil && !req.AssessmentDate.IsZero() {
		finishedAt = req.AssessmentDate.UTC()
	}
	if err := s.Repo.SaveScore(ctx, id, attempts.ScoreUpdate{
		Result:        score,
		CandidateName: strings.TrimSpace(req.CandidateName),
		FinishedAt:    finishedAt,
	}, s.now()); err != nil {
		return Result{}, fmt.Errorf("save score: %w", err)
	}
	telemetry.Info("generation.scored", map[string]any{
		"attempt_id":   id,
		"profile_code": score.ProfileCode,
		"alert":        score.Alert,
		"request_id":   requestIDFromContext(ctx),
	})

	if s.Cfg.queued() {
		return s.enqueue(ctx, id)
	}
	return s.Process(ctx, id)
}

func (s *Service) score(answers []scoring.Answer) (scoring.Result, error) {
	if s.Scorer != nil {
		return s.Scorer.Score(answers)
	}
	return scoring.Score(answers)
}

func (s *Service) enqueue(ctx context.Context, id string) (Result, error) {
	if s.Queue == nil {
		return Result{}, ErrQueueNotConfigured
	}
	if err := s.Repo.MarkPending(ctx, id, s.now()); err != nil {
		if errors.Is(err, attempts.ErrInvalidState) {
			return s.Process(ctx, id)
		}
		return Result{}, fmt.Errorf("mark pending: %w", err)
	}
	msg := queue.NewMessage(id, requestIDFromContext(ctx), s.now())
	if err := s.Queue.Send(ctx, msg); err != nil {
		return Result{}, fmt.Errorf("enqueue generation: %w", err)
	}
	telemetry.Info("generation.enqueued", map[string]any{
		"attempt_id": id,
		"request_id": msg.RequestID,
	})
	retry := s.Lock.MinRetryAfter
	if retry <= 0 {
		retry = attempts.DefaultMinRetryAfter
	}
	return Result{Status: attempts.StatusPending, RetryAfter: retry}, nil
}

// Process runs generation for an attempt whose scores are cached. It is the
// entry point for queue workers.
func (s *Service) Process(ctx context.Context, id string) (Result, error) {
	claim, err := s.Lock.Acquire(ctx, id)
	if err != nil {
		return Result{}, err
	}
	fields := map[string]any{
		"attempt_id": id,
		"outcome":    claim.Outcome.String(),
		"request_id": requestIDFromContext(ctx),
	}

	switch claim.Outcome {
	case attempts.OutcomeRetry:
		metrics.IncGenerationContended()
		fields["retry_after_seconds"] = claim.RetryAfterSeconds()
		telemetry.Info("generation.contended", fields)
		return Result{Status: attempts.StatusProcessing, RetryAfter: claim.RetryAfter}, nil
	case attempts.OutcomeCached:
		metrics.IncGenerationCached()
		telemetry.Info("generation.cached", fields)
		return s.deliverStored(ctx, claim.Attempt, nil, true, false), nil
	}

	metrics.IncGenerationStarted()
	telemetry.Info("generation.claimed", fields)
	start := time.Now()

	genCtx, cancel := context.WithTimeout(ctx, s.Cfg.timeout())
	defer cancel()
	doc, pdf, err := s.generate(genCtx, claim.Attempt)
	if err != nil {
		metrics.IncGenerationFailed()
		telemetry.Error("generation.failed", map[string]any{
			"attempt_id":  id,
			"error":       err,
			"duration_ms": metrics.SinceMillis(start),
			"request_id":  requestIDFromContext(ctx),
		})
		if ferr := s.Lock.Fail(detached(ctx), claim, err); ferr != nil {
			telemetry.Error("generation.mark_failed_error", map[string]any{"attempt_id": id, "error": ferr})
		}
		return Result{}, err
	}

	if err := s.Lock.Complete(detached(ctx), claim, doc); err != nil {
		if errors.Is(err, attempts.ErrClaimLost) {
			telemetry.Warn("generation.claim_lost", map[string]any{"attempt_id": id, "path": doc.Path})
			if derr := s.Store.Delete(detached(ctx), doc.Path); derr != nil {
				telemetry.Warn("generation.orphan_delete_failed", map[string]any{"path": doc.Path, "error": derr})
			}
		}
		return Result{}, fmt.Errorf("complete generation: %w", err)
	}
	metrics.IncGenerationCompleted()
	metrics.ObserveGenerationDurationMs(metrics.SinceMillis(start))
	telemetry.Info("generation.completed", map[string]any{
		"attempt_id":  id,
		"path":        doc.Path,
		"duration_ms": metrics.SinceMillis(start),
		"request_id":  requestIDFromContext(ctx),
	})

	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return s.deliverStored(ctx, a, pdf, false, false), nil
}

// Resend emails the stored document again regardless of earlier deliveries.
func (s *Service) Resend(ctx context.Context, ownerID, id string) (Result, error) {
	a, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return Result{}, err
	}
	if !a.HasDocument() {
		return Result{}, ErrDocumentUnavailable
	}
	return s.deliverStored(ctx, a, nil, true, true), nil
}

// Document returns a signed URL when the store can sign, otherwise a stream.
func (s *Service) Document(ctx context.Context, ownerID, id string) (DocumentAccess, error) {
	a, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return DocumentAccess{}, err
	}
	if !a.HasDocument() {
		return DocumentAccess{}, ErrDocumentUnavailable
	}
	if s.Signer != nil {
		ttl := s.Cfg.signedURLTTL()
		url, err := s.Signer.SignedURL(ctx, a.Document.Path, ttl)
		if err != nil {
			return DocumentAccess{}, fmt.Errorf("sign document url: %w", err)
		}
		return DocumentAccess{URL: url, ExpiresAt: s.now().Add(ttl), Filename: a.Document.Filename}, nil
	}
	rc, err := s.Store.Open(ctx, a.Document.Path)
	if errors.Is(err, object.ErrNotFound) {
		return DocumentAccess{}, ErrDocumentUnavailable
	}
	if err != nil {
		return DocumentAccess{}, err
	}
	return DocumentAccess{Body: rc, Filename: a.Document.Filename}, nil
}

// CleanupExpired deletes documents past their retention and resets their
// attempts so a later finish regenerates.
func (s *Service) CleanupExpired(ctx context.Context, limit int) (int, error) {
	now := s.now()
	expired, err := s.Repo.ListExpired(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, a := range expired {
		if a.Document == nil {
			continue
		}
		if err := s.Store.Delete(ctx, a.Document.Path); err != nil && !errors.Is(err, object.ErrNotFound) {
			telemetry.Warn("generation.cleanup_delete_failed", map[string]any{"attempt_id": a.ID, "path": a.Document.Path, "error": err})
			continue
		}
		if err := s.Repo.ClearDocument(ctx, a.ID, a.Document.Path, now); err != nil {
			if errors.Is(err, attempts.ErrInvalidState) {
				continue
			}
			return removed, err
		}
		metrics.IncDocumentExpired()
		removed++
	}
	telemetry.Info("generation.cleanup", map[string]any{"expired": len(expired), "removed": removed})
	return removed, nil
}

// DeliveryConfig returns the owner's delivery configuration.
func (s *Service) DeliveryConfig(ctx context.Context, ownerID string) (delivery.Config, error) {
	if s.Configs == nil {
		return delivery.DefaultConfig(ownerID), nil
	}
	return s.Configs.Get(ctx, ownerID)
}

// UpdateDeliveryConfig validates and stores the owner's configuration.
func (s *Service) UpdateDeliveryConfig(ctx context.Context, cfg delivery.Config) (delivery.Config, error) {
	if err := cfg.Validate(); err != nil {
		return delivery.Config{}, err
	}
	if s.Configs == nil {
		return delivery.Config{}, errors.New("delivery config store not configured")
	}
	cfg.SupervisorEmail = strings.TrimSpace(cfg.SupervisorEmail)
	cfg.UpdatedAt = s.now()
	return s.Configs.Put(ctx, cfg)
}

func (s *Service) generate(ctx context.Context, a attempts.Attempt) (attempts.DocumentRef, []byte, error) {
	if a.Score == nil {
		return attempts.DocumentRef{}, nil, ErrScoresMissing
	}
	date := s.now()
	if a.FinishedAt != nil {
		date = *a.FinishedAt
	}

	doc, err := s.Assembler.Assemble(ctx, report.Input{
		ProfileCode:    a.Score.ProfileCode,
		CandidateName:  a.CandidateName,
		AssessmentDate: date,
		Scores:         *a.Score,
	})
	if err != nil {
		return attempts.DocumentRef{}, nil, fmt.Errorf("assemble: %w", err)
	}

	pages, err := s.renderPages(ctx, doc.Pages)
	if err != nil {
		return attempts.DocumentRef{}, nil, err
	}

	merged, err := pdfmerge.Merge(ctx, pages, report.PageCount)
	if err != nil {
		return attempts.DocumentRef{}, nil, err
	}

	if s.Cfg.VerifyPDFText {
		leftovers, err := pdfmerge.FindPlaceholders(merged)
		if err != nil {
			telemetry.Warn("generation.text_scan_failed", map[string]any{"attempt_id": a.ID, "error": err})
		} else if len(leftovers) > 0 {
			return attempts.DocumentRef{}, nil, fmt.Errorf("%w: %s", ErrLeftoverPlaceholders, strings.Join(leftovers, ", "))
		}
	}

	version := s.Cfg.templateVersion()
	stored, err := s.Delivery.Store(ctx, a.OwnerID, version, a.CandidateName, merged)
	if err != nil {
		return attempts.DocumentRef{}, nil, fmt.Errorf("store document: %w", err)
	}
	now := s.now()
	return attempts.DocumentRef{
		Path:            stored.Path,
		Filename:        stored.Filename,
		TemplateVersion: version,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.Cfg.retention()),
	}, merged, nil
}

func (s *Service) renderPages(ctx context.Context, pages []report.Page) ([][]byte, error) {
	return RenderPages(ctx, s.Renderer, pages, s.Cfg.concurrency())
}

// RenderPages renders with bounded parallelism into indexed slots so the
// merge order matches the template order.
func RenderPages(ctx context.Context, r render.Renderer, pages []report.Page, concurrency int) ([][]byte, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	out := make([][]byte, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, p := range pages {
		g.Go(func() error {
			pdf, err := r.RenderPage(gctx, p.HTML)
			if err != nil {
				return fmt.Errorf("render page %d (%s): %w", p.Index, p.File, err)
			}
			out[i] = pdf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// deliverStored emails a done attempt's document when it still needs
// sending, or always when force is set. Delivery problems are recorded on
// the attempt and never undo the stored document.
func (s *Service) deliverStored(ctx context.Context, a attempts.Attempt, pdf []byte, cached, force bool) Result {
	res := Result{
		Status:      attempts.StatusDone,
		Cached:      cached,
		EmailStatus: a.EmailStatus,
	}
	if a.Document != nil {
		res.StoragePath = a.Document.Path
		res.Filename = a.Document.Filename
	}
	if !a.HasDocument() || (!force && !a.NeedsEmail()) {
		return res
	}

	now := s.now()
	ok, err := s.Repo.ClaimEmail(ctx, a.ID, force, now, now.Add(-s.Cfg.emailClaimTTL()))
	if err != nil {
		telemetry.Error("delivery.claim_failed", map[string]any{"attempt_id": a.ID, "error": err})
		return res
	}
	if !ok {
		return res
	}

	status, dres, derr := s.sendDocument(ctx, a, pdf)
	var emailErr *string
	if derr != nil {
		msg := derr.Error()
		emailErr = &msg
		telemetry.Error("delivery.failed", map[string]any{
			"attempt_id": a.ID,
			"error":      derr,
			"request_id": requestIDFromContext(ctx),
		})
	}
	if err := s.Repo.SetEmailStatus(detached(ctx), a.ID, status, emailErr, s.now()); err != nil {
		telemetry.Error("delivery.status_update_failed", map[string]any{"attempt_id": a.ID, "error": err})
	}
	res.EmailStatus = status
	res.Delivery = dres
	return res
}

func (s *Service) sendDocument(ctx context.Context, a attempts.Attempt, pdf []byte) (string, *delivery.Result, error) {
	var cfg *delivery.Config
	if s.Configs != nil {
		c, err := s.Configs.Get(ctx, a.OwnerID)
		if err != nil {
			return attempts.EmailFailed, nil, fmt.Errorf("load delivery config: %w", err)
		}
		cfg = &c
	}
	recipients := delivery.ResolveRecipients(cfg, a.CandidateEmail)

	if pdf == nil {
		data, err := object.ReadAll(ctx, s.Store, a.Document.Path)
		if err != nil {
			return attempts.EmailFailed, nil, fmt.Errorf("read document: %w", err)
		}
		pdf = data
	}

	dres, err := s.Delivery.Deliver(ctx, delivery.Delivery{
		AttemptID:     a.ID,
		CandidateName: a.CandidateName,
		Recipients:    recipients,
		Filename:      a.Document.Filename,
		PDF:           pdf,
	})
	if err != nil {
		return attempts.EmailFailed, &dres, err
	}
	return attempts.EmailSent, &dres, nil
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}
