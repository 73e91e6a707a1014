package generation

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"disc-report/internal/attempts"
	"disc-report/internal/delivery"
	"disc-report/internal/pdfmerge"
	"disc-report/internal/render"
	"disc-report/internal/report"
	"disc-report/internal/scoring"
	"disc-report/internal/shared/server/middleware"
	"disc-report/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the generation service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches attempt and delivery routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/attempts", h.register)
	rg.GET("/attempts/:id", h.getAttempt)
	rg.POST("/attempts/:id/finish", h.finish)
	rg.GET("/attempts/:id/document", h.document)
	rg.POST("/attempts/:id/resend", h.resend)
	rg.GET("/delivery-config", h.getDeliveryConfig)
	rg.PUT("/delivery-config", h.putDeliveryConfig)
}

func (h *Handler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", nil)
		return
	}
	a, err := h.Svc.Register(h.ctx(c), middleware.OwnerIDFromContext(c), req)
	if err != nil {
		h.fail(c, err, "failed to register attempt")
		return
	}
	respond.JSON(c, http.StatusCreated, attemptView(a))
}

func (h *Handler) getAttempt(c *gin.Context) {
	a, err := h.Svc.Get(h.ctx(c), middleware.OwnerIDFromContext(c), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to fetch attempt")
		return
	}
	respond.JSON(c, http.StatusOK, attemptView(a))
}

func (h *Handler) finish(c *gin.Context) {
	var req FinishRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", nil)
		return
	}
	c.Set("attemptId", c.Param("id"))

	res, err := h.Svc.Finish(h.ctx(c), middleware.OwnerIDFromContext(c), c.Param("id"), req)
	if err != nil {
		h.fail(c, err, "failed to generate report")
		return
	}
	h.writeResult(c, res)
}

func (h *Handler) resend(c *gin.Context) {
	c.Set("attemptId", c.Param("id"))
	res, err := h.Svc.Resend(h.ctx(c), middleware.OwnerIDFromContext(c), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to resend report")
		return
	}
	if res.EmailStatus == attempts.EmailFailed {
		respond.Error(c, http.StatusBadGateway, delivery.ErrorCodeDelivery, "email delivery failed", res.Delivery)
		return
	}
	h.writeResult(c, res)
}

func (h *Handler) writeResult(c *gin.Context, res Result) {
	if res.From != "" {
		c.Set("statusTransition", res.From+"->"+res.Status)
	}
	if !res.Ready() {
		secs := res.RetryAfterSeconds()
		respond.Accepted(c, secs, gin.H{
			"error":             attempts.ErrorCodeInProgress,
			"status":            res.Status,
			"retryAfterSeconds": secs,
		})
		return
	}
	body := gin.H{
		"ok":          true,
		"storagePath": res.StoragePath,
		"filename":    res.Filename,
		"cached":      res.Cached,
		"emailStatus": res.EmailStatus,
	}
	if res.Delivery != nil {
		body["delivery"] = res.Delivery
	}
	respond.JSON(c, http.StatusOK, body)
}

func (h *Handler) document(c *gin.Context) {
	access, err := h.Svc.Document(h.ctx(c), middleware.OwnerIDFromContext(c), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to fetch document")
		return
	}
	if access.URL != "" {
		respond.JSON(c, http.StatusOK, gin.H{
			"url":       access.URL,
			"filename":  access.Filename,
			"expiresAt": access.ExpiresAt,
		})
		return
	}
	defer access.Body.Close()
	respond.Attachment(c, "application/pdf", access.Filename, delivery.Filename(""), access.Body)
}

func (h *Handler) getDeliveryConfig(c *gin.Context) {
	cfg, err := h.Svc.DeliveryConfig(h.ctx(c), middleware.OwnerIDFromContext(c))
	if err != nil {
		h.fail(c, err, "failed to fetch delivery config")
		return
	}
	respond.JSON(c, http.StatusOK, deliveryConfigView(cfg))
}

func (h *Handler) putDeliveryConfig(c *gin.Context) {
	var cfg delivery.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", nil)
		return
	}
	cfg.OwnerID = middleware.OwnerIDFromContext(c)
	stored, err := h.Svc.UpdateDeliveryConfig(h.ctx(c), cfg)
	if err != nil {
		h.fail(c, err, "failed to update delivery config")
		return
	}
	respond.JSON(c, http.StatusOK, deliveryConfigView(stored))
}

func (h *Handler) ctx(c *gin.Context) context.Context {
	return WithRequestID(c.Request.Context(), c.GetString("requestId"))
}

// fail maps domain errors to HTTP responses. Messages stay generic; the
// cause is logged by respond.Error and the service.
func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	var verr *scoring.ValidationError
	switch {
	case errors.As(err, &verr):
		respond.Error(c, http.StatusBadRequest, scoring.ErrorCodeValidation, "invalid answers", verr.Issues)
	case errors.Is(err, scoring.ErrInvalidAnswers),
		errors.Is(err, ErrInvalidRequest):
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, err.Error(), nil)
	case errors.Is(err, delivery.ErrInvalidConfig):
		respond.Error(c, http.StatusBadRequest, delivery.ErrorCodeValidation, "supervisorEmail is required when sending to a supervisor", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, attempts.ErrorCodeNotFound, "attempt not found", nil)
	case errors.Is(err, attempts.ErrAlreadyExists):
		respond.Error(c, http.StatusConflict, attempts.ErrorCodeConflict, "attempt already exists", nil)
	case errors.Is(err, ErrDocumentUnavailable):
		respond.Error(c, http.StatusConflict, ErrorCodeUnavailable, "document not available", nil)
	case errors.Is(err, report.ErrSanity),
		errors.Is(err, report.ErrInvalidProfileCode),
		errors.Is(err, report.ErrTemplateNotFound),
		errors.Is(err, report.ErrBodyNotFound),
		errors.Is(err, report.ErrChartNotFound),
		errors.Is(err, report.ErrPercentagesNotFound),
		errors.Is(err, report.ErrMissingAsset),
		errors.Is(err, report.ErrInvalidFont),
		errors.Is(err, pdfmerge.ErrPageCount),
		errors.Is(err, ErrLeftoverPlaceholders):
		respond.Error(c, http.StatusInternalServerError, report.ErrorCodeAssembly, "report assembly failed", nil)
	case errors.Is(err, render.ErrRenderFailed),
		errors.Is(err, render.ErrEmptyPDF):
		respond.Error(c, http.StatusBadGateway, render.ErrorCodeRender, "report rendering failed", nil)
	case errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusGatewayTimeout, ErrorCodeGeneration, "report generation timed out", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, fallback, nil)
	}
}

func attemptView(a attempts.Attempt) gin.H {
	view := gin.H{
		"id":               a.ID,
		"candidateName":    a.CandidateName,
		"candidateEmail":   a.CandidateEmail,
		"generationStatus": a.Status,
		"emailStatus":      a.EmailStatus,
		"alert":            a.Alert,
		"createdAt":        a.CreatedAt,
		"updatedAt":        a.UpdatedAt,
	}
	if a.Score != nil {
		view["score"] = a.Score
		view["profileCode"] = a.ProfileCode
	}
	if a.FinishedAt != nil {
		view["finishedAt"] = a.FinishedAt
	}
	if a.Document != nil {
		view["document"] = a.Document
	}
	if a.EmailError != nil {
		view["emailError"] = *a.EmailError
	}
	return view
}

func deliveryConfigView(cfg delivery.Config) gin.H {
	return gin.H{
		"sendToCandidate":      cfg.SendToCandidate,
		"sendToSupervisor":     cfg.SendToSupervisor,
		"supervisorEmail":      cfg.SupervisorEmail,
		"canCandidateDownload": cfg.CanCandidateDownload(),
	}
}
