package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pawnmarket-contract-engine/internal/api_gateway/middleware"
	"github.com/pawnmarket-contract-engine/internal/api_gateway/service"
	"github.com/pawnmarket-contract-engine/internal/domain/action"
)

// EvidenceHandler handles slip uploads and evidence downloads
type EvidenceHandler struct {
	evidenceService service.EvidenceService
	logger          *slog.Logger
}

// NewEvidenceHandler creates a new evidence handler
func NewEvidenceHandler(logger *slog.Logger, evidenceService service.EvidenceService) *EvidenceHandler {
	return &EvidenceHandler{
		evidenceService: evidenceService,
		logger:          logger,
	}
}

// SubmitPawnerSlip queues the pawner's payment slip for verification
func (h *EvidenceHandler) SubmitPawnerSlip(c *gin.Context) {
	h.submit(c, action.LegPawner)
}

// SubmitInvestorSlip queues the investor's transfer slip for verification
func (h *EvidenceHandler) SubmitInvestorSlip(c *gin.Context) {
	h.submit(c, action.LegInvestor)
}

func (h *EvidenceHandler) submit(c *gin.Context, leg action.Leg) {
	id, ok := pathID(c, "id", "action request ID")
	if !ok {
		return
	}
	actor, ok := actorID(c)
	if !ok {
		return
	}

	file, err := readUpload(c)
	if err != nil {
		respondUploadError(c, err)
		return
	}

	msg, err := h.evidenceService.SubmitSlip(c.Request.Context(), service.SlipUpload{
		RequestID:      id,
		Leg:            leg,
		ActorID:        actor,
		File:           file,
		IdempotencyKey: middleware.GetIdempotencyKey(c),
		CorrelationID:  middleware.GetCorrelationID(c),
	})
	if err != nil {
		respondError(c, h.logger, "submit slip", err)
		return
	}

	RespondAccepted(c, SlipAcceptedResponse{
		SubmissionID: msg.SubmissionID.String(),
		RequestID:    msg.RequestID.String(),
		Leg:          string(msg.Leg),
		SlipURL:      msg.SlipURL,
		Status:       "PENDING_VERIFICATION",
	})
}

// Download streams a stored evidence file
func (h *EvidenceHandler) Download(c *gin.Context) {
	obj, err := h.evidenceService.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "open evidence", err)
		return
	}
	defer obj.Body.Close()

	c.Header("Cache-Control", "private, max-age=86400")
	c.DataFromReader(http.StatusOK, obj.Length, obj.ContentType, obj.Body, map[string]string{
		"Content-Disposition": "inline; filename=" + strconv.Quote(obj.Filename),
	})
}
