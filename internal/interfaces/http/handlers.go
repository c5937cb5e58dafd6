package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/application/service"
	"github.com/sust-cse/approval-engine/internal/domain/entity"
	"github.com/sust-cse/approval-engine/internal/domain/workflow"
	"github.com/sust-cse/approval-engine/pkg/utils"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// SubmitApplicationRequest is the body of POST /api/v1/applications
type SubmitApplicationRequest struct {
	Title    string          `json:"title" binding:"required,notblank,max=200"`
	Kind     string          `json:"kind" binding:"required,oneof=LEAVE EQUIPMENT GENERAL"`
	ToID     string          `json:"to_id"`
	MediumID string          `json:"medium_id"`
	Details  json.RawMessage `json:"details"`
}

// SubmitCostRequestRequest is the body of POST /api/v1/cost-requests
type SubmitCostRequestRequest struct {
	Title       string          `json:"title" binding:"required,notblank,max=200"`
	AmountCents int64           `json:"amount_cents" binding:"required,gt=0"`
	Currency    string          `json:"currency" binding:"required,currency"`
	Purpose     string          `json:"purpose" binding:"required,notblank,max=2000"`
	Details     json.RawMessage `json:"details"`
}

// DecisionRequest is the body of POST /api/v1/instances/:id/decisions
type DecisionRequest struct {
	Decision      string `json:"decision" binding:"required,oneof=APPROVE REJECT"`
	Comment       string `json:"comment" binding:"max=2000"`
	SignatureRef  string `json:"signature_ref" binding:"max=512"`
	ExpectedStage string `json:"expected_stage"`
}

// AttachCheckRequest is the body of POST /api/v1/cost-requests/:id/check
type AttachCheckRequest struct {
	Number string     `json:"number" binding:"required,notblank,max=64"`
	Date   *time.Time `json:"date"`
}

// ListInstancesRequest represents query parameters for listing instances
type ListInstancesRequest struct {
	WorkflowType string `form:"type" binding:"omitempty,oneof=APPLICATION COST_REQUEST"`
	Status       string `form:"status"`
	SubmitterID  string `form:"submitter"`
	Limit        int    `form:"limit" binding:"min=0,max=100"`
	Offset       int    `form:"offset" binding:"min=0"`
}

// InstanceResponse is an instance as returned to authenticated readers
type InstanceResponse struct {
	*entity.Instance
	CurrentStage string `json:"current_stage,omitempty"`
	CanAct       *bool  `json:"can_act,omitempty"`
}

func toInstanceResponse(instance *entity.Instance) InstanceResponse {
	resp := InstanceResponse{Instance: instance}
	if stage, ok := instance.CurrentStage(); ok {
		resp.CurrentStage = stage.Key
	}
	return resp
}

func toInstanceResponses(instances []*entity.Instance) []InstanceResponse {
	out := make([]InstanceResponse, 0, len(instances))
	for _, instance := range instances {
		out = append(out, toInstanceResponse(instance))
	}
	return out
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if len(h.services.HealthChecks) > 0 {
		response.Checks = make(map[string]string, len(h.services.HealthChecks))
		for name, check := range h.services.HealthChecks {
			if err := check(ctx); err != nil {
				h.logger.Error("Health check failed", "dependency", name, "error", err)
				response.Checks[name] = "unhealthy"
				response.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			response.Checks[name] = "ok"
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// SubmitApplication handles POST /api/v1/applications
func (h *Handlers) SubmitApplication(c *gin.Context) {
	var req SubmitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err)
		return
	}

	instance, err := h.services.Submission.SubmitApplication(c.Request.Context(), service.SubmitApplicationCommand{
		SubmitterID: identityID(c),
		Title:       utils.SanitizeString(req.Title),
		Kind:        entity.ApplicationKind(req.Kind),
		ToID:        req.ToID,
		MediumID:    req.MediumID,
		Details:     req.Details,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: toInstanceResponse(instance)})
}

// SubmitCostRequest handles POST /api/v1/cost-requests
func (h *Handlers) SubmitCostRequest(c *gin.Context) {
	var req SubmitCostRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err)
		return
	}

	instance, err := h.services.Submission.SubmitCostRequest(c.Request.Context(), service.SubmitCostRequestCommand{
		SubmitterID: identityID(c),
		Title:       utils.SanitizeString(req.Title),
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Purpose:     utils.SanitizeString(req.Purpose),
		Details:     req.Details,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: toInstanceResponse(instance)})
}

// Decide handles POST /api/v1/instances/:id/decisions
func (h *Handlers) Decide(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err)
		return
	}

	instance, err := h.services.Decision.Decide(c.Request.Context(), service.DecideCommand{
		InstanceID:    c.Param("id"),
		ActorID:       identityID(c),
		Decision:      entity.Decision(req.Decision),
		Comment:       utils.SanitizeString(req.Comment),
		SignatureRef:  req.SignatureRef,
		ExpectedStage: req.ExpectedStage,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toInstanceResponse(instance)})
}

// AttachCheck handles POST /api/v1/cost-requests/:id/check
func (h *Handlers) AttachCheck(c *gin.Context) {
	var req AttachCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err)
		return
	}

	instance, err := h.services.Checks.AttachCheck(c.Request.Context(), service.AttachCheckCommand{
		InstanceID: c.Param("id"),
		ActorID:    identityID(c),
		Number:     req.Number,
		Date:       req.Date,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toInstanceResponse(instance)})
}

// GetInstance handles GET /api/v1/instances/:id
func (h *Handlers) GetInstance(c *gin.Context) {
	instance, err := h.services.Queries.GetInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toInstanceResponse(instance)})
}

// ListInstances handles GET /api/v1/instances
func (h *Handlers) ListInstances(c *gin.Context) {
	var req ListInstancesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		handleBindError(c, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = 20
	}

	instances, err := h.services.Queries.ListInstances(c.Request.Context(), port.InstanceFilter{
		WorkflowType: entity.WorkflowType(req.WorkflowType),
		Status:       req.Status,
		SubmitterID:  req.SubmitterID,
		Limit:        req.Limit,
		Offset:       req.Offset,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toInstanceResponses(instances)})
}

// Inbox handles GET /api/v1/inbox
func (h *Handlers) Inbox(c *gin.Context) {
	var req ListInstancesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		handleBindError(c, err)
		return
	}

	instances, err := h.services.Queries.ListAwaiting(c.Request.Context(), identityID(c), req.Limit, req.Offset)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	resp := toInstanceResponses(instances)
	canAct := true
	for i := range resp {
		resp[i].CanAct = &canAct
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: resp})
}

// Verify handles GET /public/verify/:code
func (h *Handlers) Verify(c *gin.Context) {
	view, err := h.services.Verification.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			// Never echo why a code did not resolve
			writeProblem(c, http.StatusNotFound, "not_found", "verification code not found")
			return
		}
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

func identityID(c *gin.Context) string {
	return c.GetHeader(IdentityHeader)
}
