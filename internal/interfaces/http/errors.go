package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/moogar0880/problems"

	"github.com/sust-cse/approval-engine/internal/domain/workflow"
	"github.com/sust-cse/approval-engine/pkg/utils"
)

// actionUnavailable is shown for state races rather than the raw cause
const actionUnavailable = "this action is no longer available"

func writeProblem(c *gin.Context, status int, problemType, detail string) {
	problem := problems.NewStatusProblem(status).
		WithInstance(c.Request.URL.Path).
		WithType(problemType).
		WithDetail(detail)

	c.Header("Content-Type", problems.ProblemMediaType)
	c.JSON(status, problem)
}

// handleServiceError maps the error taxonomy onto RFC 7807 problems
func (h *Handlers) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, workflow.ErrValidation):
		writeProblem(c, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.Is(err, workflow.ErrInvalidConfiguration):
		writeProblem(c, http.StatusBadRequest, "invalid_configuration", err.Error())
	case errors.Is(err, workflow.ErrNotFound):
		writeProblem(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, workflow.ErrUnauthorized):
		writeProblem(c, http.StatusForbidden, "unauthorized", actionUnavailable)
	case errors.Is(err, workflow.ErrAlreadyTerminal):
		writeProblem(c, http.StatusConflict, "already_terminal", actionUnavailable)
	case errors.Is(err, workflow.ErrConflict):
		c.Header("Retry-After", "1")
		writeProblem(c, http.StatusConflict, "conflict", actionUnavailable)
	case errors.Is(err, workflow.ErrAlreadyAssigned):
		writeProblem(c, http.StatusConflict, "already_assigned", err.Error())
	case errors.Is(err, workflow.ErrPrecondition):
		writeProblem(c, http.StatusConflict, "precondition_failed", err.Error())
	default:
		h.logger.Error("Unhandled service error", "path", c.Request.URL.Path, "error", err)
		writeProblem(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// handleBindError distinguishes malformed bodies from failed field rules
func handleBindError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		writeProblem(c, http.StatusUnprocessableEntity, "validation_error", utils.DescribeValidationError(err))
		return
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		writeProblem(c, http.StatusBadRequest, "malformed_request", err.Error())
	default:
		writeProblem(c, http.StatusBadRequest, "malformed_request", "request could not be parsed")
	}
}
