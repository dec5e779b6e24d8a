package web

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/casthq/caster/pkg/services"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

type APIHandlers struct {
	templateService    *services.Template
	executionService   *services.Execution
	integrationService *services.Integration
	validator          *validator.Validate
	uploadDir          string
}

func NewAPIHandlers(
	templateService *services.Template,
	executionService *services.Execution,
	integrationService *services.Integration,
	validator *validator.Validate,
	uploadDir string,
) *APIHandlers {
	return &APIHandlers{
		templateService:    templateService,
		executionService:   executionService,
		integrationService: integrationService,
		validator:          validator,
		uploadDir:          uploadDir,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	check, ok := h.templateService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"persistence": check,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) SaveTemplate(c fiber.Ctx) error {
	var req SaveTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.templateService.Save(c.Context(), services.SaveTemplateRequest{
		OrganizationID: req.OrganizationID,
		LogicalID:      req.LogicalID,
		DatasetID:      req.DatasetID,
		Name:           req.Name,
		Description:    req.Description,
		Body:           req.Body,
		Filter:         req.Filter,
		DatasetColumns: req.DatasetColumns,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	tpl, err := h.templateService.GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(tpl)
}

func (h *APIHandlers) GetPublishedTemplate(c fiber.Ctx) error {
	logicalID := c.Params("logicalId")
	organizationID := c.Query("organization_id")

	if logicalID == "" || organizationID == "" {
		return badRequest(c, "Logical ID and organization_id are required")
	}

	tpl, err := h.templateService.GetPublished(c.Context(), organizationID, logicalID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(tpl)
}

func (h *APIHandlers) ListTemplates(c fiber.Ctx) error {
	organizationID := c.Query("organization_id")
	if organizationID == "" {
		return badRequest(c, "organization_id is required")
	}

	templates, err := h.templateService.List(c.Context(), organizationID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"templates": templates})
}

func (h *APIHandlers) PublishTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	published, err := h.templateService.Publish(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	err := h.templateService.Delete(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateIntegration(c fiber.Ctx) error {
	var req CreateIntegrationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.integrationService.Create(c.Context(), services.CreateIntegrationRequest{
		OrganizationID:     req.OrganizationID,
		ChannelType:        req.ChannelType,
		ProviderName:       req.ProviderName,
		Credentials:        req.Credentials,
		SenderIdentifier:   req.SenderIdentifier,
		RateLimitPerMinute: req.RateLimitPerMinute,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) ListIntegrations(c fiber.Ctx) error {
	organizationID := c.Query("organization_id")
	if organizationID == "" {
		return badRequest(c, "organization_id is required")
	}

	integrations, err := h.integrationService.List(c.Context(), organizationID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"integrations": integrations})
}

func (h *APIHandlers) DeactivateIntegration(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Integration ID is required")
	}

	err := h.integrationService.Deactivate(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// CreateExecution accepts a multipart upload and queues a campaign run.
// The response returns as soon as the queued record and the file are
// durable; delivery happens in a worker.
func (h *APIHandlers) CreateExecution(c fiber.Ctx) error {
	filePath, err := h.saveUpload(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.executionService.Create(c.Context(), services.CreateExecutionRequest{
		OrganizationID:    c.FormValue("organization_id"),
		TemplateLogicalID: c.FormValue("template_logical_id"),
		IntegrationID:     c.FormValue("integration_id"),
		RecipientColumn:   c.FormValue("recipient_column"),
		FilePath:          filePath,
		TriggeredBy:       c.FormValue("triggered_by"),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(execution)
}

// ValidateExecution runs the pre-run compatibility check on an uploaded
// dataset without queueing anything.
func (h *APIHandlers) ValidateExecution(c fiber.Ctx) error {
	filePath, err := h.saveUpload(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	report, err := h.executionService.Validate(
		c.Context(),
		c.FormValue("organization_id"),
		c.FormValue("template_logical_id"),
		c.FormValue("recipient_column"),
		filePath,
	)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.executionService.GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	organizationID := c.Query("organization_id")
	if organizationID == "" {
		return badRequest(c, "organization_id is required")
	}

	limit, offset, err := parsePagination(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	executions, err := h.executionService.List(c.Context(), organizationID, limit, offset)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

// GetExecutionProgress returns the freshest progress snapshot: the
// worker's cached one when available, otherwise derived from the store.
func (h *APIHandlers) GetExecutionProgress(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	snapshot, err := h.executionService.Progress(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(snapshot)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	err := h.executionService.Cancel(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) GetExecutionOutcomes(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	limit, offset, err := parsePagination(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	outcomes, total, err := h.executionService.Outcomes(c.Context(), id, limit, offset)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(OutcomeListResponse{
		Outcomes:   outcomes,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	})
}

// saveUpload stores the multipart dataset file under the upload
// directory with a fresh name, keeping the original extension for
// format dispatch.
func (h *APIHandlers) saveUpload(c fiber.Ctx) (string, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "dataset file is required")
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext != ".csv" && ext != ".xlsx" {
		return "", fiber.NewError(fiber.StatusBadRequest, "only .csv and .xlsx files are supported")
	}

	path := filepath.Join(h.uploadDir, uuid.New().String()+ext)

	err = c.SaveFile(fileHeader, path)
	if err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "failed to store uploaded file")
	}

	return path, nil
}

func parsePagination(c fiber.Ctx) (int, int, error) {
	limit := defaultPageLimit

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}

		limit = parsed
	}

	if limit < 1 || limit > maxPageLimit {
		limit = defaultPageLimit
	}

	offset := 0

	if offsetStr := c.Query("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}

		offset = parsed
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset, nil
}
