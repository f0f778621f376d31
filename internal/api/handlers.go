package api

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/katakuxiko/ragsearch/internal/model"
	"github.com/katakuxiko/ragsearch/internal/util"
)

const serviceName = "RAG Backend"

// Answerer is the question-answering pipeline behind POST /query.
type Answerer interface {
	Answer(ctx context.Context, q model.Query) (*model.Answer, error)
}

// Handler holds the dependencies of the HTTP handlers. rag is nil when the
// service failed to start; startErr then says why.
type Handler struct {
	rag      Answerer
	startErr error
	validate *validator.Validate
}

// NewHandler wires the handlers to rag. Pass a nil rag together with the
// startup error to serve health checks while the pipeline is unavailable.
func NewHandler(rag Answerer, startErr error) *Handler {
	if rag == nil && startErr == nil {
		startErr = errors.New("rag service not initialized")
	}
	return &Handler{rag: rag, startErr: startErr, validate: newValidator()}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(rejectNulls, model.QueryRequest{})
	return v
}

func rejectNulls(sl validator.StructLevel) {
	req := sl.Current().Interface().(model.QueryRequest)
	for _, name := range req.NullFields() {
		sl.ReportError(nil, name, name, "notnull", "")
	}
}

// Root is a liveness banner.
func (h *Handler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "RAG Backend API is running"})
}

// Health reports whether the RAG pipeline was initialized.
func (h *Handler) Health(c *fiber.Ctx) error {
	if h.rag == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(model.HealthResponse{
			Status:      "unhealthy",
			Service:     serviceName,
			Initialized: false,
			Error:       h.startErr.Error(),
		})
	}
	return c.JSON(model.HealthResponse{
		Status:      "healthy",
		Service:     serviceName,
		Initialized: true,
	})
}

// ListModels returns the fixed set of chat models a query may select.
func (h *Handler) ListModels(c *fiber.Ctx) error {
	return c.JSON(model.ModelsResponse{
		Models:  model.SupportedModels(),
		Default: model.DefaultModel,
	})
}

// Query validates the request and runs the RAG pipeline.
func (h *Handler) Query(c *fiber.Ctx) error {
	if h.rag == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(model.ErrorResponse{
			Error:  "service unavailable",
			Detail: "RAG service is not initialized: " + h.startErr.Error(),
		})
	}

	var req model.QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(model.ErrorResponse{
			Error:  "invalid request body",
			Detail: err.Error(),
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(model.ErrorResponse{
			Error:  "validation failed",
			Detail: validationDetail(err),
		})
	}

	q := req.ToQuery()
	logger := log.WithFields(log.Fields{
		"request_id":  c.Locals("requestid"),
		"question":    util.TruncateRunes(q.Question, 80),
		"model":       q.Model,
		"temperature": q.Temperature,
	})
	logger.Info("processing query")

	ans, err := h.rag.Answer(c.UserContext(), q)
	if err != nil {
		logger.WithError(err).Error("query failed")
		return c.Status(fiber.StatusInternalServerError).JSON(model.ErrorResponse{
			Error:  "internal server error",
			Detail: err.Error(),
		})
	}

	logger.WithField("sources", len(ans.Sources)).Info("query answered")
	return c.JSON(model.NewQueryResponse(ans))
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param()))
		case "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be <= %s", fe.Field(), fe.Param()))
		case "notnull":
			msgs = append(msgs, fmt.Sprintf("%s must not be null", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
