package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/oklog/ulid/v2"

	"github.com/katakuxiko/ragsearch/internal/model"
)

// NewApp creates the fiber app with the common middleware stack.
func NewApp(corsOrigins string) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "ragsearch",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator: func() string { return ulid.Make().String() },
	}))
	app.Use(cors.New(cors.Config{AllowOrigins: corsOrigins}))
	app.Use(requestLogger())

	return app
}

// RegisterRoutes mounts the API handlers on app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/", h.Root)
	app.Get("/health", h.Health)
	app.Get("/models", h.ListModels)
	app.Post("/query", h.Query)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(model.ErrorResponse{
		Error:  http.StatusText(code),
		Detail: err.Error(),
	})
}

func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// let the error handler set the final status before logging it
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		log.WithFields(log.Fields{
			"request_id": c.Locals("requestid"),
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"duration":   time.Since(start).String(),
		}).Info("request")
		return nil
	}
}
