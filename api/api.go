package api

import (
	"context"
	"errors"

	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/NicoHurtado/cursia-sub002/utils/response"
	"github.com/gofiber/fiber/v2"
)

type APIServer struct {
	app           *fiber.App
	listenAddress string
	log           *logger.Logger
}

func NewAPIServer(listenAddress string, log *logger.Logger) *APIServer {
	return &APIServer{
		app: fiber.New(fiber.Config{
			AppName:      "cursia-api",
			BodyLimit:    4 * 1024 * 1024,
			ErrorHandler: errorHandler(log),
		}),
		listenAddress: listenAddress,
		log:           log,
	}
}

// errorHandler writes errors returned by routes (unknown paths, bad methods,
// body limits) in the response envelope.
func errorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code := "ERROR"
			switch fe.Code {
			case fiber.StatusNotFound:
				code = "NOT_FOUND"
			case fiber.StatusMethodNotAllowed:
				code = "METHOD_NOT_ALLOWED"
			case fiber.StatusRequestEntityTooLarge:
				code = "PAYLOAD_TOO_LARGE"
			}
			return response.Error(c, fe.Code, fe.Message, code)
		}
		return response.Fail(c, log, err)
	}
}

func (s *APIServer) GetEngine() *fiber.App {
	return s.app
}

// Run blocks serving HTTP until Shutdown is called.
func (s *APIServer) Run() error {
	s.log.Info("starting API server", "address", s.listenAddress)
	return s.app.Listen(s.listenAddress)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *APIServer) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
