package controller

import (
	"bufio"
	"context"
	"time"

	"ai-consultation-be/internal/dto"
	"ai-consultation-be/internal/pkg/serverutils"
	"ai-consultation-be/internal/service"
	"ai-consultation-be/pkg/apperr"
	"ai-consultation-be/pkg/sse"
	"ai-consultation-be/pkg/summary"

	"github.com/gofiber/fiber/v2"
)

type IConsultationController interface {
	RegisterRoutes(api fiber.Router, jwtMiddleware fiber.Handler)
	Summarize(ctx *fiber.Ctx) error
	Profile(ctx *fiber.Ctx) error
}

type consultationController struct {
	service service.IConsultationService
}

func NewConsultationController(service service.IConsultationService) IConsultationController {
	return &consultationController{service: service}
}

func (c *consultationController) RegisterRoutes(api fiber.Router, jwtMiddleware fiber.Handler) {
	api.Post("/consultation", jwtMiddleware, c.Summarize)
	api.Get("/me", jwtMiddleware, c.Profile)
}

// Summarize streams the generated summary as Server-Sent Events. Validation
// and upstream failures before the first fragment are plain JSON errors.
func (c *consultationController) Summarize(ctx *fiber.Ctx) error {
	subject := serverutils.SubjectFrom(ctx)

	var req dto.ConsultationRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperr.Wrap(apperr.ErrValidation, "Invalid request body", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	// The fiber context is recycled once the handler returns, but the body
	// writer runs after that.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx.UserContext()))
	session, err := c.service.Start(streamCtx, subject, &req)
	if err != nil {
		cancel()
		return err
	}

	ctx.Status(fiber.StatusOK)
	ctx.Set(fiber.HeaderContentType, sse.ContentType)
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		writer := sse.NewWriter(w)

		outcome := session.Relay(func(chunk string) error {
			return writer.SendText(sse.EventMessage, chunk)
		}, func() error {
			return writer.Comment("keep-alive")
		})

		switch outcome.Status {
		case summary.StatusDone:
			_ = writer.SendJSON(sse.EventDone, dto.ConsultationDone{
				Model:  session.Model(),
				Chunks: outcome.Chunks,
				Chars:  len(outcome.Text),
			})
		case summary.StatusClientGone:
			return
		default:
			_ = writer.SendJSON(sse.EventError, dto.ConsultationStreamError{
				Code:    string(outcome.Status),
				Message: streamErrorMessage(outcome.Status),
			})
		}
	})
	return nil
}

func streamErrorMessage(status summary.Status) string {
	switch status {
	case summary.StatusIdleTimeout:
		return "The summary service stopped responding"
	case summary.StatusCancelled:
		return "The request was cancelled"
	default:
		return "The summary service failed while streaming"
	}
}

func (c *consultationController) Profile(ctx *fiber.Ctx) error {
	subject := serverutils.SubjectFrom(ctx)
	if subject == nil {
		return apperr.New(apperr.ErrUnauthorized, "Missing token")
	}

	res := dto.ProfileResponse{
		UserId:  subject.ID,
		Plan:    subject.Plan,
		Premium: subject.Premium,
		Model:   c.service.Model(subject),
	}
	if !subject.ExpiresAt.IsZero() {
		res.ExpiresAt = subject.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get profile", res))
}
