package controller

import (
	"ai-consultation-be/internal/dto"
	"ai-consultation-be/internal/pkg/serverutils"
	"ai-consultation-be/internal/service"
	"ai-consultation-be/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

type IHistoryController interface {
	RegisterRoutes(api fiber.Router, jwtMiddleware fiber.Handler)
	Create(ctx *fiber.Ctx) error
	GetAll(ctx *fiber.Ctx) error
}

type historyController struct {
	service service.IHistoryService
}

func NewHistoryController(service service.IHistoryService) IHistoryController {
	return &historyController{service: service}
}

func (c *historyController) RegisterRoutes(api fiber.Router, jwtMiddleware fiber.Handler) {
	h := api.Group("/history", jwtMiddleware)
	h.Post("", c.Create)
	h.Get("", c.GetAll)
}

func (c *historyController) Create(ctx *fiber.Ctx) error {
	userId, _ := ctx.Locals("user_id").(string)

	var req dto.CreateHistoryRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperr.Wrap(apperr.ErrValidation, "Invalid request body", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Append(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}

	body := serverutils.SuccessResponse("Success create history entry", res)
	body.Code = fiber.StatusCreated
	return ctx.Status(fiber.StatusCreated).JSON(body)
}

func (c *historyController) GetAll(ctx *fiber.Ctx) error {
	userId, _ := ctx.Locals("user_id").(string)

	var req dto.ListHistoryRequest
	if err := ctx.QueryParser(&req); err != nil {
		return apperr.Wrap(apperr.ErrValidation, "Invalid query parameters", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.List(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get history", res))
}
