package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/student-management/internal/schools"
)

func (h *Handler) ListSchools(c *fiber.Ctx) error {
	out, err := h.schools.List(c.Context())
	if err != nil {
		h.logger.Error("list schools failed", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "list schools failed")
	}
	return c.JSON(fiber.Map{"schools": out})
}

type createSchoolReq struct {
	Name      string                   `json:"name" validate:"required"`
	StartDate string                   `json:"start_date"`
	Address   schools.Address          `json:"address"`
	Courses   []schools.CourseSchedule `json:"courses"`
}

func (h *Handler) CreateSchool(c *fiber.Ctx) error {
	var req createSchoolReq
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	school := &schools.School{
		Name:    req.Name,
		Address: req.Address,
		Courses: req.Courses,
	}
	if req.StartDate != "" {
		start, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "start_date must be YYYY-MM-DD")
		}
		school.StartDate = start
	}
	if err := h.schools.Create(c.Context(), school); err != nil {
		h.logger.Error("create school failed", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "create school failed")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"school": school})
}
