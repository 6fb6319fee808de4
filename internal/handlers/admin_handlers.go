package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/student-management/internal/identity"
)

type createRoleReq struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) CreateRole(c *fiber.Ctx) error {
	var req createRoleReq
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	role := identity.NewRole(req.Name)
	if err := h.roles.Create(c.Context(), role); err != nil {
		if errors.Is(err, identity.ErrDuplicateRole) {
			return fiber.NewError(fiber.StatusConflict, "role already exists")
		}
		h.logger.Error("create role failed", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "create role failed")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"role": role})
}

func (h *Handler) ListRoles(c *fiber.Ctx) error {
	roles, err := h.roles.List(c.Context())
	if err != nil {
		h.logger.Error("list roles failed", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "list roles failed")
	}
	return c.JSON(fiber.Map{"roles": roles})
}

type roleMembershipReq struct {
	Username string `json:"username" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

func (h *Handler) AssignRole(c *fiber.Ctx) error {
	var req roleMembershipReq
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	user, err := h.store.FindByName(c.Context(), req.Username)
	if err != nil {
		h.logger.Error("assign role lookup failed", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "lookup failed")
	}
	if user == nil {
		return fiber.NewError(fiber.StatusNotFound, "user not found")
	}

	if err := h.store.AddToRole(c.Context(), user, req.Role); err != nil {
		if errors.Is(err, identity.ErrRoleNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "role does not exist")
		}
		h.logger.Error("assign role failed", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "assign role failed")
	}
	return c.JSON(fiber.Map{"user": user})
}

func (h *Handler) RevokeRole(c *fiber.Ctx) error {
	var req roleMembershipReq
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	user, err := h.store.FindByName(c.Context(), req.Username)
	if err != nil {
		h.logger.Error("revoke role lookup failed", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "lookup failed")
	}
	if user == nil {
		return fiber.NewError(fiber.StatusNotFound, "user not found")
	}

	if err := h.store.RemoveFromRole(c.Context(), user, req.Role); err != nil {
		h.logger.Error("revoke role failed", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "revoke role failed")
	}
	return c.JSON(fiber.Map{"user": user})
}

func (h *Handler) UsersInRole(c *fiber.Ctx) error {
	name := c.Params("name")
	users, err := h.store.UsersInRole(c.Context(), name)
	if err != nil {
		h.logger.Error("users in role failed", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "query failed")
	}
	return c.JSON(fiber.Map{"users": users})
}
