package handlers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/student-management/internal/auth"
	"github.com/fathima-sithara/student-management/internal/identity"
	"github.com/fathima-sithara/student-management/internal/schools"
)

type Handler struct {
	users    *auth.UserManager
	signIn   *auth.SignInManager
	store    *identity.UserStore
	roles    *identity.RoleStore
	schools  schools.Repository
	validate *validator.Validate
	logger   *zap.Logger
}

func NewHandler(users *auth.UserManager, signIn *auth.SignInManager, store *identity.UserStore, roles *identity.RoleStore, schoolRepo schools.Repository, logger *zap.Logger) *Handler {
	return &Handler{
		users:    users,
		signIn:   signIn,
		store:    store,
		roles:    roles,
		schools:  schoolRepo,
		validate: validator.New(),
		logger:   logger,
	}
}

type registerReq struct {
	Username  string `json:"username" validate:"required,min=3"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	City      string `json:"city"`
}

func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerReq
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	user, err := h.users.Register(c.Context(), auth.RegisterParams{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		City:      req.City,
	})
	if err != nil {
		if errors.Is(err, identity.ErrDuplicateUser) {
			return fiber.NewError(fiber.StatusConflict, "username already taken")
		}
		h.logger.Error("register failed", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "registration failed")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

type loginReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginReq
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	token, user, err := h.signIn.PasswordSignIn(c.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrLockedOut):
			return fiber.NewError(fiber.StatusForbidden, "account locked")
		case errors.Is(err, auth.ErrInvalidCredentials):
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		default:
			h.logger.Error("login failed", zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "login failed")
		}
	}
	return c.JSON(fiber.Map{"access_token": token, "user": user})
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	var req changePasswordReq
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := h.users.ChangePassword(c.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}
		h.logger.Error("change password failed", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "change password failed")
	}
	return c.JSON(fiber.Map{"message": "password_changed"})
}

// Me returns the profile of the authenticated user.
func (h *Handler) Me(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	user, err := h.store.FindByID(c.Context(), userID)
	if err != nil {
		h.logger.Error("me lookup failed", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "lookup failed")
	}
	if user == nil {
		return fiber.NewError(fiber.StatusNotFound, "user not found")
	}
	return c.JSON(fiber.Map{"user": user})
}
