package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/student-management/internal/handlers"
	"github.com/fathima-sithara/student-management/internal/middleware"
)

// Setup wires the HTTP surface. The rate limiter is optional; nil skips it.
func Setup(app *fiber.App, h *handlers.Handler, jwtSecret string, rl *middleware.RateLimiter) {
	api := app.Group("/api")

	auth := api.Group("/auth")
	if rl != nil {
		byIP := rl.MiddlewareByKey(func(c *fiber.Ctx) string { return c.IP() })
		auth.Use("/register", byIP)
		auth.Use("/login", byIP)
	}
	auth.Post("/register", h.Register)
	auth.Post("/login", h.Login)

	authorized := middleware.JWTAuth(jwtSecret)
	api.Get("/me", authorized, h.Me)
	api.Post("/auth/change-password", authorized, h.ChangePassword)
	api.Get("/schools", h.ListSchools)

	admin := api.Group("/admin", authorized, middleware.RequireRole("administrator"))
	admin.Post("/roles", h.CreateRole)
	admin.Get("/roles", h.ListRoles)
	admin.Get("/roles/:name/users", h.UsersInRole)
	admin.Post("/roles/assign", h.AssignRole)
	admin.Post("/roles/revoke", h.RevokeRole)
	admin.Post("/schools", h.CreateSchool)
}
