package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/rafflemaster/rafflemaster/app/controllers"
	"github.com/rafflemaster/rafflemaster/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// auth
	auth := v1.Group("/auth")
	auth.Post("/register", controllers.HandleRegister)
	auth.Post("/login", controllers.HandleLogin)
	auth.Post("/logout", controllers.HandleLogout)
	auth.Get("/confirm/:token", controllers.HandleConfirmEmail)

	// raffles
	raffles := v1.Group("/raffles")
	raffles.Get("/", controllers.HandleListRaffles)
	raffles.Get("/:id", controllers.HandleGetRaffle)
	raffles.Post("/", middleware.RequireAdmin, controllers.HandleCreateRaffle)
	raffles.Post("/:id/tickets", middleware.RequireAuth, controllers.HandlePurchaseTickets)
	raffles.Post("/:id/draw-winner", middleware.RequireAdmin, controllers.HandleDrawWinner)

	// user-owned resources
	users := v1.Group("/users", middleware.RequireAuth)
	users.Get("/me/tickets", controllers.HandleListMyTickets)
	users.Get("/me/payments", controllers.HandleListMyPayments)

	// gateway webhook (unauthenticated push)
	v1.Post("/payment-notifications", controllers.HandlePaymentNotification)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
