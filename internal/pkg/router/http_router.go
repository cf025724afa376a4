package router

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/rafflemaster/rafflemaster/app/controllers"
	"github.com/rafflemaster/rafflemaster/app/models"
	"github.com/rafflemaster/rafflemaster/app/repository"
	"github.com/rafflemaster/rafflemaster/internal/pkg/database"
	"github.com/rafflemaster/rafflemaster/internal/pkg/mail"
	"github.com/rafflemaster/rafflemaster/internal/pkg/middleware"
	"github.com/rafflemaster/rafflemaster/internal/pkg/payment"
	"github.com/rafflemaster/rafflemaster/internal/pkg/raffledraw"
	"github.com/rafflemaster/rafflemaster/internal/pkg/session"
	"github.com/rafflemaster/rafflemaster/internal/pkg/storage"
	"github.com/rafflemaster/rafflemaster/internal/pkg/ticketpool"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	db := database.GetDB()
	repository.InitializeFactory(db)

	// Core services share the DB handle; the gateway client comes from env.
	pool := ticketpool.NewServiceFromDB(db)
	draw := raffledraw.NewServiceFromDB(db)
	paymentService := payment.NewServiceFromDB(db)
	reconciler := payment.NewReconcilerFromDB(db)
	reconciler.SetNotifier(notifyPaymentApproved)

	var storageClient *storage.Client
	if cfg, err := storage.LoadConfig(); err != nil {
		log.Warnf("[Router] S3 storage disabled: %v", err)
	} else if client, err := storage.NewClient(cfg); err != nil {
		log.Warnf("[Router] S3 storage disabled: %v", err)
	} else {
		storageClient = client
	}

	controllers.InitializeRaffleController(storageClient, pool, draw)
	controllers.InitializeTicketController(paymentService)
	controllers.InitializeWebhookController(reconciler)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

// notifyPaymentApproved sends the "your numbers" confirmation mail.
// Best-effort: reconciliation never fails on mail problems.
func notifyPaymentApproved(p *models.Payment, tickets []models.Ticket) {
	numbers := make([]string, 0, len(tickets))
	for _, t := range tickets {
		numbers = append(numbers, fmt.Sprintf("%d", t.Number))
	}
	body := fmt.Sprintf(
		"<p>Your payment was approved!</p><p>Your ticket numbers: %s</p>",
		strings.Join(numbers, ", "),
	)
	go func() {
		if err := mail.SendMail(p.PayerEmail, "Payment approved - your raffle numbers", body); err != nil {
			log.Warnf("[Router] approval mail for tx=%s failed: %v", p.TransactionID, err)
		}
	}()
}
