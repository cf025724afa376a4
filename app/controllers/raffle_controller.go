package controllers

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/rafflemaster/rafflemaster/app/models"
	"github.com/rafflemaster/rafflemaster/app/repository"
	"github.com/rafflemaster/rafflemaster/internal/pkg/cache"
	"github.com/rafflemaster/rafflemaster/internal/pkg/imageutil"
	"github.com/rafflemaster/rafflemaster/internal/pkg/raffledraw"
	"github.com/rafflemaster/rafflemaster/internal/pkg/storage"
	"github.com/rafflemaster/rafflemaster/internal/pkg/ticketpool"
	"github.com/rafflemaster/rafflemaster/internal/pkg/usercontext"
)

var (
	raffleStorage *storage.Client
	rafflePool    *ticketpool.Service
	raffleDraw    *raffledraw.Service
)

// InitializeRaffleController wires the raffle controller with its services.
// A nil storage client disables image upload (dev without S3).
func InitializeRaffleController(storageClient *storage.Client, pool *ticketpool.Service, draw *raffledraw.Service) {
	raffleStorage = storageClient
	rafflePool = pool
	raffleDraw = draw
}

// HandleCreateRaffle creates a raffle from a multipart form and seeds its
// ticket number pool.
func HandleCreateRaffle(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	price, err := strconv.ParseFloat(c.FormValue("ticket_price"), 64)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid ticket_price")
	}
	quantityNumbers, err := strconv.Atoi(c.FormValue("quantity_numbers"))
	if err != nil || quantityNumbers <= 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid quantity_numbers")
	}
	startDate, err := time.Parse(time.RFC3339, c.FormValue("start_date"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid start_date, expected RFC3339")
	}
	endDate, err := time.Parse(time.RFC3339, c.FormValue("end_date"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid end_date, expected RFC3339")
	}
	if !endDate.After(startDate) {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "end_date must be after start_date")
	}

	imageURL := ""
	if fileHeader, err := c.FormFile("image"); err == nil {
		if raffleStorage == nil {
			return jsonError(c, fiber.StatusInternalServerError, "storage_unavailable", "image storage is not configured")
		}
		file, err := fileHeader.Open()
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "could not read uploaded image")
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "could not read uploaded image")
		}

		if _, err := imageutil.ValidateImageBySniff(fileHeader.Filename, data); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid_image", err.Error())
		}
		normalized, contentType, err := imageutil.Normalize(data)
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid_image", err.Error())
		}

		imageURL, err = raffleStorage.UploadRaffleImage(c.Context(), userID, normalized, contentType)
		if err != nil {
			log.Errorf("[Raffle] image upload failed: %v", err)
			return jsonError(c, fiber.StatusInternalServerError, "upload_failed", "failed to upload image")
		}
	}

	raffle := &models.Raffle{
		UserID:          userID,
		Name:            c.FormValue("name"),
		Description:     c.FormValue("description"),
		ImageURL:        imageURL,
		TicketPrice:     price,
		QuantityNumbers: quantityNumbers,
		StartDate:       startDate,
		EndDate:         endDate,
	}
	if err := raffle.Validate(); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}

	raffleRepo := repository.GetGlobalFactory().GetRaffleRepository()
	if err := raffleRepo.Create(raffle); err != nil {
		log.Errorf("[Raffle] failed to create raffle: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "could not create raffle")
	}

	if err := rafflePool.Seed(raffle.ID, quantityNumbers); err != nil {
		log.Errorf("[Raffle] failed to seed slots for raffle %d: %v", raffle.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "could not create ticket pool")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"raffle": raffle})
}

// HandleListRaffles returns a page of raffles.
func HandleListRaffles(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	raffleRepo := repository.GetGlobalFactory().GetRaffleRepository()
	raffles, err := raffleRepo.List(offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "internal error")
	}
	count, err := raffleRepo.Count()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "internal error")
	}

	return c.JSON(fiber.Map{"raffles": raffles, "total": count})
}

// HandleGetRaffle returns one raffle with its free/sold counters.
func HandleGetRaffle(c *fiber.Ctx) error {
	raffleID, err := c.ParamsInt("id")
	if err != nil || raffleID <= 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid raffle id")
	}

	factory := repository.GetGlobalFactory()
	raffle, err := factory.GetRaffleRepository().GetByID(uint(raffleID))
	if err != nil {
		return jsonError(c, fiber.StatusNotFound, "raffle_not_found", "raffle not found")
	}

	free, err := freeTicketCount(raffle.ID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "internal error")
	}
	sold, err := factory.GetTicketRepository().CountByRaffle(raffle.ID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "internal error")
	}

	return c.JSON(fiber.Map{
		"raffle":       raffle,
		"free_tickets": free,
		"sold_tickets": sold,
	})
}

// freeTicketCount reads the free counter from the cache, falling back to the
// pool. The counter changes on every purchase, so the TTL stays short.
func freeTicketCount(raffleID uint) (int64, error) {
	key := freeCountCacheKey(raffleID)
	if cached, err := cache.GetInt(key); err == nil {
		return int64(cached), nil
	}

	free, err := rafflePool.CountFree(raffleID)
	if err != nil {
		return 0, err
	}
	if err := cache.Set(key, free, 10*time.Second); err != nil {
		log.Warnf("[Raffle] failed to cache free count for raffle %d: %v", raffleID, err)
	}
	return free, nil
}

func freeCountCacheKey(raffleID uint) string {
	return fmt.Sprintf("raffle:%d:free_count", raffleID)
}

// HandleDrawWinner draws and records the raffle winner.
func HandleDrawWinner(c *fiber.Ctx) error {
	raffleID, err := c.ParamsInt("id")
	if err != nil || raffleID <= 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid raffle id")
	}

	winner, err := raffleDraw.DrawWinner(uint(raffleID))
	if err != nil {
		return mapDomainError(c, err)
	}

	return c.JSON(fiber.Map{"winner_ticket": winner})
}
