package controllers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rafflemaster/rafflemaster/app/models"
	"github.com/rafflemaster/rafflemaster/app/repository"
	"github.com/rafflemaster/rafflemaster/internal/pkg/database"
	"github.com/rafflemaster/rafflemaster/internal/pkg/mail"
	"github.com/rafflemaster/rafflemaster/internal/pkg/session"
	"github.com/rafflemaster/rafflemaster/internal/pkg/usercontext"
)

type registerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Telephone string `json:"telephone"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates a new account and sends the confirmation email.
func HandleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	if existing, err := userRepo.GetByEmail(req.Email); err == nil && existing != nil {
		return jsonError(c, fiber.StatusBadRequest, "email_in_use", "email is already registered")
	}

	user, err := models.CreateUser(req.Name, req.Email, req.Telephone, req.Password)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}

	now := time.Now()
	user.ActivationToken = uuid.NewString()
	user.ActivationSentAt = &now

	if err := userRepo.Create(user); err != nil {
		log.Errorf("[Auth] failed to create user: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "could not create account")
	}

	// Confirmation mail is best-effort; registration stands either way.
	go func(email, token string) {
		body := fmt.Sprintf("<p>Welcome to RaffleMaster!</p><p>Confirm your account: /api/v1/auth/confirm/%s</p>", token)
		if err := mail.SendMail(email, "Confirm your account", body); err != nil {
			log.Warnf("[Auth] confirmation mail to %s failed: %v", email, err)
		}
	}(user.Email, user.ActivationToken)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

// HandleLogin verifies credentials and opens a session.
func HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}

	// notice: do not leak whether the email or the password was wrong
	userRepo := repository.GetGlobalFactory().GetUserRepository()
	user, err := userRepo.GetByEmail(req.Email)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	}
	if !models.CheckPasswordHash(req.Password, user.Password) {
		return jsonError(c, fiber.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "session unavailable")
	}
	sess.Set(usercontext.AuthKey, true)
	sess.Set(usercontext.KeyUserID, user.ID)
	sess.Set(usercontext.KeyUsername, user.Name)
	sess.Set(usercontext.KeyIsAdmin, user.IsAdmin())
	if err := sess.Save(); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "session unavailable")
	}

	database.GetDB().Model(user).Update("last_login_at", time.Now())

	return c.JSON(fiber.Map{"user": user})
}

// HandleLogout destroys the current session.
func HandleLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err == nil {
		_ = sess.Destroy()
	}
	return c.JSON(fiber.Map{"message": "logged out"})
}

// HandleConfirmEmail activates the account behind an activation token.
func HandleConfirmEmail(c *fiber.Ctx) error {
	token := c.Params("token")
	if token == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "token missing")
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	user, err := userRepo.GetByActivationToken(token)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return jsonError(c, fiber.StatusNotFound, "invalid_token", "invalid activation token")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "internal error")
	}

	user.Status = models.STATUS_ACTIVE
	user.ActivationToken = ""
	if err := userRepo.Update(user); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "internal error")
	}

	return c.JSON(fiber.Map{"message": "account confirmed"})
}
