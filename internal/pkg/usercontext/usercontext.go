package usercontext

import "github.com/gofiber/fiber/v2"

const localsKey = "USER_CONTEXT"

// UserContext carries the authenticated identity of a request. Handlers read
// it instead of touching the session directly.
type UserContext struct {
	UserID     uint   `json:"user_id"`
	Username   string `json:"username"`
	IsLoggedIn bool   `json:"is_logged_in"`
	IsAdmin    bool   `json:"is_admin"`
}

// Set stores the context in fiber Locals for the rest of the request.
func Set(c *fiber.Ctx, ctx UserContext) {
	c.Locals(localsKey, ctx)
}

// Get retrieves the request's user context, falling back to an anonymous one.
func Get(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(localsKey).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

// IsLoggedIn reports whether the request carries an authenticated session.
func IsLoggedIn(c *fiber.Ctx) bool {
	return Get(c).IsLoggedIn
}

// IsAdmin reports whether the request's user has the admin role.
func IsAdmin(c *fiber.Ctx) bool {
	return Get(c).IsAdmin
}

// GetUserID returns the current user's id, or 0 for anonymous requests.
func GetUserID(c *fiber.Ctx) uint {
	return Get(c).UserID
}

// GetUsername returns the current user's name, or "" for anonymous requests.
func GetUsername(c *fiber.Ctx) string {
	return Get(c).Username
}
