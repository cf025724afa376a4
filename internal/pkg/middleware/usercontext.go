package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rafflemaster/rafflemaster/internal/pkg/session"
	"github.com/rafflemaster/rafflemaster/internal/pkg/usercontext"
)

// UserContextMiddleware resolves the session into a request user context.
// Controllers only ever read the context; session access stays here.
func UserContextMiddleware(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		usercontext.Set(c, usercontext.UserContext{})
		return c.Next()
	}

	userID, ok := sess.Get(usercontext.KeyUserID).(uint)
	if !ok || userID == 0 {
		// anonymous
		usercontext.Set(c, usercontext.UserContext{})
		return c.Next()
	}

	username, _ := sess.Get(usercontext.KeyUsername).(string)
	isAdmin, _ := sess.Get(usercontext.KeyIsAdmin).(bool)

	usercontext.Set(c, usercontext.UserContext{
		UserID:     userID,
		Username:   username,
		IsLoggedIn: true,
		IsAdmin:    isAdmin,
	})
	return c.Next()
}
