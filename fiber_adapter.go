package session

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// FiberContextKey is where the guard stores the session snapshot on the
// request context.
const FiberContextKey = "session_record"

// FiberGuard adapts the session guard for fiber apps that skip the router
// abstraction. Present sessions are snapshotted into c.Locals and the
// request counts as activity; absent sessions hit onReject or redirect to
// the sign-in route.
func FiberGuard(store *SessionStore, cfg Config, onReject func(*fiber.Ctx) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		record := store.Current()
		if record == nil {
			if onReject != nil {
				return onReject(c)
			}
			return c.Redirect(cfg.GetSignInRoute(), http.StatusSeeOther)
		}

		store.MarkActivity(c.UserContext())
		c.Locals(FiberContextKey, record)
		c.SetUserContext(WithContext(c.UserContext(), record))
		return c.Next()
	}
}

// RecordFromFiber retrieves the session snapshot stored by FiberGuard.
func RecordFromFiber(c *fiber.Ctx) (*SessionRecord, error) {
	value := c.Locals(FiberContextKey)
	if value == nil {
		return nil, ErrNoActiveSession
	}

	record, ok := value.(*SessionRecord)
	if record == nil || !ok {
		return nil, ErrNoActiveSession
	}
	return record, nil
}
