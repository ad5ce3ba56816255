package session

import (
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteGuard protects UI routes behind the session store. Guarded requests
// count as interaction signals: each pass through the guard marks activity
// and extends the inactivity deadline.
type RouteGuard struct {
	store            *SessionStore
	cfg              Config
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

func NewRouteGuard(store *SessionStore, cfg Config) (*RouteGuard, error) {
	g := &RouteGuard{
		store:  store,
		cfg:    cfg,
		Logger: defLogger{},
	}

	g.ErrorHandler = g.defaultErrHandler
	g.AuthErrorHandler = g.defaultAuthErrHandler

	return g, nil
}

// RequireSession admits only Active sessions. Anything else records the
// rejected route and redirects to sign-in.
func (g *RouteGuard) RequireSession() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			record := g.store.Current()
			if record == nil {
				return g.AuthErrorHandler(c, ErrNoActiveSession)
			}

			g.store.MarkActivity(c.Context())
			c.SetContext(WithContext(c.Context(), record))
			return hf(c)
		}
	}
}

// RequireOrganization routes tenant-less members into the organization
// required flow instead of failing visibly. Platform operators pass.
func (g *RouteGuard) RequireOrganization() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			record := g.store.Current()
			if record == nil {
				return g.AuthErrorHandler(c, ErrNoActiveSession)
			}

			if !record.HasOrganization() && record.Role != RoleSuperAdmin {
				return c.Redirect(g.cfg.GetOrganizationRequiredRoute(), http.StatusSeeOther)
			}

			g.store.MarkActivity(c.Context())
			c.SetContext(WithContext(c.Context(), record))
			return hf(c)
		}
	}
}

// RequireRole admits sessions whose role meets the minimum level.
func (g *RouteGuard) RequireRole(minRole Role) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			record := g.store.Current()
			if record == nil {
				return g.AuthErrorHandler(c, ErrNoActiveSession)
			}

			if !RoleIsAtLeast(record.Role, minRole) {
				return g.ErrorHandler(c, errors.New("insufficient role", errors.CategoryAuthz).
					WithMetadata(map[string]any{
						"role":     record.Role,
						"required": minRole,
					}))
			}

			g.store.MarkActivity(c.Context())
			c.SetContext(WithContext(c.Context(), record))
			return hf(c)
		}
	}
}

// GetRedirect pops the rejected-route cookie, falling back to def.
func (g *RouteGuard) GetRedirect(c router.Context, def ...string) string {
	redirectKey := g.cfg.GetRedirectKey()
	r := c.Cookies(redirectKey)
	if r == "" {
		return def[0]
	}
	g.cookieDel(c, redirectKey)
	return r
}

// SetRedirect remembers the rejected route so sign-in can send the user back.
func (g *RouteGuard) SetRedirect(c router.Context) {
	redirectKey := g.cfg.GetRedirectKey()

	g.Logger.Info("Setting redirect cookie", "key", redirectKey, "path", c.OriginalURL())

	c.Cookie(&router.Cookie{
		Name:     redirectKey,
		Value:    c.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *RouteGuard) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *RouteGuard) defaultAuthErrHandler(c router.Context, err error) error {
	g.Logger.Info(
		"Session missing, redirecting to sign-in",
		"error", err,
		"path", c.OriginalURL(),
	)

	g.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(g.cfg.GetSignInRoute(), statusCode)
}

func (g *RouteGuard) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	g.Logger.Info(
		"Guard error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return g.AuthErrorHandler(c, richErr)
	default:
		return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
			"error": richErr,
		})
	}
}
