// Package echo provides depman integration for the Echo web framework.
//
// ThreadMiddleware attaches a fresh depman Thread to every request;
// SessionMiddleware resolves a cookie-keyed session for it.
//
// Example usage:
//
//	e := echo.New()
//	e.Use(depmanecho.ThreadMiddleware(registry))
//	e.Use(depmanecho.SessionMiddleware(sessions))
//
//	e.GET("/users/:id", depmanecho.Handle(registry, (*UserController).GetByID))
package echo

import (
	"fmt"
	"net/http"

	"github.com/junioryono/depman"
	"github.com/junioryono/depman/session"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// DefaultCookieName is the session cookie used unless WithCookieName says
// otherwise.
const DefaultCookieName = "depman_session"

// Config holds the configuration for the thread middleware.
type Config struct {
	// ErrorHandler is called when a request hook fails.
	// If nil, an HTTP 500 error is returned.
	ErrorHandler func(echo.Context, error) error

	// CloseErrorHandler is called when releasing the request's objects fails.
	// If nil, errors are logged through Logger.
	CloseErrorHandler func(error)

	// Middlewares are functions that run after the thread is attached.
	Middlewares []func(*depman.Thread, echo.Context) error

	// Logger receives close errors. The default discards everything.
	Logger zerolog.Logger
}

// Option configures the thread middleware.
type Option func(*Config)

// WithErrorHandler sets the error handler for request hook failures.
func WithErrorHandler(h func(echo.Context, error) error) Option {
	return func(c *Config) {
		c.ErrorHandler = h
	}
}

// WithCloseErrorHandler sets the error handler for thread close failures.
func WithCloseErrorHandler(h func(error)) Option {
	return func(c *Config) {
		c.CloseErrorHandler = h
	}
}

// WithMiddleware adds a function that runs after the thread is attached.
// Multiple middlewares are executed in the order they are added.
func WithMiddleware(mw func(*depman.Thread, echo.Context) error) Option {
	return func(c *Config) {
		c.Middlewares = append(c.Middlewares, mw)
	}
}

// WithLogger sets the logger used by the default close error handler.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

func defaultConfig() *Config {
	return &Config{
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
		},
		Logger: zerolog.Nop(),
	}
}

// ThreadMiddleware creates an Echo middleware that attaches a new depman
// Thread to each request and closes it when the request completes.
func ThreadMiddleware(registry *depman.Registry, opts ...Option) echo.MiddlewareFunc {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.CloseErrorHandler == nil {
		logger := cfg.Logger
		cfg.CloseErrorHandler = func(err error) {
			logger.Error().Err(err).Msg("failed to close request thread")
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, thread := registry.Attach(c.Request().Context())
			defer func() {
				if err := thread.Close(); err != nil {
					cfg.CloseErrorHandler(err)
				}
			}()

			c.SetRequest(c.Request().WithContext(ctx))

			for _, mw := range cfg.Middlewares {
				if err := mw(thread, c); err != nil {
					return cfg.ErrorHandler(c, err)
				}
			}

			return next(c)
		}
	}
}

// SessionOption configures the session middleware.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	cookieName string
	secure     bool
	newID      func() []byte
}

// WithCookieName sets the session cookie name.
func WithCookieName(name string) SessionOption {
	return func(c *sessionConfig) {
		if name != "" {
			c.cookieName = name
		}
	}
}

// WithSecureCookie marks issued cookies Secure.
func WithSecureCookie(secure bool) SessionOption {
	return func(c *sessionConfig) {
		c.secure = secure
	}
}

// WithIDGenerator sets how new session ids are minted.
func WithIDGenerator(newID func() []byte) SessionOption {
	return func(c *sessionConfig) {
		if newID != nil {
			c.newID = newID
		}
	}
}

// SessionMiddleware creates an Echo middleware that resolves the session
// named by the request's session cookie, issuing a new one when the cookie
// is absent or names no session the manager knows.
// The session is retrieved with session.FromContext.
func SessionMiddleware(manager session.Manager, opts ...SessionOption) echo.MiddlewareFunc {
	cfg := &sessionConfig{cookieName: DefaultCookieName, newID: session.NewID}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var id []byte
			if cookie, err := c.Cookie(cfg.cookieName); err == nil {
				id = []byte(cookie.Value)
			}

			s, issued := session.Resolve(manager, id, cfg.newID)
			if issued {
				c.SetCookie(&http.Cookie{
					Name:     cfg.cookieName,
					Value:    string(s.ID()),
					Path:     "/",
					HttpOnly: true,
					Secure:   cfg.secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			c.SetRequest(c.Request().WithContext(session.NewContext(c.Request().Context(), s)))
			return next(c)
		}
	}
}

// HandlerConfig holds configuration for the Handle wrapper.
type HandlerConfig struct {
	// PanicRecovery enables panic recovery in the handler.
	PanicRecovery bool

	// PanicHandler is called when a panic occurs (if PanicRecovery is true).
	PanicHandler func(echo.Context, any) error

	// LookupErrorHandler is called when the controller cannot be obtained.
	LookupErrorHandler func(echo.Context, error) error

	// Name overrides the object name the controller is looked up by.
	Name string

	// Policy selects the pool the controller is looked up in.
	Policy depman.ThreadingPolicy
}

// HandlerOption configures the Handle wrapper.
type HandlerOption func(*HandlerConfig)

// WithPanicRecovery enables or disables panic recovery in the handler.
func WithPanicRecovery(enabled bool) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicRecovery = enabled
	}
}

// WithPanicHandler sets the handler for panics.
func WithPanicHandler(h func(echo.Context, any) error) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicHandler = h
	}
}

// WithLookupErrorHandler sets the error handler for controller lookup failures.
func WithLookupErrorHandler(h func(echo.Context, error) error) HandlerOption {
	return func(c *HandlerConfig) {
		c.LookupErrorHandler = h
	}
}

// WithName looks the controller up by name instead of its type name.
func WithName(name string) HandlerOption {
	return func(c *HandlerConfig) {
		c.Name = name
	}
}

// WithPolicy looks the controller up in the pool selected by policy.
func WithPolicy(policy depman.ThreadingPolicy) HandlerOption {
	return func(c *HandlerConfig) {
		c.Policy = policy
	}
}

func defaultHandlerConfig() *HandlerConfig {
	return &HandlerConfig{
		PanicHandler: func(c echo.Context, v any) error {
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
		},
		LookupErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
		},
	}
}

// Handle wraps a controller method. The controller T is looked up in
// registry with the request context.
//
// The method signature should be: func(T, echo.Context) error
func Handle[T any](registry *depman.Registry, method func(T, echo.Context) error, opts ...HandlerOption) echo.HandlerFunc {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	name := cfg.Name
	if name == "" {
		name = depman.NameOf[T]()
	}

	return func(c echo.Context) (err error) {
		if cfg.PanicRecovery {
			defer func() {
				if v := recover(); v != nil {
					err = cfg.PanicHandler(c, v)
				}
			}()
		}

		controller, ok := depman.Lookup[T](c.Request().Context(), registry, name, depman.InPolicy(cfg.Policy))
		if !ok {
			return cfg.LookupErrorHandler(c, fmt.Errorf("object %q not available", name))
		}

		return method(controller, c)
	}
}
