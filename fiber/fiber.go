// Package fiber provides depman integration for the Fiber web framework.
//
// ThreadMiddleware attaches a fresh depman Thread to every request and
// stores it in fiber.Ctx.Locals as well as in the UserContext.
//
// Example usage:
//
//	app := fiber.New()
//	app.Use(depmanfiber.ThreadMiddleware(registry))
//	app.Use(depmanfiber.SessionMiddleware(sessions))
//
//	app.Get("/users/:id", depmanfiber.Handle(registry, (*UserController).GetByID))
package fiber

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/junioryono/depman"
	"github.com/junioryono/depman/session"
	"github.com/rs/zerolog"
)

// Locals keys.
const (
	threadKey  = "depman_thread"
	sessionKey = "depman_session"
)

// DefaultCookieName is the session cookie used unless WithCookieName says
// otherwise.
const DefaultCookieName = "depman_session"

// Config holds the configuration for the thread middleware.
type Config struct {
	// ErrorHandler is called when a request hook fails.
	// If nil, the error is returned.
	ErrorHandler func(*fiber.Ctx, error) error

	// CloseErrorHandler is called when releasing the request's objects fails.
	// If nil, errors are logged through Logger.
	CloseErrorHandler func(error)

	// Middlewares are functions that run after the thread is attached.
	Middlewares []func(*depman.Thread, *fiber.Ctx) error

	// Logger receives close errors. The default discards everything.
	Logger zerolog.Logger
}

// Option configures the thread middleware.
type Option func(*Config)

// WithErrorHandler sets the error handler for request hook failures.
func WithErrorHandler(h func(*fiber.Ctx, error) error) Option {
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
func WithMiddleware(mw func(*depman.Thread, *fiber.Ctx) error) Option {
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
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return fiber.NewError(fiber.StatusInternalServerError, "Internal Server Error")
		},
		Logger: zerolog.Nop(),
	}
}

// ThreadMiddleware creates a fiber.Handler that attaches a new depman
// Thread to each request and closes it when the request completes.
func ThreadMiddleware(registry *depman.Registry, opts ...Option) fiber.Handler {
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

	return func(c *fiber.Ctx) error {
		ctx, thread := registry.Attach(c.UserContext())
		defer func() {
			if err := thread.Close(); err != nil {
				cfg.CloseErrorHandler(err)
			}
		}()

		c.SetUserContext(ctx)
		c.Locals(threadKey, thread)

		for _, mw := range cfg.Middlewares {
			if err := mw(thread, c); err != nil {
				return cfg.ErrorHandler(c, err)
			}
		}

		return c.Next()
	}
}

// ThreadFromContext returns the thread ThreadMiddleware attached, or nil.
func ThreadFromContext(c *fiber.Ctx) *depman.Thread {
	thread, _ := c.Locals(threadKey).(*depman.Thread)
	return thread
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

// SessionMiddleware creates a fiber.Handler that resolves the session named
// by the request's session cookie, issuing a new one when the cookie is
// absent or names no session the manager knows.
func SessionMiddleware(manager session.Manager, opts ...SessionOption) fiber.Handler {
	cfg := &sessionConfig{cookieName: DefaultCookieName, newID: session.NewID}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c *fiber.Ctx) error {
		s, issued := session.Resolve(manager, []byte(c.Cookies(cfg.cookieName)), cfg.newID)
		if issued {
			c.Cookie(&fiber.Cookie{
				Name:     cfg.cookieName,
				Value:    string(s.ID()),
				Path:     "/",
				HTTPOnly: true,
				Secure:   cfg.secure,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}
		c.Locals(sessionKey, s)
		c.SetUserContext(session.NewContext(c.UserContext(), s))
		return c.Next()
	}
}

// SessionFromContext returns the session SessionMiddleware resolved, or nil.
func SessionFromContext(c *fiber.Ctx) *session.Session {
	s, _ := c.Locals(sessionKey).(*session.Session)
	return s
}

// HandlerConfig holds configuration for the Handle wrapper.
type HandlerConfig struct {
	// PanicRecovery enables panic recovery in the handler.
	PanicRecovery bool

	// PanicHandler is called when a panic occurs (if PanicRecovery is true).
	PanicHandler func(*fiber.Ctx, any) error

	// LookupErrorHandler is called when the controller cannot be obtained.
	LookupErrorHandler func(*fiber.Ctx, error) error

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
func WithPanicHandler(h func(*fiber.Ctx, any) error) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicHandler = h
	}
}

// WithLookupErrorHandler sets the error handler for controller lookup failures.
func WithLookupErrorHandler(h func(*fiber.Ctx, error) error) HandlerOption {
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
		PanicHandler: func(c *fiber.Ctx, v any) error {
			return fiber.NewError(fiber.StatusInternalServerError, "Internal Server Error")
		},
		LookupErrorHandler: func(c *fiber.Ctx, err error) error {
			return fiber.NewError(fiber.StatusInternalServerError, "Internal Server Error")
		},
	}
}

// Handle wraps a controller method. The controller T is looked up in
// registry with the request's UserContext.
//
// The method signature should be: func(T, *fiber.Ctx) error
func Handle[T any](registry *depman.Registry, method func(T, *fiber.Ctx) error, opts ...HandlerOption) fiber.Handler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	name := cfg.Name
	if name == "" {
		name = depman.NameOf[T]()
	}

	return func(c *fiber.Ctx) (err error) {
		if cfg.PanicRecovery {
			defer func() {
				if v := recover(); v != nil {
					err = cfg.PanicHandler(c, v)
				}
			}()
		}

		controller, ok := depman.Lookup[T](c.UserContext(), registry, name, depman.InPolicy(cfg.Policy))
		if !ok {
			return cfg.LookupErrorHandler(c, fmt.Errorf("object %q not available", name))
		}

		return method(controller, c)
	}
}
