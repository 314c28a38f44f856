// Package gin provides depman integration for the Gin web framework.
//
// ThreadMiddleware attaches a fresh depman Thread to every request, so
// ThreadLocal objects live exactly as long as the request. SessionMiddleware
// resolves a cookie-keyed session and carries it in the request context.
//
// Example usage:
//
//	registry := depman.New()
//	sessions := session.NewStore()
//
//	g := gin.New()
//	g.Use(depmangin.ThreadMiddleware(registry))
//	g.Use(depmangin.SessionMiddleware(sessions))
//
//	g.GET("/users/:id", depmangin.Handle(registry, (*UserController).GetByID))
package gin

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/junioryono/depman"
	"github.com/junioryono/depman/session"
	"github.com/rs/zerolog"
)

// DefaultCookieName is the session cookie used unless WithCookieName says
// otherwise.
const DefaultCookieName = "depman_session"

// Config holds the configuration for the thread middleware.
type Config struct {
	// ErrorHandler is called when a request hook fails.
	// If nil, a default handler returning 500 Internal Server Error is used.
	ErrorHandler func(*gin.Context, error)

	// CloseErrorHandler is called when releasing the request's objects fails.
	// If nil, errors are logged through Logger.
	CloseErrorHandler func(error)

	// Middlewares are functions that run after the thread is attached.
	// They can be used to seed request objects, such as the current user.
	Middlewares []func(*depman.Thread, *gin.Context) error

	// Logger receives close errors. The default discards everything.
	Logger zerolog.Logger
}

// Option configures the thread middleware.
type Option func(*Config)

// WithErrorHandler sets the error handler for request hook failures.
func WithErrorHandler(h func(*gin.Context, error)) Option {
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
//
// Example:
//
//	depmangin.ThreadMiddleware(registry,
//	    depmangin.WithMiddleware(func(_ *depman.Thread, c *gin.Context) error {
//	        return depman.Store(c.Request.Context(), registry, "user", c.GetHeader("X-User"))
//	    }),
//	)
func WithMiddleware(mw func(*depman.Thread, *gin.Context) error) Option {
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
		ErrorHandler: func(c *gin.Context, err error) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Internal Server Error",
			})
		},
		Logger: zerolog.Nop(),
	}
}

// ThreadMiddleware creates a gin.HandlerFunc that attaches a new depman
// Thread to each request. The thread is reachable through the request
// context and is closed, releasing its objects, when the request completes.
func ThreadMiddleware(registry *depman.Registry, opts ...Option) gin.HandlerFunc {
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

	return func(c *gin.Context) {
		ctx, thread := registry.Attach(c.Request.Context())
		defer func() {
			if err := thread.Close(); err != nil {
				cfg.CloseErrorHandler(err)
			}
		}()

		c.Request = c.Request.WithContext(ctx)

		for _, mw := range cfg.Middlewares {
			if err := mw(thread, c); err != nil {
				cfg.ErrorHandler(c, err)
				return
			}
		}

		c.Next()
	}
}

// SessionConfig holds the configuration for the session middleware.
type SessionConfig struct {
	// CookieName names the cookie carrying the session id.
	CookieName string

	// Path, Domain, MaxAge, Secure and HttpOnly shape issued cookies.
	Path     string
	Domain   string
	MaxAge   int
	Secure   bool
	HttpOnly bool

	// NewID mints ids for requests without a session cookie.
	NewID func() []byte
}

// SessionOption configures the session middleware.
type SessionOption func(*SessionConfig)

// WithCookieName sets the session cookie name.
func WithCookieName(name string) SessionOption {
	return func(c *SessionConfig) {
		if name != "" {
			c.CookieName = name
		}
	}
}

// WithSecureCookie marks issued cookies Secure.
func WithSecureCookie(secure bool) SessionOption {
	return func(c *SessionConfig) {
		c.Secure = secure
	}
}

// WithIDGenerator sets how new session ids are minted.
func WithIDGenerator(newID func() []byte) SessionOption {
	return func(c *SessionConfig) {
		if newID != nil {
			c.NewID = newID
		}
	}
}

func defaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		CookieName: DefaultCookieName,
		Path:       "/",
		HttpOnly:   true,
		NewID:      session.NewID,
	}
}

// SessionMiddleware creates a gin.HandlerFunc that resolves the session
// named by the request's session cookie. Requests without the cookie, or
// whose cookie names no session the manager knows, get a new session and a
// Set-Cookie header. The session is retrieved with session.FromContext.
func SessionMiddleware(manager session.Manager, opts ...SessionOption) gin.HandlerFunc {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c *gin.Context) {
		value, _ := c.Cookie(cfg.CookieName)

		s, issued := session.Resolve(manager, []byte(value), cfg.NewID)
		if issued {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cfg.CookieName, string(s.ID()), cfg.MaxAge, cfg.Path, cfg.Domain, cfg.Secure, cfg.HttpOnly)
		}
		c.Request = c.Request.WithContext(session.NewContext(c.Request.Context(), s))
		c.Next()
	}
}

// HandlerConfig holds configuration for the Handle wrapper.
type HandlerConfig struct {
	// PanicRecovery enables panic recovery in the handler.
	// If true, panics are caught and handled by PanicHandler.
	PanicRecovery bool

	// PanicHandler is called when a panic occurs (if PanicRecovery is true).
	// If nil, a default handler returning 500 Internal Server Error is used.
	PanicHandler func(*gin.Context, any)

	// LookupErrorHandler is called when the controller cannot be obtained.
	// If nil, a default handler returning 500 Internal Server Error is used.
	LookupErrorHandler func(*gin.Context, error)

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

// WithPanicHandler sets the handler for panics (requires WithPanicRecovery(true)).
func WithPanicHandler(h func(*gin.Context, any)) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicHandler = h
	}
}

// WithLookupErrorHandler sets the error handler for controller lookup failures.
func WithLookupErrorHandler(h func(*gin.Context, error)) HandlerOption {
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
		PanicRecovery: false,
		PanicHandler: func(c *gin.Context, r any) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Internal Server Error",
			})
		},
		LookupErrorHandler: func(c *gin.Context, err error) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Internal Server Error",
			})
		},
	}
}

// Handle wraps a controller method. The controller T is looked up in
// registry with the request context, so ThreadLocal controllers come from
// the request's thread and are constructed on first use.
//
// The method signature should be: func(T, *gin.Context)
//
// Example:
//
//	g.GET("/users/:id", depmangin.Handle(registry, (*UserController).GetByID))
func Handle[T any](registry *depman.Registry, method func(T, *gin.Context), opts ...HandlerOption) gin.HandlerFunc {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	name := cfg.Name
	if name == "" {
		name = depman.NameOf[T]()
	}

	return func(c *gin.Context) {
		if cfg.PanicRecovery {
			defer func() {
				if r := recover(); r != nil {
					cfg.PanicHandler(c, r)
				}
			}()
		}

		controller, ok := depman.Lookup[T](c.Request.Context(), registry, name, depman.InPolicy(cfg.Policy))
		if !ok {
			cfg.LookupErrorHandler(c, fmt.Errorf("object %q not available", name))
			return
		}

		method(controller, c)
	}
}
