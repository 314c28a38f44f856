package gin

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/junioryono/depman"
	"github.com/junioryono/depman/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Test types
type testService struct {
	ID     string
	closed bool
}

func (s *testService) Close() error {
	s.closed = true
	return nil
}

type testController struct {
	Service *testService
}

func (c *testController) GetValue(ctx *gin.Context) {
	ctx.String(http.StatusOK, c.Service.ID)
}

func (c *testController) Panic(ctx *gin.Context) {
	panic("test panic")
}

type failingCloser struct {
	err error
}

func (c failingCloser) Close() error { return c.err }

func newRegistry(t *testing.T) *depman.Registry {
	t.Helper()

	types := depman.NewTypeRegistry()
	depman.Register(types, func() *testController {
		return &testController{Service: &testService{ID: "constructed"}}
	})

	r := depman.New(depman.WithTypeRegistry(types))
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestThreadMiddleware(t *testing.T) {
	t.Run("attaches a thread and closes it after the request", func(t *testing.T) {
		registry := newRegistry(t)
		svc := &testService{ID: "request"}

		var thread *depman.Thread
		g := gin.New()
		g.Use(ThreadMiddleware(registry))
		g.GET("/test", func(c *gin.Context) {
			var err error
			thread, err = depman.ThreadFromContext(c.Request.Context())
			require.NoError(t, err)
			require.NoError(t, depman.Store(c.Request.Context(), registry, "svc", svc))
			c.Status(http.StatusOK)
		})

		rec := httptest.NewRecorder()
		g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, thread)
		assert.True(t, thread.IsClosed())
		assert.True(t, svc.closed)
	})

	t.Run("runs middlewares in order", func(t *testing.T) {
		registry := newRegistry(t)
		var order []string

		g := gin.New()
		g.Use(ThreadMiddleware(registry,
			WithMiddleware(func(_ *depman.Thread, c *gin.Context) error {
				order = append(order, "first")
				return nil
			}),
			WithMiddleware(func(_ *depman.Thread, c *gin.Context) error {
				order = append(order, "second")
				return depman.Store(c.Request.Context(), registry, "user", c.GetHeader("X-User"))
			}),
		))
		g.GET("/test", func(c *gin.Context) {
			order = append(order, "handler")
			c.String(http.StatusOK, depman.Get[string](c.Request.Context(), registry, "user"))
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("X-User", "alice")
		rec := httptest.NewRecorder()
		g.ServeHTTP(rec, req)

		assert.Equal(t, []string{"first", "second", "handler"}, order)
		assert.Equal(t, "alice", rec.Body.String())
	})

	t.Run("calls error handler when middleware fails", func(t *testing.T) {
		registry := newRegistry(t)
		handlerCalled := false

		g := gin.New()
		g.Use(ThreadMiddleware(registry,
			WithMiddleware(func(*depman.Thread, *gin.Context) error {
				return errors.New("middleware error")
			}),
			WithErrorHandler(func(c *gin.Context, err error) {
				c.AbortWithStatus(http.StatusForbidden)
			}),
		))
		g.GET("/test", func(c *gin.Context) {
			handlerCalled = true
		})

		rec := httptest.NewRecorder()
		g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.False(t, handlerCalled)
	})

	t.Run("reports close errors", func(t *testing.T) {
		registry := newRegistry(t)
		closeErr := errors.New("close failed")

		var gotErr error
		g := gin.New()
		g.Use(ThreadMiddleware(registry, WithCloseErrorHandler(func(err error) { gotErr = err })))
		g.GET("/test", func(c *gin.Context) {
			_ = depman.Store[depman.Disposable](c.Request.Context(), registry, "failing", failingCloser{err: closeErr})
		})

		g.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.ErrorIs(t, gotErr, closeErr)
	})
}

func TestSessionMiddleware(t *testing.T) {
	setup := func(store *session.Store, opts ...SessionOption) (*gin.Engine, *[]*session.Session) {
		var seen []*session.Session
		g := gin.New()
		g.Use(SessionMiddleware(store, opts...))
		g.GET("/", func(c *gin.Context) {
			s, ok := session.FromContext(c.Request.Context())
			require.True(t, ok)
			seen = append(seen, s)
			c.Status(http.StatusOK)
		})
		return g, &seen
	}

	t.Run("issues a cookie for a new session", func(t *testing.T) {
		store := session.NewStore()
		g, seen := setup(store, WithIDGenerator(func() []byte { return []byte("minted") }))

		rec := httptest.NewRecorder()
		g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, DefaultCookieName, cookies[0].Name)
		assert.Equal(t, "minted", cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)

		require.Len(t, *seen, 1)
		assert.Equal(t, []byte("minted"), (*seen)[0].ID())
	})

	t.Run("reuses the session named by the cookie", func(t *testing.T) {
		store := session.NewStore()
		store.Get([]byte("abc"))
		g, seen := setup(store, WithCookieName("sid"), WithSecureCookie(true))

		for i := 0; i < 2; i++ {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: "sid", Value: "abc"})
			rec := httptest.NewRecorder()
			g.ServeHTTP(rec, req)
			assert.Empty(t, rec.Result().Cookies())
		}

		require.Len(t, *seen, 2)
		assert.Same(t, (*seen)[0], (*seen)[1])
		assert.Equal(t, 1, store.Len())
	})

	t.Run("unknown client id is not adopted", func(t *testing.T) {
		store := session.NewStore()
		g, seen := setup(store, WithIDGenerator(func() []byte { return []byte("minted") }))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "chosen-by-client"})
		rec := httptest.NewRecorder()
		g.ServeHTTP(rec, req)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "minted", cookies[0].Value)
		require.Len(t, *seen, 1)
		assert.Equal(t, []byte("minted"), (*seen)[0].ID())

		_, ok := store.Lookup([]byte("chosen-by-client"))
		assert.False(t, ok)
	})
}

func TestHandle(t *testing.T) {
	t.Run("constructs the controller per request thread", func(t *testing.T) {
		registry := newRegistry(t)

		g := gin.New()
		g.Use(ThreadMiddleware(registry))
		g.GET("/value", Handle(registry, (*testController).GetValue))

		rec := httptest.NewRecorder()
		g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/value", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "constructed", rec.Body.String())
	})

	t.Run("calls lookup error handler when the controller is missing", func(t *testing.T) {
		registry := depman.New()
		t.Cleanup(func() { _ = registry.Close() })

		var gotErr error
		g := gin.New()
		g.GET("/value", Handle(registry, (*testController).GetValue,
			WithLookupErrorHandler(func(c *gin.Context, err error) {
				gotErr = err
				c.AbortWithStatus(http.StatusNotFound)
			})))

		rec := httptest.NewRecorder()
		g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/value", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.ErrorContains(t, gotErr, "gin.testController")
	})

	t.Run("stored controller by name", func(t *testing.T) {
		registry := newRegistry(t)
		ctrl := &testController{Service: &testService{ID: "stored"}}
		require.NoError(t, depman.Store(t.Context(), registry, "ctrl", ctrl, depman.InPolicy(depman.ApplicationGlobal)))

		g := gin.New()
		g.GET("/value", Handle(registry, (*testController).GetValue,
			WithName("ctrl"), WithPolicy(depman.ApplicationGlobal)))

		rec := httptest.NewRecorder()
		g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/value", nil))
		assert.Equal(t, "stored", rec.Body.String())
	})

	t.Run("recovers from panic when enabled", func(t *testing.T) {
		registry := newRegistry(t)
		var recovered any

		g := gin.New()
		g.GET("/panic", Handle(registry, (*testController).Panic,
			WithPanicRecovery(true),
			WithPanicHandler(func(c *gin.Context, r any) {
				recovered = r
				c.AbortWithStatus(http.StatusInternalServerError)
			})))

		rec := httptest.NewRecorder()
		g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "test panic", recovered)
	})

	t.Run("does not recover from panic when disabled", func(t *testing.T) {
		registry := newRegistry(t)

		g := gin.New()
		g.GET("/panic", Handle(registry, (*testController).Panic))

		assert.Panics(t, func() {
			g.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/panic", nil))
		})
	})
}

func TestDefaultConfig(t *testing.T) {
	t.Run("default error handler returns 500 JSON", func(t *testing.T) {
		cfg := defaultConfig()

		g := gin.New()
		g.GET("/test", func(c *gin.Context) {
			cfg.ErrorHandler(c, errors.New("test error"))
		})

		rec := httptest.NewRecorder()
		g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("panic recovery disabled by default", func(t *testing.T) {
		assert.False(t, defaultHandlerConfig().PanicRecovery)
	})
}
