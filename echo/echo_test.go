package echo

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/junioryono/depman"
	"github.com/junioryono/depman/session"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func (c *testController) GetValue(ctx echo.Context) error {
	return ctx.String(http.StatusOK, c.Service.ID)
}

func (c *testController) Panic(ctx echo.Context) error {
	panic("test panic")
}

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
	t.Run("attaches a thread and releases its objects", func(t *testing.T) {
		registry := newRegistry(t)
		svc := &testService{ID: "request"}

		var thread *depman.Thread
		e := echo.New()
		e.Use(ThreadMiddleware(registry))
		e.GET("/test", func(c echo.Context) error {
			var err error
			thread, err = depman.ThreadFromContext(c.Request().Context())
			require.NoError(t, err)
			require.NoError(t, depman.Store(c.Request().Context(), registry, "svc", svc))
			return c.NoContent(http.StatusOK)
		})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, thread)
		assert.True(t, thread.IsClosed())
		assert.True(t, svc.closed)
	})

	t.Run("calls error handler when middleware fails", func(t *testing.T) {
		registry := newRegistry(t)
		handlerCalled := false

		e := echo.New()
		e.Use(ThreadMiddleware(registry,
			WithMiddleware(func(*depman.Thread, echo.Context) error {
				return errors.New("middleware error")
			}),
			WithErrorHandler(func(c echo.Context, err error) error {
				return c.NoContent(http.StatusForbidden)
			}),
		))
		e.GET("/test", func(c echo.Context) error {
			handlerCalled = true
			return nil
		})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.False(t, handlerCalled)
	})
}

func TestSessionMiddleware(t *testing.T) {
	store := session.NewStore()

	var seen []*session.Session
	e := echo.New()
	e.Use(SessionMiddleware(store, WithIDGenerator(func() []byte { return []byte("minted") })))
	e.GET("/", func(c echo.Context) error {
		s, ok := session.FromContext(c.Request().Context())
		require.True(t, ok)
		seen = append(seen, s)
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultCookieName, cookies[0].Name)
	assert.Equal(t, "minted", cookies[0].Value)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Empty(t, rec.Result().Cookies())

	require.Len(t, seen, 2)
	assert.Same(t, seen[0], seen[1])

	t.Run("unknown client id is not adopted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "chosen-by-client"})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "minted", cookies[0].Value)
		assert.Same(t, seen[0], seen[len(seen)-1])

		_, ok := store.Lookup([]byte("chosen-by-client"))
		assert.False(t, ok)
	})
}

func TestHandle(t *testing.T) {
	t.Run("constructs the controller per request thread", func(t *testing.T) {
		registry := newRegistry(t)

		e := echo.New()
		e.Use(ThreadMiddleware(registry))
		e.GET("/value", Handle(registry, (*testController).GetValue))

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/value", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "constructed", rec.Body.String())
	})

	t.Run("calls lookup error handler", func(t *testing.T) {
		registry := depman.New()
		t.Cleanup(func() { _ = registry.Close() })

		e := echo.New()
		e.GET("/value", Handle(registry, (*testController).GetValue,
			WithName("missing"),
			WithLookupErrorHandler(func(c echo.Context, err error) error {
				return c.String(http.StatusNotFound, err.Error())
			})))

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/value", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), `"missing"`)
	})

	t.Run("recovers from panic when enabled", func(t *testing.T) {
		registry := newRegistry(t)

		e := echo.New()
		e.GET("/panic", Handle(registry, (*testController).Panic,
			WithPanicRecovery(true),
			WithPanicHandler(func(c echo.Context, v any) error {
				return c.String(http.StatusInternalServerError, "recovered")
			})))

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "recovered", rec.Body.String())
	})
}
