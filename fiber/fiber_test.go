package fiber

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/junioryono/depman"
	"github.com/junioryono/depman/session"
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

func (c *testController) GetValue(ctx *fiber.Ctx) error {
	return ctx.SendString(c.Service.ID)
}

func (c *testController) Panic(ctx *fiber.Ctx) error {
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

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestThreadMiddleware(t *testing.T) {
	t.Run("attaches a thread and releases its objects", func(t *testing.T) {
		registry := newRegistry(t)
		svc := &testService{ID: "request"}

		var thread *depman.Thread
		app := fiber.New()
		app.Use(ThreadMiddleware(registry))
		app.Get("/test", func(c *fiber.Ctx) error {
			thread = ThreadFromContext(c)
			fromCtx, err := depman.ThreadFromContext(c.UserContext())
			require.NoError(t, err)
			assert.Same(t, thread, fromCtx)

			require.NoError(t, depman.Store(c.UserContext(), registry, "svc", svc))
			return c.SendStatus(http.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotNil(t, thread)
		assert.True(t, thread.IsClosed())
		assert.True(t, svc.closed)
	})

	t.Run("calls error handler when middleware fails", func(t *testing.T) {
		registry := newRegistry(t)

		app := fiber.New()
		app.Use(ThreadMiddleware(registry,
			WithMiddleware(func(*depman.Thread, *fiber.Ctx) error {
				return errors.New("middleware error")
			}),
			WithErrorHandler(func(c *fiber.Ctx, err error) error {
				return c.Status(http.StatusForbidden).SendString(err.Error())
			}),
		))
		app.Get("/test", func(c *fiber.Ctx) error {
			t.Error("handler must not run")
			return nil
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "middleware error", readBody(t, resp))
	})
}

func TestSessionMiddleware(t *testing.T) {
	store := session.NewStore()

	var seen []*session.Session
	app := fiber.New()
	app.Use(SessionMiddleware(store, WithIDGenerator(func() []byte { return []byte("minted") })))
	app.Get("/", func(c *fiber.Ctx) error {
		s := SessionFromContext(c)
		require.NotNil(t, s)
		fromCtx, ok := session.FromContext(c.UserContext())
		require.True(t, ok)
		assert.Same(t, s, fromCtx)
		seen = append(seen, s)
		return c.SendStatus(http.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	resp.Body.Close()

	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultCookieName, cookies[0].Name)
	assert.Equal(t, "minted", cookies[0].Value)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "minted"})
	resp, err = app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Cookies())

	require.Len(t, seen, 2)
	assert.Same(t, seen[0], seen[1])

	t.Run("unknown client id is not adopted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "chosen-by-client"})
		resp, err := app.Test(req)
		require.NoError(t, err)
		resp.Body.Close()

		cookies := resp.Cookies()
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

		app := fiber.New()
		app.Use(ThreadMiddleware(registry))
		app.Get("/value", Handle(registry, (*testController).GetValue))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/value", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "constructed", readBody(t, resp))
	})

	t.Run("calls lookup error handler", func(t *testing.T) {
		registry := depman.New()
		t.Cleanup(func() { _ = registry.Close() })

		app := fiber.New()
		app.Get("/value", Handle(registry, (*testController).GetValue,
			WithLookupErrorHandler(func(c *fiber.Ctx, err error) error {
				return c.Status(http.StatusNotFound).SendString(err.Error())
			})))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/value", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, readBody(t, resp), "fiber.testController")
	})

	t.Run("recovers from panic when enabled", func(t *testing.T) {
		registry := newRegistry(t)

		app := fiber.New()
		app.Get("/panic", Handle(registry, (*testController).Panic,
			WithPanicRecovery(true),
			WithPanicHandler(func(c *fiber.Ctx, v any) error {
				return c.Status(http.StatusInternalServerError).SendString("recovered")
			})))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/panic", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "recovered", readBody(t, resp))
	})
}
