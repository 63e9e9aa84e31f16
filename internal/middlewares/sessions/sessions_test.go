package sessions_test

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/memory/v2"
	"github.com/khanghh/koauth/internal/middlewares/sessions"
	"github.com/khanghh/koauth/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionApp(t *testing.T) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Use(sessions.Initialize(sessions.Config{
		Storage:    store.NewKVStorage(memory.New()),
		CookieName: "sid",
	}))
	app.Post("/login", func(c *fiber.Ctx) error {
		sess := sessions.Get(c)
		sess.Login(42, c.IP(), time.Now())
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(strconv.FormatUint(uint64(sessions.Get(c).UserID), 10))
	})
	app.Post("/logout", func(c *fiber.Ctx) error {
		return sessions.Destroy(c)
	})
	return app
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "sid" && cookie.Value != "" {
			return cookie
		}
	}
	return nil
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	buf := make([]byte, 64)
	n, _ := resp.Body.Read(buf)
	return string(buf[:n])
}

func TestSessionLifecycle(t *testing.T) {
	app := newSessionApp(t)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/whoami", nil))
	require.NoError(t, err)
	assert.Equal(t, "0", readBody(t, resp))
	assert.Nil(t, sessionCookie(t, resp), "anonymous sessions are not persisted")

	resp, err = app.Test(httptest.NewRequest(fiber.MethodPost, "/login", nil))
	require.NoError(t, err)
	cookie := sessionCookie(t, resp)
	require.NotNil(t, cookie)

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.AddCookie(cookie)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "42", readBody(t, resp))

	req = httptest.NewRequest(fiber.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	_, err = app.Test(req)
	require.NoError(t, err)

	req = httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.AddCookie(cookie)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "0", readBody(t, resp))
}
