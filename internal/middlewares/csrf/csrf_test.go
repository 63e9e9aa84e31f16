package csrf_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/memory/v2"
	"github.com/khanghh/koauth/internal/middlewares/csrf"
	"github.com/khanghh/koauth/internal/middlewares/sessions"
	"github.com/khanghh/koauth/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFProtectsForms(t *testing.T) {
	app := fiber.New()
	app.Use(sessions.Initialize(sessions.Config{Storage: store.NewKVStorage(memory.New())}))
	app.Use(csrf.New(csrf.Config{ExcludePaths: []string{"/token"}}))
	app.Get("/form", func(c *fiber.Ctx) error {
		return c.SendString(csrf.Get(sessions.Get(c)))
	})
	app.Post("/form", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Post("/token", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/form", nil))
	require.NoError(t, err)
	buf := make([]byte, 128)
	n, _ := resp.Body.Read(buf)
	token := string(buf[:n])
	require.Len(t, token, 64)
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "sid" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	post := func(path, token string) int {
		form := url.Values{"_csrf": {token}}
		req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(form.Encode()))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
		req.AddCookie(cookie)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusNoContent, post("/form", token))
	assert.Equal(t, fiber.StatusForbidden, post("/form", "forged"))
	assert.Equal(t, fiber.StatusNoContent, post("/token", ""))
}
