package captcha

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTurnstileServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		ok := r.PostForm.Get("secret") == "secret-key" && r.PostForm.Get("response") == "good"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(turnstileResult{Success: ok})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTurnstileVerifier(t *testing.T) {
	srv := newTurnstileServer(t)
	SetVerifier(NewTurnstileVerifier("secret-key", srv.URL))
	t.Cleanup(func() { SetVerifier(nil) })

	app := fiber.New()
	app.Post("/login", func(c *fiber.Ctx) error {
		if err := Verify(c); err != nil {
			return c.Status(fiber.StatusForbidden).SendString(err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	tests := []struct {
		name     string
		response string
		status   int
	}{
		{"accepted", "good", fiber.StatusNoContent},
		{"rejected", "bad", fiber.StatusForbidden},
		{"missing", "", fiber.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{turnstileResponseName: {tt.response}}
			req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestNullVerifierAcceptsAll(t *testing.T) {
	SetVerifier(nil)
	app := fiber.New()
	app.Post("/", func(c *fiber.Ctx) error { return Verify(c) })
	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
