package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{services.ErrInvalidScore, fiber.StatusBadRequest},
		{services.ErrSelfAction, fiber.StatusBadRequest},
		{services.ErrInvalidPass, fiber.StatusUnprocessableEntity},
		{fmt.Errorf("submit: %w", services.ErrInvalidPass), fiber.StatusUnprocessableEntity},
		{services.ErrDuplicateRating, fiber.StatusConflict},
		{services.ErrNotNearby, fiber.StatusConflict},
		{&services.RateLimitError{RetryAfter: time.Minute}, fiber.StatusTooManyRequests},
		{services.ErrPassNotFound, fiber.StatusNotFound},
		{services.ErrForbidden, fiber.StatusForbidden},
		{services.ErrInvalidToken, fiber.StatusUnauthorized},
		{services.ErrStoreUnavailable, fiber.StatusServiceUnavailable},
		{services.ErrAvatarUnavailable, fiber.StatusServiceUnavailable},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestRespondError(t *testing.T) {
	app := fiber.New()
	app.Get("/limited", func(c *fiber.Ctx) error {
		return respondError(c, &services.RateLimitError{RetryAfter: 90*time.Second + time.Millisecond})
	})
	app.Get("/store", func(c *fiber.Ctx) error {
		return respondError(c, fmt.Errorf("%w: load pass: connection refused", services.ErrStoreUnavailable))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/limited", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "91", resp.Header.Get("Retry-After"))
	body := decode(t, resp.Body)
	assert.Equal(t, "rate_limited", body.Code)
	assert.Equal(t, 91, body.RetryAfter)

	resp, err = app.Test(httptest.NewRequest("GET", "/store", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	body = decode(t, resp.Body)
	assert.Equal(t, "store_unavailable", body.Code)
	assert.NotContains(t, body.Message, "connection refused")
}

func TestCursorParam(t *testing.T) {
	n, err := cursorParam("")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = cursorParam("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	_, err = cursorParam("-1")
	assert.Error(t, err)
	_, err = cursorParam("x")
	assert.Error(t, err)
}

func decode(t *testing.T, r io.Reader) dto.ErrorResponse {
	t.Helper()
	var body dto.ErrorResponse
	require.NoError(t, json.NewDecoder(r).Decode(&body))
	assert.True(t, body.Error)
	return body
}
