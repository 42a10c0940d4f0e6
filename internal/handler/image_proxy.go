package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bandou-movie/internal/fetch"
)

// ImageGetter is the part of fetch.Client the proxy needs.
type ImageGetter interface {
	Get(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// ImageProxyHandler relays remote cover images so browsers are not blocked
// by hotlink protection.  Responses are cached by the Redis cache
// middleware mounted on its route.
type ImageProxyHandler struct {
	Fetcher ImageGetter
}

func NewImageProxyHandler(f ImageGetter) *ImageProxyHandler {
	if f == nil {
		panic("nil dependency passed to NewImageProxyHandler")
	}
	return &ImageProxyHandler{Fetcher: f}
}

// Proxy handles GET /proxy_image/?url=.
func (h *ImageProxyHandler) Proxy(c echo.Context) error {
	raw := strings.TrimSpace(c.QueryParam("url"))
	u, err := url.Parse(raw)
	if raw == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "url must be an absolute http(s) address"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()
	resp, err := h.Fetcher.Get(ctx, u.String())
	if err != nil {
		return writeError(c, err)
	}
	ct := resp.ContentType
	if ct == "" {
		ct = http.DetectContentType(resp.Body)
	}
	if !strings.HasPrefix(ct, "image/") {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "upstream did not return an image"})
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=86400")
	return c.Blob(http.StatusOK, ct, resp.Body)
}
