package middleware

import (
	"github.com/labstack/echo/v4"
)

// strippedRequestHeaders never reach a handler. Hop-by-hop headers are
// connection scoped; the stream relay forwards none of the client's headers
// besides Range either way.
var strippedRequestHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// responseHeaders go on every response, media included.
var responseHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
}

// mediaPath is left embeddable: a <video> on the UI origin may be cross-site.
const mediaPath = "/stream"

// SecurityHeaders returns an Echo middleware that sets the response security
// headers and strips hop-by-hop request headers. The response headers are
// set before the handler runs since a relay commits on its first write.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request().Header
			for _, name := range strippedRequestHeaders {
				req.Del(name)
			}

			res := c.Response().Header()
			for _, kv := range responseHeaders {
				res.Set(kv[0], kv[1])
			}
			if c.Request().URL.Path != mediaPath {
				res.Set("Cross-Origin-Resource-Policy", "same-site")
			}

			return next(c)
		}
	}
}
