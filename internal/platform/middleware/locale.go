package middleware

import (
	"context"

	"github.com/labstack/echo/v4"
	"golang.org/x/text/language"
)

type localeKey struct{}

// Locale negotiates the request locale from Accept-Language against the
// supported tags; the first supported tag is the fallback. A "_locale" query
// parameter takes precedence over the header.
func Locale(supported ...language.Tag) echo.MiddlewareFunc {
	if len(supported) == 0 {
		supported = []language.Tag{language.English}
	}
	matcher := language.NewMatcher(supported)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			tag, _ := language.MatchStrings(matcher, c.QueryParam("_locale"), req.Header.Get("Accept-Language"))
			base, _ := tag.Base()
			tag, _ = language.Compose(base)
			c.SetRequest(req.WithContext(WithLocale(req.Context(), tag)))
			c.Response().Header().Set("Content-Language", tag.String())
			return next(c)
		}
	}
}

func WithLocale(ctx context.Context, tag language.Tag) context.Context {
	return context.WithValue(ctx, localeKey{}, tag)
}

// LocaleFromContext returns the negotiated locale, or language.Und when the
// Locale middleware did not run.
func LocaleFromContext(ctx context.Context) language.Tag {
	tag, ok := ctx.Value(localeKey{}).(language.Tag)
	if !ok {
		return language.Und
	}
	return tag
}
