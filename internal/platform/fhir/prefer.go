package fhir

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	ReturnMinimal          = "minimal"
	ReturnRepresentation   = "representation"
	ReturnOperationOutcome = "OperationOutcome"
)

// ParsePreferReturn extracts the return preference from a Prefer header value.
// Handles "return=minimal", "return=minimal; handling=strict" and
// "handling=strict, return=minimal".
func ParsePreferReturn(prefer string) string {
	for _, part := range strings.FieldsFunc(prefer, func(r rune) bool { return r == ',' || r == ';' }) {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "return=") {
			return strings.TrimSpace(strings.TrimPrefix(part, "return="))
		}
	}
	return ""
}

// WriteResult answers a create or update. Warnings are always sent as
// Warning headers; the body follows the client's Prefer return directive.
func WriteResult(c echo.Context, status int, resource interface{}, warnings []string) error {
	for _, w := range warnings {
		c.Response().Header().Add("Warning", `199 - `+strconv.Quote(w))
	}
	switch ParsePreferReturn(c.Request().Header.Get("Prefer")) {
	case ReturnMinimal:
		return c.NoContent(status)
	case ReturnOperationOutcome:
		oo := NewOperationOutcome(IssueSeverityInformation, "informational", http.StatusText(status))
		oo.AddWarnings(warnings)
		return c.JSON(status, oo)
	}
	return c.JSON(status, resource)
}
