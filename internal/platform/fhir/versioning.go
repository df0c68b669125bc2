package fhir

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// SetVersionHeaders sets ETag and Last-Modified headers on the response.
func SetVersionHeaders(c echo.Context, versionID int, lastModified time.Time) {
	c.Response().Header().Set("ETag", FormatETag(versionID))
	if !lastModified.IsZero() {
		c.Response().Header().Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	}
}

// CheckIfMatch validates the If-Match header against the current version.
// It returns nil when the header is absent.
func CheckIfMatch(c echo.Context, currentVersion int) error {
	expected, err := IfMatchVersion(c)
	if err != nil {
		return err
	}
	return CheckVersion(expected, currentVersion)
}

// IfMatchVersion returns the version named by the If-Match header, or 0 when
// the header is absent.
func IfMatchVersion(c echo.Context) (int, error) {
	ifMatch := c.Request().Header.Get("If-Match")
	if ifMatch == "" {
		return 0, nil
	}
	v, err := ParseETag(ifMatch)
	if err != nil {
		return 0, fmt.Errorf("invalid If-Match header: %w", err)
	}
	return v, nil
}

// CheckVersion fails with a VersionConflictError when expected is set and
// differs from currentVersion.
func CheckVersion(expected, currentVersion int) error {
	if expected != 0 && expected != currentVersion {
		return &VersionConflictError{Expected: expected, Current: currentVersion}
	}
	return nil
}

// VersionConflictError is returned when If-Match names a stale version.
type VersionConflictError struct {
	Expected int
	Current  int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: expected version %d but resource is at version %d", e.Expected, e.Current)
}

// ParseETag extracts the version number from an ETag value like W/"3" or "3".
func ParseETag(etag string) (int, error) {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)

	v, err := strconv.Atoi(etag)
	if err != nil {
		return 0, fmt.Errorf("ETag must contain a numeric version: %s", etag)
	}
	return v, nil
}

// FormatETag creates a weak ETag from a version ID.
func FormatETag(versionID int) string {
	return fmt.Sprintf(`W/"%d"`, versionID)
}

// IfMatchFailed answers a failed CheckIfMatch: 412 for a stale version and
// 400 for a malformed header.
func IfMatchFailed(c echo.Context, err error) error {
	var conflict *VersionConflictError
	if errors.As(err, &conflict) {
		return c.JSON(http.StatusPreconditionFailed, ConflictOutcome(err.Error()))
	}
	return c.JSON(http.StatusBadRequest, InvalidOutcome(err.Error()))
}
