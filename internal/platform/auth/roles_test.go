package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runWithRoles(mw echo.MiddlewareFunc, roles ...string) error {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), "u", roles))
	c := e.NewContext(req, httptest.NewRecorder())
	return mw(func(c echo.Context) error { return nil })(c)
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		mw      echo.MiddlewareFunc
		roles   []string
		allowed bool
	}{
		{"reader reads", ReadAccess(), []string{RoleReader}, true},
		{"editor reads", ReadAccess(), []string{RoleEditor}, true},
		{"reader cannot write", WriteAccess(), []string{RoleReader}, false},
		{"editor writes", WriteAccess(), []string{RoleEditor}, true},
		{"admin bypass", WriteAccess(), []string{RoleAdmin}, true},
		{"no roles", ReadAccess(), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runWithRoles(tt.mw, tt.roles...)
			if tt.allowed && err != nil {
				t.Errorf("expected access, got %v", err)
			}
			if !tt.allowed {
				httpErr, ok := err.(*echo.HTTPError)
				if !ok || httpErr.Code != http.StatusForbidden {
					t.Errorf("expected 403, got %v", err)
				}
			}
		})
	}
}
