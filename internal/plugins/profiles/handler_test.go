package profiles

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequestContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.Set("auth_user_id", "u1")
	return c, rec
}

func TestShow_JSON(t *testing.T) {
	h := NewHandler(newTestService(&mockProfileRepo{}))
	c, rec := newRequestContext(http.MethodGet, "/profile", "")
	c.Request().Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)

	require.NoError(t, h.Show(c))
	var p Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "clara@example.com", p.Email)
}

func TestUpdate_HTMXRendersSavedForm(t *testing.T) {
	h := NewHandler(newTestService(&mockProfileRepo{}))
	form := url.Values{"display_name": {"Clara <em>Wieck</em>"}, "skill_level": {"intermediate"}, "timezone": {"Europe/Vienna"}}
	c, rec := newRequestContext(http.MethodPut, "/profile", form.Encode())
	c.Request().Header.Set("HX-Request", "true")

	require.NoError(t, h.Update(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Profile saved.")
	assert.Contains(t, body, `value="Clara Wieck"`)
	assert.Contains(t, body, `<option value="intermediate" selected>`)
}

func TestUpdate_InvalidRerendersForm(t *testing.T) {
	h := NewHandler(newTestService(&mockProfileRepo{}))
	form := url.Values{"display_name": {"Clara"}, "timezone": {"Nowhere/Town"}}
	c, rec := newRequestContext(http.MethodPut, "/profile", form.Encode())
	c.Request().Header.Set("HX-Request", "true")

	require.NoError(t, h.Update(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown timezone")
	assert.Contains(t, rec.Body.String(), `value="Nowhere/Town"`)
}

func TestUpdate_PlainFormRedirects(t *testing.T) {
	h := NewHandler(newTestService(&mockProfileRepo{}))
	c, rec := newRequestContext(http.MethodPost, "/profile", url.Values{"display_name": {"Clara"}}.Encode())

	require.NoError(t, h.Update(c))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/profile", rec.Header().Get("Location"))
}
