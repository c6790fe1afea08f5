package enrollments

import (
	"context"
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

// newContext builds a request context signed in as userID.
func newContext(method, target string, form url.Values, userID string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.Set("auth_user_id", userID)
	return c, rec
}

func TestCreate_RedirectsWithNotice(t *testing.T) {
	svc, repo, _ := newTestService()
	h := NewHandler(svc)

	c, rec := newContext(http.MethodPost, "/enrollments", url.Values{"program_id": {"piano"}}, "u1")
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/enrollments?done=requested", rec.Header().Get("Location"))
	assert.Len(t, repo.rows, 1)

	c, rec = newContext(http.MethodGet, "/enrollments?done=requested", nil, "u1")
	require.NoError(t, h.Index(c))
	body := rec.Body.String()
	assert.Contains(t, body, "Your enrollment request was sent")
	assert.Contains(t, body, "Piano Foundations")
	assert.Contains(t, body, "Pending review")
}

func TestCreate_DuplicateShowsConflict(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	_, err := svc.Request(context.Background(), "u1", EnrollRequest{ProgramID: "piano"})
	require.NoError(t, err)

	c, rec := newContext(http.MethodPost, "/enrollments", url.Values{"program_id": {"piano"}}, "u1")
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already requested this program")
}

func TestCreate_JSONClient(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	c, rec := newContext(http.MethodPost, "/enrollments", url.Values{"program_id": {"piano"}}, "u1")
	c.Request().Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var e Enrollment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, StatusPending, e.Status)
	assert.Equal(t, "u1", e.UserID)
}

func TestWithdraw_HTMXSwapsRow(t *testing.T) {
	svc, repo, _ := newTestService()
	h := NewHandler(svc)
	e, err := svc.Request(context.Background(), "u1", EnrollRequest{ProgramID: "piano"})
	require.NoError(t, err)

	c, rec := newContext(http.MethodDelete, "/enrollments/"+e.ID, nil, "u1")
	c.Request().Header.Set("HX-Request", "true")
	c.SetParamNames("id")
	c.SetParamValues(e.ID)
	require.NoError(t, h.Withdraw(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `id="enrollment-`+e.ID+`"`)
	assert.Contains(t, rec.Body.String(), "Withdrawn")
	assert.NotContains(t, rec.Body.String(), "hx-delete")
	assert.Equal(t, StatusWithdrawn, repo.rows[e.ID].Status)
}

func TestAdminIndex_DefaultsToPending(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	ctx := context.Background()
	a, _ := svc.Request(ctx, "u1", EnrollRequest{ProgramID: "piano"})
	_, _ = svc.Request(ctx, "u2", EnrollRequest{ProgramID: "piano"})
	_, err := svc.Approve(ctx, "admin", a.ID, "")
	require.NoError(t, err)

	c, rec := newContext(http.MethodGet, "/admin/enrollments", nil, "admin")
	c.Request().Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	require.NoError(t, h.AdminIndex(c))

	var resp struct {
		Enrollments []Enrollment `json:"enrollments"`
		Total       int          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "u2", resp.Enrollments[0].UserID)

	c, rec = newContext(http.MethodGet, "/admin/enrollments?status=", nil, "admin")
	c.Request().Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	require.NoError(t, h.AdminIndex(c))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
}

func TestApprove_HTMXRowAndFullProgram(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	ctx := context.Background()
	a, _ := svc.Request(ctx, "u1", EnrollRequest{ProgramID: "violin"})
	b, _ := svc.Request(ctx, "u2", EnrollRequest{ProgramID: "violin"})

	approve := func(id string) *httptest.ResponseRecorder {
		c, rec := newContext(http.MethodPost, "/admin/enrollments/"+id+"/approve", url.Values{}, "admin")
		c.Request().Header.Set("HX-Request", "true")
		c.SetParamNames("id")
		c.SetParamValues(id)
		require.NoError(t, h.Approve(c))
		return rec
	}

	rec := approve(a.ID)
	assert.Contains(t, rec.Body.String(), "Enrolled")
	assert.NotContains(t, rec.Body.String(), "/approve")

	rec = approve(b.ID)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Violin Studio is full")
	assert.Contains(t, rec.Body.String(), `class="alert alert-error"`)
}

func TestReject_UnknownIsNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	c, _ := newContext(http.MethodPost, "/admin/enrollments/nope/reject", url.Values{}, "admin")
	c.SetParamNames("id")
	c.SetParamValues("nope")
	assertAppErrorType(t, h.Reject(c), "not_found")
}

type recordedChange struct{ actor, action, subject string }

type fakeRecorder struct{ changes []recordedChange }

func (f *fakeRecorder) Record(_ context.Context, actorID, action, subjectID, _ string, _ map[string]any) {
	f.changes = append(f.changes, recordedChange{actorID, action, subjectID})
}

func TestHandler_RecordsSuccessfulChanges(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	rec := &fakeRecorder{}
	h.SetRecorder(rec)

	c, _ := newContext(http.MethodPost, "/enrollments", url.Values{"program_id": {"piano"}}, "u1")
	c.Request().Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	require.NoError(t, h.Create(c))
	require.Len(t, rec.changes, 1)
	id := rec.changes[0].subject

	// A refused duplicate is not a change.
	c, _ = newContext(http.MethodPost, "/enrollments", url.Values{"program_id": {"piano"}}, "u1")
	require.NoError(t, h.Create(c))
	require.Len(t, rec.changes, 1)

	c, _ = newContext(http.MethodPost, "/admin/enrollments/"+id+"/reject", url.Values{}, "admin")
	c.Request().Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	c.SetParamNames("id")
	c.SetParamValues(id)
	require.NoError(t, h.Reject(c))

	assert.Equal(t, []recordedChange{
		{"u1", "enrollment.requested", id},
		{"admin", "enrollment.rejected", id},
	}, rec.changes)
}
