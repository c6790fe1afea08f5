package programs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler(t *testing.T) (*Handler, ProgramService) {
	t.Helper()
	svc := newTestService(newMockRepo())
	return NewHandler(svc), svc
}

func TestAPIList_ReturnsPublishedOnly(t *testing.T) {
	h, svc := newTestHandler(t)
	ctx := context.Background()
	svc.Create(ctx, validInput("Viola"))
	draft := validInput("Hidden")
	draft.IsPublished = false
	svc.Create(ctx, draft)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/programs", nil), rec)
	if err := h.APIList(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Programs) != 1 || resp.Programs[0].Slug != "viola" {
		t.Errorf("unexpected listing: %+v", resp)
	}
	if resp.Page != 1 || resp.PerPage != 24 {
		t.Errorf("unexpected paging: %+v", resp)
	}
}

func TestAPIShow_UnknownSlug(t *testing.T) {
	h, _ := newTestHandler(t)
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/programs/nope", nil), httptest.NewRecorder())
	c.SetParamNames("slug")
	c.SetParamValues("nope")

	assertAppErrorType(t, h.APIShow(c), "not_found")
}

func TestCreate_InvalidFormRerendersWithMessage(t *testing.T) {
	h, _ := newTestHandler(t)
	e := echo.New()

	form := url.Values{"name": {"Bassoon"}, "instrument": {""}, "duration_weeks": {"10"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/programs", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()

	if err := h.Create(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "instrument is required") || !strings.Contains(body, `value="Bassoon"`) {
		t.Errorf("form should show the error and keep input: %s", body)
	}
}

func TestCreate_JSONClient(t *testing.T) {
	h, _ := newTestHandler(t)
	e := echo.New()

	body := `{"name":"Trumpet","instrument":"Trumpet","level":"advanced","duration_weeks":8,"is_published":true}`
	req := httptest.NewRequest(http.MethodPost, "/admin/programs", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.Create(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var p Program
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Slug != "trumpet" || p.Level != LevelAdvanced {
		t.Errorf("unexpected program: %+v", p)
	}
}

func TestCreate_HTMXRedirectsToList(t *testing.T) {
	h, _ := newTestHandler(t)
	e := echo.New()

	form := url.Values{"name": {"Sax"}, "instrument": {"Saxophone"}, "duration_weeks": {"6"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/programs", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()

	if err := h.Create(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get("HX-Redirect") != "/admin/programs" {
		t.Errorf("expected HX-Redirect to the list, got %q", rec.Header().Get("HX-Redirect"))
	}
}

func TestCatalog_RendersCards(t *testing.T) {
	h, svc := newTestHandler(t)
	svc.Create(context.Background(), validInput("Mandolin & Friends"))

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/programs", nil), rec)
	if err := h.Catalog(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Mandolin &amp; Friends") {
		t.Errorf("expected escaped program name in catalog: %s", body)
	}
	if !strings.Contains(body, `href="/programs/mandolin-friends"`) {
		t.Error("expected a link to the program page")
	}
}

type fakeRecorder struct{ actions []string }

func (f *fakeRecorder) Record(_ context.Context, actorID, action, _, name string, _ map[string]any) {
	f.actions = append(f.actions, actorID+" "+action+" "+name)
}

func TestHandler_RecordsCatalogEdits(t *testing.T) {
	h, svc := newTestHandler(t)
	rec := &fakeRecorder{}
	h.SetRecorder(rec)
	p, err := svc.Create(context.Background(), validInput("Cello"))
	if err != nil {
		t.Fatal(err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/admin/programs/"+p.ID, nil)
	req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(p.ID)
	c.Set("auth_user_id", "admin")
	if err := h.Delete(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rec.actions) != 1 || rec.actions[0] != "admin program.deleted Cello" {
		t.Errorf("recorded %q", rec.actions)
	}
}
