package enrollments

import (
	"context"
	"net/url"
	"strconv"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/crescendo/internal/templates/pages"
)

const dateFormat = "Jan 2, 2006"

// EnrollmentsPage renders the student's enrollment requests.
func EnrollmentsPage(list []Enrollment) templ.Component {
	return pages.Layout("My enrollments", pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<section class="enrollments"><h1>My enrollments</h1>`)
		if len(list) == 0 {
			h.Raw(`<p class="empty">You have not requested any programs yet. <a href="/programs">Browse the catalog</a>.</p></section>`)
			return
		}
		h.Raw("<table><thead><tr><th>Program</th><th>Instrument</th><th>Requested</th><th>Status</th><th></th></tr></thead><tbody>")
		for i := range list {
			h.Component(ctx, StudentRow(&list[i]))
		}
		h.Raw("</tbody></table></section>")
	}))
}

// StudentRow renders one row of the student's table, for HTMX swaps.
func StudentRow(e *Enrollment) templ.Component {
	return pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw("<tr").Attr("id", "enrollment-"+e.ID).Raw("><td>")
		if e.ProgramSlug != "" {
			h.Raw("<a").Attr("href", "/programs/"+e.ProgramSlug).Raw(">").Text(e.ProgramName).Raw("</a>")
		} else {
			h.Text(e.ProgramName)
		}
		h.Raw("</td><td>").Text(e.Instrument).Raw("</td><td>").Text(e.CreatedAt.Format(dateFormat)).Raw("</td><td>")
		statusBadge(h, e.Status)
		h.Raw("</td><td>")
		if e.Status.CanTransition(StatusWithdrawn) {
			h.Raw(`<button type="button" hx-confirm="Withdraw from this program?" hx-swap="outerHTML"`).
				Attr("hx-delete", "/enrollments/"+e.ID).
				Attr("hx-target", "#enrollment-"+e.ID).
				Raw(">Withdraw</button>")
		}
		h.Raw("</td></tr>")
	})
}

// CoursesPage renders the programs the student is enrolled in.
func CoursesPage(courses []Enrollment) templ.Component {
	return pages.Layout("My courses", pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<section class="courses"><h1>My courses</h1>`)
		if len(courses) == 0 {
			h.Raw(`<p class="empty">No approved enrollments yet.</p></section>`)
			return
		}
		h.Raw(`<div class="program-grid">`)
		for _, e := range courses {
			h.Raw(`<article class="program-card"><h2><a`).Attr("href", "/programs/"+e.ProgramSlug).Raw(">").Text(e.ProgramName).Raw("</a></h2>")
			h.Raw(`<p class="meta">`).Text(e.Instrument).Raw("</p>")
			if e.DecidedAt != nil {
				h.Raw("<p>Enrolled since ").Text(e.DecidedAt.Format(dateFormat)).Raw("</p>")
			}
			h.Raw("</article>")
		}
		h.Raw("</div></section>")
	}))
}

// AdminEnrollmentsPage renders the review queue with a status filter.
func AdminEnrollmentsPage(list []Enrollment, total int, opts ListOptions) templ.Component {
	return pages.Layout("Enrollment requests", pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<section class="admin"><h1>Enrollment requests</h1><nav class="tabs">`)
		tab := func(status Status, label string) {
			h.Raw("<a").Attr("href", "/admin/enrollments?status="+url.QueryEscape(string(status)))
			if status == opts.Status {
				h.Raw(` aria-current="page"`)
			}
			h.Raw(">").Text(label).Raw("</a>")
		}
		for _, s := range Statuses {
			tab(s, s.DisplayName())
		}
		tab("", "All")
		h.Raw("</nav>")

		if len(list) == 0 {
			h.Raw(`<p class="empty">Nothing here.</p></section>`)
			return
		}
		h.Raw("<table><thead><tr><th>Student</th><th>Program</th><th>Note</th><th>Requested</th><th>Status</th><th></th></tr></thead><tbody>")
		for i := range list {
			h.Component(ctx, AdminRow(&list[i]))
		}
		h.Raw("</tbody></table>")
		h.Raw("<p>").Textf("%d requests", total).Raw("</p>")

		if pagesTotal := (total + opts.PerPage - 1) / opts.PerPage; pagesTotal > 1 {
			h.Raw(`<nav class="pager">`)
			if opts.Page > 1 {
				h.Raw("<a").Attr("href", adminPageURL(opts, opts.Page-1)).Raw(">Previous</a>")
			}
			h.Raw("<span>").Textf("Page %d of %d", opts.Page, pagesTotal).Raw("</span>")
			if opts.Page < pagesTotal {
				h.Raw("<a").Attr("href", adminPageURL(opts, opts.Page+1)).Raw(">Next</a>")
			}
			h.Raw("</nav>")
		}
		h.Raw("</section>")
	}))
}

func adminPageURL(opts ListOptions, page int) string {
	q := url.Values{}
	q.Set("status", string(opts.Status))
	q.Set("page", strconv.Itoa(page))
	return "/admin/enrollments?" + q.Encode()
}

// AdminRow renders one request with its decision buttons, for HTMX swaps.
func AdminRow(e *Enrollment) templ.Component {
	return pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw("<tr").Attr("id", "enrollment-"+e.ID).Raw("><td>").Text(e.StudentName)
		h.Raw(`<br><small>`).Text(e.StudentEmail).Raw("</small></td>")
		h.Raw("<td>").Text(e.ProgramName).Raw("</td><td>").Text(e.Note).Raw("</td>")
		h.Raw("<td>").Text(e.CreatedAt.Format(dateFormat)).Raw("</td><td>")
		statusBadge(h, e.Status)
		h.Raw("</td><td>")
		if e.Status == StatusPending {
			for _, action := range []string{"approve", "reject"} {
				h.Raw(`<form class="inline" hx-swap="outerHTML"`).
					Attr("hx-post", "/admin/enrollments/"+e.ID+"/"+action).
					Attr("hx-target", "#enrollment-"+e.ID).Raw(">")
				pages.CSRFField(ctx, h)
				if action == "approve" {
					h.Raw(`<button type="submit">Approve</button></form>`)
				} else {
					h.Raw(`<button type="submit" class="secondary">Reject</button></form>`)
				}
			}
		}
		h.Raw("</td></tr>")
	})
}

// AdminRowError replaces a row whose decision was refused.
func AdminRowError(id, msg string) templ.Component {
	return pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw("<tr").Attr("id", "enrollment-"+id).Raw(`><td colspan="6">`)
		pages.Alert(h, "error", msg)
		h.Raw("</td></tr>")
	})
}

func statusBadge(h *pages.HTML, s Status) {
	h.Raw("<span").Attr("class", "badge badge-"+string(s)).Raw(">").Text(s.DisplayName()).Raw("</span>")
}
