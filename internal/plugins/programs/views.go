package programs

import (
	"context"
	"net/url"
	"strconv"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/crescendo/internal/templates/layouts"
	"github.com/keyxmakerx/crescendo/internal/templates/pages"
)

// CatalogPage renders the full public catalog page.
func CatalogPage(programs []Program, total int, opts ListOptions) templ.Component {
	return pages.Layout("Programs", pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<section class="catalog"><h1>Programs</h1>`)
		h.Raw(`<form class="filters" method="get" action="/programs" hx-get="/programs" hx-target="#catalog-list" hx-push-url="true" hx-trigger="change">`)
		h.Raw(`<label>Instrument<input type="text" name="instrument"`).Attr("value", opts.Instrument).Raw("></label>")
		h.Raw(`<label>Level<select name="level"><option value="">Any level</option>`)
		for _, l := range Levels {
			h.Raw("<option").Attr("value", string(l))
			if l == opts.Level {
				h.Raw(" selected")
			}
			h.Raw(">").Text(l.DisplayName()).Raw("</option>")
		}
		h.Raw(`</select></label><button type="submit">Filter</button></form>`)
		h.Raw(`<div id="catalog-list">`)
		h.Component(ctx, CatalogList(programs, total, opts))
		h.Raw(`</div></section>`)
	}))
}

// CatalogList renders the program cards and pager, for HTMX swaps.
func CatalogList(programs []Program, total int, opts ListOptions) templ.Component {
	return pages.View(func(ctx context.Context, h *pages.HTML) {
		if len(programs) == 0 {
			h.Raw(`<p class="empty">No programs match your filters yet.</p>`)
			return
		}
		h.Raw(`<div class="program-grid">`)
		for i := range programs {
			p := &programs[i]
			h.Raw(`<article class="program-card"><h2><a`).Attr("href", "/programs/"+p.Slug).Raw(">").Text(p.Name).Raw("</a></h2>")
			h.Raw(`<p class="meta">`).Text(p.Instrument).Raw(" · ").Text(p.Level.DisplayName()).Raw("</p>")
			h.Raw("<p>").Text(p.Summary).Raw("</p>")
			h.Raw(`<p class="price">`).Text(p.PriceLabel()).Raw(" · ").Textf("%d weeks", p.DurationWeeks).Raw("</p></article>")
		}
		h.Raw("</div>")
		pager(h, total, opts)
	})
}

func pager(h *pages.HTML, total int, opts ListOptions) {
	pagesTotal := (total + opts.PerPage - 1) / opts.PerPage
	if pagesTotal <= 1 {
		return
	}
	link := func(page int, label string) {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		if opts.Instrument != "" {
			q.Set("instrument", opts.Instrument)
		}
		if opts.Level != "" {
			q.Set("level", string(opts.Level))
		}
		h.Raw("<a").Attr("href", "/programs?"+q.Encode()).Raw(">").Text(label).Raw("</a>")
	}
	h.Raw(`<nav class="pager">`)
	if opts.Page > 1 {
		link(opts.Page-1, "Previous")
	}
	h.Raw("<span>").Textf("Page %d of %d", opts.Page, pagesTotal).Raw("</span>")
	if opts.Page < pagesTotal {
		link(opts.Page+1, "Next")
	}
	h.Raw("</nav>")
}

// ProgramPage renders one program with an enrollment request button for
// signed-in students.
func ProgramPage(p *Program) templ.Component {
	return pages.Layout(p.Name, pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<article class="program"><h1>`).Text(p.Name).Raw("</h1>")
		h.Raw(`<p class="meta">`).Text(p.Instrument).Raw(" · ").Text(p.Level.DisplayName())
		h.Raw(" · ").Textf("%d weeks", p.DurationWeeks).Raw(" · ").Text(p.PriceLabel()).Raw("</p>")
		h.Raw(`<p class="summary">`).Text(p.Summary).Raw("</p>")
		if p.Description != nil {
			// Sanitized on write.
			h.Raw(`<div class="description">`).Raw(*p.Description).Raw("</div>")
		}
		if layouts.IsAuthenticated(ctx) {
			h.Raw(`<form method="post" action="/enrollments">`)
			pages.CSRFField(ctx, h)
			h.Raw(`<input type="hidden" name="program_id"`).Attr("value", p.ID).Raw(">")
			h.Raw(`<label>Note for the faculty (optional)<input type="text" name="note" maxlength="500"></label>`)
			h.Raw(`<button type="submit">Request enrollment</button></form>`)
		} else {
			h.Raw(`<p><a href="/login">Sign in</a> or <a href="/register">create an account</a> to enroll.</p>`)
		}
		h.Raw("</article>")
	}))
}

// AdminProgramsPage renders the program list with the new program form.
func AdminProgramsPage(programs []Program, total int, opts ListOptions, req *ProgramRequest, errMsg string) templ.Component {
	return pages.Layout("Manage programs", pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<section class="admin"><h1>Programs</h1>`)
		h.Raw("<table><thead><tr><th>Name</th><th>Instrument</th><th>Level</th><th>Capacity</th><th>Status</th><th></th></tr></thead><tbody>")
		for _, p := range programs {
			h.Raw("<tr><td>").Text(p.Name).Raw("</td><td>").Text(p.Instrument).Raw("</td><td>").Text(p.Level.DisplayName()).Raw("</td><td>")
			if p.Capacity == 0 {
				h.Raw("Unlimited")
			} else {
				h.Text(strconv.Itoa(p.Capacity))
			}
			h.Raw("</td><td>")
			if p.IsPublished {
				h.Raw(`<span class="badge badge-approved">Published</span>`)
			} else {
				h.Raw(`<span class="badge">Draft</span>`)
			}
			h.Raw("</td><td><a").Attr("href", "/admin/programs/"+p.ID+"/edit").Raw(">Edit</a> ")
			h.Raw(`<button type="button" hx-confirm="Delete this program?"`).Attr("hx-delete", "/admin/programs/"+p.ID).Raw(">Delete</button>")
			h.Raw("</td></tr>")
		}
		h.Raw("</tbody></table>")
		h.Raw("<p>").Textf("%d programs", total).Raw("</p>")
		h.Raw("<h2>New program</h2>")
		h.Component(ctx, ProgramForm(nil, req, errMsg))
		h.Raw("</section>")
	}))
}

// EditProgramPage renders the editor for an existing program.
func EditProgramPage(p *Program, req *ProgramRequest, errMsg string) templ.Component {
	return pages.Layout("Edit "+p.Name, pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<section class="admin"><h1>Edit program</h1>`)
		h.Component(ctx, ProgramForm(p, req, errMsg))
		h.Raw("</section>")
	}))
}

// ProgramForm renders the create form, or the edit form when p is set.
func ProgramForm(p *Program, req *ProgramRequest, errMsg string) templ.Component {
	return pages.View(func(ctx context.Context, h *pages.HTML) {
		if p == nil {
			h.Raw(`<form id="program-form" method="post" action="/admin/programs" hx-post="/admin/programs" hx-target="this" hx-swap="outerHTML">`)
		} else {
			h.Raw(`<form id="program-form" hx-target="this" hx-swap="outerHTML"`).Attr("hx-put", "/admin/programs/"+p.ID).Raw(">")
		}
		pages.CSRFField(ctx, h)
		pages.Alert(h, "error", errMsg)
		h.Raw(`<label>Name<input type="text" name="name" required maxlength="120"`).Attr("value", req.Name).Raw("></label>")
		h.Raw(`<label>Instrument<input type="text" name="instrument" required maxlength="64"`).Attr("value", req.Instrument).Raw("></label>")
		h.Raw(`<label>Level<select name="level">`)
		for _, l := range Levels {
			h.Raw("<option").Attr("value", string(l))
			if string(l) == req.Level {
				h.Raw(" selected")
			}
			h.Raw(">").Text(l.DisplayName()).Raw("</option>")
		}
		h.Raw("</select></label>")
		h.Raw(`<label>Summary<input type="text" name="summary" maxlength="500"`).Attr("value", req.Summary).Raw("></label>")
		h.Raw(`<label>Description<textarea name="description" rows="8">`).Text(req.Description).Raw("</textarea></label>")
		h.Raw(`<label>Duration (weeks)<input type="number" name="duration_weeks" min="1" max="104"`).Attr("value", strconv.Itoa(req.DurationWeeks)).Raw("></label>")
		h.Raw(`<label>Price (cents)<input type="number" name="price_cents" min="0"`).Attr("value", strconv.Itoa(req.PriceCents)).Raw("></label>")
		h.Raw(`<label>Capacity (0 = unlimited)<input type="number" name="capacity" min="0"`).Attr("value", strconv.Itoa(req.Capacity)).Raw("></label>")
		h.Raw(`<label class="checkbox"><input type="checkbox" name="is_published" value="true"`)
		if req.IsPublished {
			h.Raw(" checked")
		}
		h.Raw("> Published</label>")
		h.Raw(`<button type="submit">Save program</button></form>`)
	})
}
