package dashboard

import (
	"context"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/crescendo/internal/templates/layouts"
	"github.com/keyxmakerx/crescendo/internal/templates/pages"
)

// Page renders the student dashboard.
func Page(s *Summary) templ.Component {
	return pages.Layout("Dashboard", pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<section class="dashboard"><h1>Welcome back, `).Text(s.DisplayName).Raw("</h1>")
		if layouts.GetSessionMode(ctx) == "extended" {
			h.Raw(`<p class="meta">You chose to stay signed in on this device.</p>`)
		}

		h.Raw(`<div class="stats">`)
		stat := func(label string, n int, href string) {
			h.Raw(`<a class="stat"`).Attr("href", href).Raw(`><span class="stat-value">`).Textf("%d", n)
			h.Raw(`</span><span class="stat-label">`).Text(label).Raw("</span></a>")
		}
		stat("Enrolled", s.Counts.Approved, "/courses")
		stat("Pending review", s.Counts.Pending, "/enrollments")
		stat("Closed", s.Counts.Rejected+s.Counts.Withdrawn, "/enrollments")
		h.Raw("</div>")

		h.Raw("<h2>Your courses</h2>")
		if len(s.Courses) == 0 {
			h.Raw(`<p class="empty">No courses yet. <a href="/programs">Find a program</a>.</p>`)
		} else {
			h.Raw(`<ul class="course-list">`)
			for _, e := range s.Courses {
				h.Raw("<li><a").Attr("href", "/programs/"+e.ProgramSlug).Raw(">").Text(e.ProgramName).Raw("</a> ")
				h.Raw(`<span class="meta">`).Text(e.Instrument).Raw("</span></li>")
			}
			h.Raw("</ul>")
			if s.MoreCourses > 0 {
				h.Raw(`<p><a href="/courses">`).Textf("and %d more", s.MoreCourses).Raw("</a></p>")
			}
		}

		if s.ProfileCompleteness < 100 {
			h.Raw(`<div class="alert alert-info">Your profile is `).Textf("%d%%", s.ProfileCompleteness)
			h.Raw(` complete. <a href="/profile">Tell your teachers about yourself</a>.</div>`)
		}
		h.Raw("</section>")
	}))
}
