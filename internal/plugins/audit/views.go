package audit

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/crescendo/internal/templates/pages"
)

const timeFormat = "Jan 2, 15:04"

var subjectLabels = map[string]string{
	SubjectProgram:    "Programs",
	SubjectEnrollment: "Enrollments",
}

// ActivityPage renders the feed.
func ActivityPage(stats *Stats, entries []AuditEntry, total, page int, subject string) templ.Component {
	return pages.Layout("Activity", pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<section class="admin"><h1>Activity</h1><p><a href="/admin">Back to administration</a></p>`)

		if stats != nil {
			h.Raw(`<p class="summary">`).Textf("%d changes recorded, %d people active in the last 30 days.", stats.TotalEntries, stats.ActiveActors)
			if stats.LastActivityAt != nil {
				h.Raw(" Last change ").Text(stats.LastActivityAt.Format(timeFormat)).Raw(".")
			}
			h.Raw("</p>")
		}

		h.Raw(`<nav class="tabs">`)
		tab := func(value, label string) {
			href := "/admin/activity"
			if value != "" {
				href += "?subject=" + url.QueryEscape(value)
			}
			h.Raw("<a").Attr("href", href)
			if value == subject {
				h.Raw(` aria-current="page"`)
			}
			h.Raw(">").Text(label).Raw("</a>")
		}
		tab("", "Everything")
		for _, s := range SubjectTypes {
			tab(s, subjectLabels[s])
		}
		h.Raw("</nav>")

		if len(entries) == 0 {
			h.Raw(`<p class="empty">Nothing has changed yet.</p></section>`)
			return
		}

		h.Raw("<table><thead><tr><th>When</th><th>Change</th><th>Subject</th><th>By</th><th>Details</th></tr></thead><tbody>")
		for _, e := range entries {
			h.Raw("<tr><td>").Text(e.CreatedAt.Format(timeFormat)).Raw("</td>")
			h.Raw("<td>").Text(ActionLabel(e.Action)).Raw("</td><td>")
			if e.SubjectName != "" {
				h.Text(e.SubjectName)
			} else {
				h.Raw("<code>").Text(e.SubjectID).Raw("</code>")
			}
			h.Raw("</td><td>").Text(e.ActorName).Raw("</td><td>").Text(formatDetails(e.Details)).Raw("</td></tr>")
		}
		h.Raw("</tbody></table>")

		if pagesTotal := (total + perPage - 1) / perPage; pagesTotal > 1 {
			link := func(p int, label string) {
				q := url.Values{}
				q.Set("page", strconv.Itoa(p))
				if subject != "" {
					q.Set("subject", subject)
				}
				h.Raw("<a").Attr("href", "/admin/activity?"+q.Encode()).Raw(">").Text(label).Raw("</a>")
			}
			h.Raw(`<nav class="pager">`)
			if page > 1 {
				link(page-1, "Newer")
			}
			h.Raw("<span>").Textf("Page %d of %d", page, pagesTotal).Raw("</span>")
			if page < pagesTotal {
				link(page+1, "Older")
			}
			h.Raw("</nav>")
		}
		h.Raw("</section>")
	}))
}

// formatDetails renders details as "key: value" pairs in key order.
func formatDetails(details map[string]any) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", strings.ReplaceAll(k, "_", " "), details[k]))
	}
	return strings.Join(parts, ", ")
}
