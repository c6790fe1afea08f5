package admin

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
	"github.com/keyxmakerx/crescendo/internal/templates/pages"
)

const timeFormat = "Jan 2, 15:04"

func adminNav(h *pages.HTML) {
	h.Raw(`<nav class="tabs"><a href="/admin">Overview</a><a href="/admin/users">Students</a>`)
	h.Raw(`<a href="/admin/programs">Programs</a><a href="/admin/enrollments">Enrollments</a>`)
	h.Raw(`<a href="/admin/sessions">Sessions</a><a href="/admin/security">Security log</a><a href="/admin/activity">Activity</a></nav>`)
}

// DashboardPage renders the admin overview.
func DashboardPage(o *Overview) templ.Component {
	return pages.Layout("Administration", pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<section class="admin"><h1>Administration</h1>`)
		adminNav(h)
		h.Raw(`<div class="stats">`)
		stat := func(label string, n int, href string) {
			h.Raw(`<a class="stat"`).Attr("href", href).Raw(`><span class="stat-value">`).Text(strconv.Itoa(n))
			h.Raw(`</span><span class="stat-label">`).Text(label).Raw("</span></a>")
		}
		stat("Students", o.Students, "/admin/users")
		stat("Published programs", o.PublishedPrograms, "/admin/programs")
		stat("Pending enrollments", o.PendingEnrollments, "/admin/enrollments")
		stat("Active sessions", o.ActiveSessions, "/admin/sessions")
		h.Raw("</div>")
		if s := o.Security; s != nil {
			h.Raw("<h2>Last 24 hours</h2><ul>")
			h.Raw("<li>").Textf("%d sign-ins, %d failed", s.SuccessfulLogins24h, s.FailedLogins24h).Raw("</li>")
			h.Raw("<li>").Textf("%d sessions timed out", s.Timeouts24h).Raw("</li>")
			h.Raw("<li>").Textf("%d distinct addresses", s.UniqueIPs24h).Raw("</li>")
			h.Raw("<li>").Textf("%d disabled accounts", s.DisabledUsers).Raw("</li></ul>")
		}
		h.Raw("</section>")
	}))
}

// UsersPage renders the roster.
func UsersPage(users []auth.User, total, page int, currentUserID string) templ.Component {
	return pages.Layout("Students", pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<section class="admin"><h1>Students and staff</h1>`)
		adminNav(h)
		h.Raw("<table><thead><tr><th>Name</th><th>Email</th><th>Joined</th><th>Last sign-in</th><th>Role</th><th></th></tr></thead><tbody>")
		for i := range users {
			h.Component(ctx, UserRow(&users[i], currentUserID))
		}
		h.Raw("</tbody></table>")
		pagesTotal := (total + rosterPerPage - 1) / rosterPerPage
		if pagesTotal > 1 {
			h.Raw(`<nav class="pager">`)
			if page > 1 {
				h.Raw("<a").Attr("href", "/admin/users?page="+strconv.Itoa(page-1)).Raw(">Previous</a>")
			}
			h.Raw("<span>").Textf("Page %d of %d", page, pagesTotal).Raw("</span>")
			if page < pagesTotal {
				h.Raw("<a").Attr("href", "/admin/users?page="+strconv.Itoa(page+1)).Raw(">Next</a>")
			}
			h.Raw("</nav>")
		}
		h.Raw("</section>")
	}))
}

// UserRow renders one account with its actions, for HTMX swaps.
func UserRow(u *auth.User, currentUserID string) templ.Component {
	return pages.View(func(ctx context.Context, h *pages.HTML) {
		rowID := "user-" + u.ID
		h.Raw("<tr").Attr("id", rowID).Raw("><td>").Text(u.DisplayName).Raw("</td><td>").Text(u.Email).Raw("</td>")
		h.Raw("<td>").Text(u.CreatedAt.Format("Jan 2, 2006")).Raw("</td><td>")
		if u.LastLoginAt != nil {
			h.Text(u.LastLoginAt.Format(timeFormat))
		} else {
			h.Raw("Never")
		}
		h.Raw("</td><td>")
		switch {
		case u.IsDisabled:
			h.Raw(`<span class="badge badge-rejected">Disabled</span>`)
		case u.IsAdmin:
			h.Raw(`<span class="badge badge-approved">Admin</span>`)
		default:
			h.Raw(`<span class="badge">Student</span>`)
		}
		h.Raw("</td><td>")
		if u.ID != currentUserID {
			button := func(method, path, label, confirm string) {
				h.Raw(`<button type="button" hx-swap="outerHTML"`).
					Attr("hx-"+method, "/admin/users/"+u.ID+path).
					Attr("hx-target", "#"+rowID)
				if confirm != "" {
					h.Attr("hx-confirm", confirm)
				}
				h.Raw(">").Text(label).Raw("</button> ")
			}
			if u.IsAdmin {
				button("put", "/admin", "Remove admin", "Remove administrator rights?")
			} else {
				button("put", "/admin", "Make admin", "Grant administrator rights?")
			}
			if u.IsDisabled {
				button("put", "/enable", "Enable", "")
			} else if !u.IsAdmin {
				button("put", "/disable", "Disable", "Disable this account and sign it out everywhere?")
			}
			h.Raw(`<button type="button" hx-confirm="Sign this user out everywhere?"`).
				Attr("hx-post", "/admin/users/"+u.ID+"/logout").Raw(">Sign out</button>")
		}
		h.Raw("</td></tr>")
	})
}

// SessionsPage renders the live sessions.
func SessionsPage(sessions []ActiveSession) templ.Component {
	return pages.Layout("Active sessions", pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<section class="admin"><h1>Active sessions</h1>`)
		adminNav(h)
		if len(sessions) == 0 {
			h.Raw(`<p class="empty">Nobody is signed in.</p></section>`)
			return
		}
		h.Raw("<table><thead><tr><th>User</th><th>Device</th><th>Browser</th><th>Address</th><th>Signed in</th><th>Mode</th><th>Expires in</th><th></th></tr></thead><tbody>")
		for _, s := range sessions {
			h.Raw("<tr><td>").Text(s.Session.Name).Raw("<br><small>").Text(s.Session.Email).Raw("</small></td>")
			h.Raw("<td>").Text(s.Device).Raw("</td><td>").Text(s.Browser).Raw("</td>")
			h.Raw("<td>").Text(s.Session.IP).Raw("</td><td>").Text(s.Session.CreatedAt.Format(timeFormat)).Raw("</td><td>")
			if s.Session.Remember {
				h.Raw("Remembered")
			} else {
				h.Raw("Standard")
			}
			h.Raw("</td><td>").Text(formatRemaining(s.ExpiresIn)).Raw("</td><td>")
			h.Raw(`<button type="button" hx-confirm="Sign this user out everywhere?"`).
				Attr("hx-post", "/admin/users/"+s.Session.UserID+"/logout").Raw(">Sign out</button>")
			h.Raw("</td></tr>")
		}
		h.Raw("</tbody></table></section>")
	}))
}

// SecurityPage renders one page of the security log.
func SecurityPage(events []SecurityEvent, total, page int, eventType string) templ.Component {
	return pages.Layout("Security log", pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<section class="admin"><h1>Security log</h1>`)
		adminNav(h)
		h.Raw(`<form class="filters" method="get" action="/admin/security"><label>Event<select name="type" onchange="this.form.submit()"><option value="">All events</option>`)
		for _, t := range EventTypes {
			h.Raw("<option").Attr("value", t)
			if t == eventType {
				h.Raw(" selected")
			}
			h.Raw(">").Text(EventTypeLabel(t)).Raw("</option>")
		}
		h.Raw(`</select></label><noscript><button type="submit">Filter</button></noscript></form>`)

		if len(events) == 0 {
			h.Raw(`<p class="empty">No events recorded.</p></section>`)
			return
		}
		h.Raw("<table><thead><tr><th>When</th><th>Event</th><th>User</th><th>By</th><th>Address</th><th>Details</th></tr></thead><tbody>")
		for _, e := range events {
			h.Raw("<tr><td>").Text(e.CreatedAt.Format(timeFormat)).Raw("</td><td>")
			h.Raw("<span").Attr("class", "badge badge-"+EventTypeTone(e.EventType)).Raw(">").Text(EventTypeLabel(e.EventType)).Raw("</span></td>")
			h.Raw("<td>").Text(e.UserName).Raw("</td><td>")
			if e.ActorID != "" && e.ActorID != e.UserID {
				h.Text(e.ActorName)
			}
			h.Raw("</td><td>").Text(e.IPAddress).Raw("</td><td>").Text(formatDetails(e.Details)).Raw("</td></tr>")
		}
		h.Raw("</tbody></table>")

		pagesTotal := (total + securityPerPage - 1) / securityPerPage
		if pagesTotal > 1 {
			link := func(p int, label string) {
				q := url.Values{}
				q.Set("page", strconv.Itoa(p))
				if eventType != "" {
					q.Set("type", eventType)
				}
				h.Raw("<a").Attr("href", "/admin/security?"+q.Encode()).Raw(">").Text(label).Raw("</a>")
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

// formatRemaining renders a TTL as "2h 05m" or "14m".
func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "expiring"
	}
	d = d.Round(time.Minute)
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh %02dm", int(d.Hours()), int(d.Minutes())%60)
}

// formatDetails renders event details as "key=value" pairs in key order.
func formatDetails(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%v", k, details[k])
	}
	return out
}
