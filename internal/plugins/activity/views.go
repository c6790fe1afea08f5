package activity

import (
	"context"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/crescendo/internal/inactivity"
	"github.com/keyxmakerx/crescendo/internal/templates/pages"
)

// WarningFragment renders the inactivity warning swapped into the
// #session-warning slot of every signed-in page. session.js keeps the
// countdown text current from the /session/countdown stream.
func WarningFragment(st inactivity.Status) templ.Component {
	return pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<div class="session-warning" role="alertdialog" aria-live="assertive" aria-labelledby="session-warning-title"`)
		h.Attr("data-countdown-src", "/session/countdown").Raw(">")
		h.Raw(`<h2 id="session-warning-title">Are you still there?</h2>`)
		h.Raw(`<p>For your security you will be logged out in <strong class="session-countdown">`)
		h.Text(inactivity.FormatRemaining(st.Remaining))
		h.Raw(`</strong>.</p>`)
		h.Raw(`<div class="actions">`)
		h.Raw(`<button type="button" class="primary" hx-post="/session/extend" hx-target="#session-warning" hx-swap="innerHTML">Stay Logged In</button>`)
		h.Raw(`<form method="post" action="/logout">`)
		pages.CSRFField(ctx, h)
		h.Raw(`<button type="submit">Log out now</button></form>`)
		h.Raw(`</div></div>`)
	})
}
