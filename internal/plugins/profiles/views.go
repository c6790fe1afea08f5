package profiles

import (
	"context"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/crescendo/internal/templates/pages"
)

// commonTimezones seeds the timezone suggestions. Any IANA name is accepted.
var commonTimezones = []string{
	"UTC", "Europe/London", "Europe/Berlin", "Europe/Vienna", "America/New_York",
	"America/Chicago", "America/Los_Angeles", "America/Sao_Paulo", "Asia/Tokyo",
	"Asia/Seoul", "Australia/Sydney",
}

// ProfilePage renders the profile editor.
func ProfilePage(p *Profile, req *ProfileRequest, errMsg, okMsg string) templ.Component {
	return pages.Layout("Profile", pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<section class="profile"><h1>Your profile</h1>`)
		h.Raw(`<p class="meta">`).Text(p.Email).Raw(" · ").Textf("%d%% complete", p.Completeness()).Raw("</p>")
		h.Component(ctx, ProfileForm(req, errMsg, okMsg))
		h.Raw(`<p><a href="/settings">Change your password</a></p></section>`)
	}))
}

// ProfileForm renders the form, swapped in place after a save.
func ProfileForm(req *ProfileRequest, errMsg, okMsg string) templ.Component {
	return pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<form id="profile-form" method="post" action="/profile" hx-put="/profile" hx-target="this" hx-swap="outerHTML">`)
		pages.CSRFField(ctx, h)
		pages.Alert(h, "error", errMsg)
		pages.Alert(h, "success", okMsg)
		h.Raw(`<label>Display name<input type="text" name="display_name" required maxlength="100"`).Attr("value", req.DisplayName).Raw("></label>")
		h.Raw(`<label>Phone<input type="tel" name="phone" maxlength="32"`).Attr("value", req.Phone).Raw("></label>")
		h.Raw(`<label>Main instrument<input type="text" name="instrument" maxlength="64"`).Attr("value", req.Instrument).Raw("></label>")
		h.Raw(`<label>Skill level<select name="skill_level">`)
		for _, l := range SkillLevels {
			h.Raw("<option").Attr("value", string(l))
			if string(l) == req.SkillLevel {
				h.Raw(" selected")
			}
			h.Raw(">").Text(l.DisplayName()).Raw("</option>")
		}
		h.Raw("</select></label>")
		h.Raw(`<label>About you<textarea name="bio" rows="5" maxlength="2000">`).Text(req.Bio).Raw("</textarea></label>")
		h.Raw(`<label>Timezone<input type="text" name="timezone" list="timezones"`).Attr("value", req.Timezone).Raw("></label>")
		h.Raw(`<datalist id="timezones">`)
		for _, tz := range commonTimezones {
			h.Raw("<option").Attr("value", tz).Raw(">")
		}
		h.Raw(`</datalist><button type="submit">Save profile</button></form>`)
	})
}
