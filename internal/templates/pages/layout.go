package pages

import (
	"context"
	"net/http"
	"strconv"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/crescendo/internal/templates/layouts"
)

// Layout wraps body in the full page chrome. Signed-in pages also carry the
// session warning slot, which polls /session/warning, and the activity
// script that reports user activity to /session/activity.
func Layout(title string, body templ.Component) templ.Component {
	return View(func(ctx context.Context, h *HTML) {
		h.Raw("<!DOCTYPE html>\n<html lang=\"en\"><head><meta charset=\"utf-8\">")
		h.Raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		h.Raw(`<meta name="csrf-token"`).Attr("content", layouts.GetCSRFToken(ctx)).Raw(">")
		h.Raw("<title>").Text(title).Raw(" · Crescendo</title>")
		h.Raw(`<link rel="stylesheet" href="/static/css/app.css">`)
		h.Raw(`<script src="/static/js/htmx.min.js" defer></script>`)
		if layouts.IsAuthenticated(ctx) {
			h.Raw(`<script src="/static/js/session.js" defer></script>`)
		}
		h.Raw("</head><body>")

		nav(ctx, h)

		if layouts.IsAuthenticated(ctx) {
			h.Raw(`<div id="session-warning" hx-get="/session/warning" hx-trigger="load, every 15s, session-check from:body" hx-swap="innerHTML"></div>`)
		}

		h.Raw(`<main class="container">`)
		Alert(h, "success", layouts.GetFlashSuccess(ctx))
		Alert(h, "error", layouts.GetFlashError(ctx))
		h.Component(ctx, body)
		h.Raw("</main></body></html>")
	})
}

func nav(ctx context.Context, h *HTML) {
	active := layouts.GetActivePath(ctx)
	h.Raw(`<nav class="topnav"><a class="brand" href="/">Crescendo</a><ul>`)
	for _, l := range layouts.NavLinks(ctx) {
		h.Raw("<li><a").Attr("href", l.URL)
		if l.URL == active {
			h.Raw(` aria-current="page"`)
		}
		h.Raw(">").Text(l.Label).Raw("</a></li>")
	}
	h.Raw("</ul>")
	if layouts.IsAuthenticated(ctx) {
		h.Raw(`<form method="post" action="/logout" class="logout">`)
		CSRFField(ctx, h)
		h.Raw(`<span class="who">`).Text(layouts.GetUserName(ctx)).Raw("</span>")
		h.Raw(`<button type="submit">Log out</button></form>`)
	}
	h.Raw("</nav>")
}

// ErrorPage renders a full page for an HTTP error.
func ErrorPage(code int, message string) templ.Component {
	title := http.StatusText(code)
	if title == "" {
		title = "Error"
	}
	return Layout(title, View(func(ctx context.Context, h *HTML) {
		h.Raw(`<section class="error-page"><h1>`).Text(strconv.Itoa(code)).Raw("</h1>")
		h.Raw("<p>").Text(message).Raw("</p>")
		h.Raw(`<p><a href="/">Back to the start page</a></p></section>`)
	}))
}

// Landing renders the public start page.
func Landing() templ.Component {
	return Layout("Welcome", View(func(ctx context.Context, h *HTML) {
		h.Raw(`<section class="hero"><h1>Learn music online with Crescendo</h1>`)
		h.Raw("<p>Private and group programs for every instrument and level, taught live by our faculty.</p>")
		h.Raw(`<p><a class="button" href="/programs">Browse programs</a>`)
		if !layouts.IsAuthenticated(ctx) {
			h.Raw(` <a class="button secondary" href="/register">Create an account</a>`)
		} else {
			h.Raw(` <a class="button secondary" href="/dashboard">Go to your dashboard</a>`)
		}
		h.Raw("</p></section>")
	}))
}
