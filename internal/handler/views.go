// Package handler contains the HTTP handlers of the job board.
//
// Handlers parse the request, call one service method and turn the result
// into a rendered page or a redirect. Business rules live in
// internal/service; handlers only know about HTTP.
package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sakif/jobboard/internal/web"
)

// pages lists every page template. Each one is parsed together with
// base.html, which defines the layout and calls {{template "content" .}}.
var pages = []string{
	"index.html",
	"show.html",
	"create.html",
	"dashboard.html",
	"login.html",
	"register.html",
	"error.html",
}

var funcs = template.FuncMap{
	"since": func(t time.Time) string { return humanize.Time(t) },
	"money": formatMoney,
	// sanitized marks listing content as safe. It is only ever called on
	// HTML that went through the markdown sanitiser before it was stored.
	"sanitized": func(s string) template.HTML { return template.HTML(s) },
}

// Views holds the parsed page templates. Parsing happens once at startup.
type Views struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

func NewViews(logger *slog.Logger) (*Views, error) {
	v := &Views{pages: make(map[string]*template.Template, len(pages)), logger: logger}
	for _, page := range pages {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(web.Templates,
			"templates/base.html",
			"templates/"+page,
		)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}
		v.pages[page] = tmpl
	}
	return v, nil
}

// Page is the layout data every page shares.
type Page struct {
	Title    string
	SignedIn bool
	Flash    string
}

// render executes page into a buffer first so a template error can still
// become a clean 500 instead of a half-written page.
func (v *Views) render(w http.ResponseWriter, status int, page string, data any) {
	tmpl, ok := v.pages[page]
	if !ok {
		v.logger.Error("unknown template", slog.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		v.logger.Error("template execution failed",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// formatMoney renders an amount in minor units, e.g. 5800 "usd" → "58.00 USD".
func formatMoney(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, strings.ToUpper(currency))
}
