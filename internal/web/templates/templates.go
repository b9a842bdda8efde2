// Package templates renders the HTML pages of the import UI as templ
// components.
package templates

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/ecsv/internal/core"
)

// htmlWriter collects the first write error so components can emit markup
// without checking every call.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *htmlWriter) printf(format string, args ...any) {
	h.raw(fmt.Sprintf(format, args...))
}

func (h *htmlWriter) render(ctx context.Context, c templ.Component) {
	if h.err == nil {
		h.err = c.Render(ctx, h.w)
	}
}

const styles = `body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2933}
table{border-collapse:collapse;width:100%;margin:1rem 0}
th,td{border-bottom:1px solid #d9e2ec;padding:.4rem .6rem;text-align:left;font-size:.9rem}
th{background:#f0f4f8}
.status-active{color:#0b6e4f}.status-failed{color:#b42318}.status-rolled_back{color:#7b8794}
.alert{border:1px solid #f5c2c7;background:#f8d7da;padding:.8rem;border-radius:4px}
.muted{color:#7b8794}
code{background:#f0f4f8;padding:0 .2rem}`

// Layout wraps body in the page chrome.
func Layout(title string, body templ.Component) templ.Component {
	return layout(title, 0, body)
}

// layout reloads the page every refresh seconds when refresh > 0.
func layout(title string, refresh int, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		if refresh > 0 {
			h.printf(`<meta http-equiv="refresh" content="%d">`, refresh)
		}
		h.raw(`<title>`)
		h.text(title)
		h.raw(`</title><style>` + styles + `</style></head><body>`)
		h.raw(`<header><a href="/"><strong>ECSV Import</strong></a></header><main>`)
		h.render(ctx, body)
		h.raw(`</main></body></html>`)
		return h.err
	})
}

// DashboardParams feeds the dashboard page.
type DashboardParams struct {
	Imports []core.ImportRecord
	Limiter core.LimiterStatus

	// HistoryError is shown instead of the table when history is unavailable.
	HistoryError string
}

// Dashboard lists recent imports and current import slot usage.
func Dashboard(p DashboardParams) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<h1>Imports</h1>`)
		h.printf(`<p class="muted">%d of %d import slots in use.</p>`, p.Limiter.Active, p.Limiter.MaxConcurrent)
		h.raw(`<form method="post" action="/api/import" enctype="multipart/form-data">`)
		h.raw(`<input type="file" name="file" accept=".ecsv,.csv,text/csv" required> `)
		h.raw(`<input type="text" name="table" placeholder="table (optional)" pattern="[a-z_][a-z0-9_]*"> `)
		h.raw(`<button type="submit">Import</button></form>`)

		switch {
		case p.HistoryError != "":
			h.render(ctx, ErrorAlert(p.HistoryError, "", ""))
		case len(p.Imports) == 0:
			h.raw(`<p class="muted">No imports yet.</p>`)
		default:
			h.raw(`<table><thead><tr><th>File</th><th>Table</th><th>Rows</th><th>Skipped</th><th>Status</th><th>Imported</th></tr></thead><tbody>`)
			for _, rec := range p.Imports {
				h.raw(`<tr><td><a href="/imports/`)
				h.text(rec.ID)
				h.raw(`">`)
				h.text(rec.FileName)
				h.raw(`</a></td><td><code>`)
				h.text(rec.Table)
				h.raw(`</code></td>`)
				h.printf(`<td>%d</td><td>%d</td>`, rec.RowsInserted, rec.RowsSkipped)
				h.raw(statusCell(rec.Status))
				h.raw(`<td>`)
				h.text(rec.ImportedAt.Format(time.DateTime))
				h.raw(`</td></tr>`)
			}
			h.raw(`</tbody></table>`)
		}
		return h.err
	})
	return Layout("Imports", body)
}

// ImportDetail shows one import with its header columns and failed rows.
func ImportDetail(rec *core.ImportRecord) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<h1>`)
		h.text(rec.FileName)
		h.raw(`</h1><dl>`)
		h.raw(`<dt>Import ID</dt><dd><code>`)
		h.text(rec.ID)
		h.raw(`</code></dd><dt>Table</dt><dd><code>`)
		h.text(rec.Table)
		h.raw(`</code></dd><dt>Status</dt><dd>`)
		h.raw(statusSpan(rec.Status))
		h.raw(`</dd>`)
		h.printf(`<dt>Rows</dt><dd>%d inserted, %d skipped in %s</dd>`,
			rec.RowsInserted, rec.RowsSkipped, time.Duration(rec.DurationMs)*time.Millisecond)
		if rec.Error != "" {
			h.raw(`<dt>Error</dt><dd>`)
			h.text(rec.Error)
			h.raw(`</dd>`)
		}
		if rec.RolledBackAt != nil {
			h.raw(`<dt>Rolled back</dt><dd>`)
			h.text(rec.RolledBackAt.Format(time.DateTime))
			h.raw(`</dd>`)
		}
		h.raw(`</dl>`)

		if rec.Header != nil {
			h.raw(`<h2>Columns</h2><table><thead><tr><th>Name</th><th>Datatype</th><th>Stored as</th><th>Unit</th><th>Description</th></tr></thead><tbody>`)
			for _, c := range rec.Header.Datatype {
				h.raw(`<tr><td>`)
				h.text(c.Name)
				h.raw(`</td><td>`)
				h.text(string(c.Datatype))
				h.raw(`</td><td>`)
				h.text(core.ColumnType(c.Datatype))
				h.raw(`</td><td>`)
				h.text(c.Unit)
				h.raw(`</td><td>`)
				h.text(c.Description)
				h.raw(`</td></tr>`)
			}
			h.raw(`</tbody></table>`)
		}

		if len(rec.FailedRows) > 0 {
			h.raw(`<h2>Failed rows</h2><table><thead><tr><th>Row</th><th>Reason</th><th>Data</th></tr></thead><tbody>`)
			for _, fr := range rec.FailedRows {
				h.raw(`<tr><td>` + strconv.Itoa(fr.Row) + `</td><td>`)
				h.text(fr.Reason)
				h.raw(`</td><td><code>`)
				h.text(strings.Join(fr.Data, " | "))
				h.raw(`</code></td></tr>`)
			}
			h.raw(`</tbody></table>`)
		}

		if rec.Status == core.StatusActive {
			h.raw(`<form method="post" action="/api/import/`)
			h.text(rec.ID)
			h.raw(`/rollback"><button type="submit">Roll back</button></form>`)
		}
		return h.err
	})
	return Layout(rec.FileName, body)
}

// ImportRunning shows the progress of an import that has no history record
// yet. The page reloads itself until the import finishes.
func ImportRunning(p core.ImportProgress) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<h1>`)
		h.text(p.FileName)
		h.raw(`</h1><p>Importing into <code>`)
		h.text(p.Table)
		h.raw(`</code>: `)
		h.text(string(p.Phase))
		h.raw(`</p>`)
		h.printf(`<progress max="100" value="%d"></progress> %d%%`, p.Percent(), p.Percent())
		h.printf(`<p class="muted">%d rows read, %d inserted, %d skipped.</p>`, p.CurrentRow, p.Inserted, p.Skipped)
		if p.Error != "" {
			h.render(ctx, ErrorAlert(p.Error, "", ""))
		}
		if !p.Phase.Terminal() {
			h.raw(`<form method="post" action="/api/import/`)
			h.text(p.ImportID)
			h.raw(`/cancel"><button type="submit">Cancel</button></form>`)
		}
		return h.err
	})
	refresh := 2
	if p.Phase.Terminal() {
		refresh = 0
	}
	return layout(p.FileName, refresh, body)
}

// ErrorAlert renders an error box. action and code may be empty.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<div class="alert" role="alert"><strong>`)
		h.text(message)
		h.raw(`</strong>`)
		if action != "" {
			h.raw(`<p>`)
			h.text(action)
			h.raw(`</p>`)
		}
		if code != "" {
			h.raw(`<p class="muted">Code: `)
			h.text(code)
			h.raw(`</p>`)
		}
		h.raw(`</div>`)
		return h.err
	})
}

// ErrorPage is ErrorAlert inside the layout.
func ErrorPage(message, action, code string) templ.Component {
	return Layout("Error", ErrorAlert(message, action, code))
}

func statusSpan(s core.ImportStatus) string {
	label := strings.ReplaceAll(string(s), "_", " ")
	return `<span class="status-` + templ.EscapeString(string(s)) + `">` + templ.EscapeString(label) + `</span>`
}

func statusCell(s core.ImportStatus) string {
	return `<td>` + statusSpan(s) + `</td>`
}
