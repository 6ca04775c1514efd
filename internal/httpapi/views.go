package httpapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"

	"github.com/a-h/templ"
	"github.com/skip2/go-qrcode"
	"golang.org/x/text/message"

	"github.com/BrandonDHaskell/turnstile/internal/i18n"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

const qrSize = 256

// page is what the shared layout needs from the current request.
type page struct {
	Lang  string
	Path  string
	Query url.Values
}

// langHref links to the same page in tag, keeping every other query
// parameter.
func (pg page) langHref(tag string) string {
	q := url.Values{}
	for k, v := range pg.Query {
		q[k] = append([]string(nil), v...)
	}
	q.Set(i18n.LangParam, tag)
	return pg.Path + "?" + q.Encode()
}

type registerView struct {
	page
	StudentID string
	Name      string
	Error     string
}

type successView struct {
	page
	Identity types.Identity
	QR       string // data URI, empty when encoding failed
}

// qrDataURI renders content as a PNG QR code wrapped in a data URI.
func qrDataURI(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, qrSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func layout(p *message.Printer, pg page, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w,
			`<!DOCTYPE html><html lang="%s"><head><meta charset="utf-8">`+
				`<meta name="viewport" content="width=device-width, initial-scale=1">`+
				`<title>%s</title><link rel="stylesheet" href="/static/style.css"></head><body><main>`+
				`<nav class="lang"><a href="%s">中文</a> | <a href="%s">English</a></nav>`,
			templ.EscapeString(pg.Lang),
			templ.EscapeString(p.Sprintf(i18n.KeyTitle)),
			templ.EscapeString(pg.langHref(i18n.TraditionalChinese.String())),
			templ.EscapeString(pg.langHref(i18n.English.String())),
		); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

func registerPage(p *message.Printer, v registerView) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var errHTML string
		if v.Error != "" {
			errHTML = `<p class="error" role="alert">` + templ.EscapeString(v.Error) + `</p>`
		}
		_, err := fmt.Fprintf(w,
			`<h1>%s</h1>%s<form method="post" action="/register">`+
				`<label for="student_id">%s</label>`+
				`<input type="text" id="student_id" name="student_id" maxlength="20" required value="%s">`+
				`<label for="name">%s</label>`+
				`<input type="text" id="name" name="name" maxlength="50" required value="%s">`+
				`<button type="submit">%s</button></form>`,
			templ.EscapeString(p.Sprintf(i18n.KeyRegisterHeading)),
			errHTML,
			templ.EscapeString(p.Sprintf(i18n.KeyStudentIDLabel)),
			templ.EscapeString(v.StudentID),
			templ.EscapeString(p.Sprintf(i18n.KeyNameLabel)),
			templ.EscapeString(v.Name),
			templ.EscapeString(p.Sprintf(i18n.KeyRegisterSubmit)),
		)
		return err
	})
	return layout(p, v.page, body)
}

func successPage(p *message.Printer, v successView) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		status := p.Sprintf(i18n.KeySuccessUnbound)
		if v.Identity.Bound() {
			status = p.Sprintf(i18n.KeySuccessBound)
		}
		if _, err := fmt.Fprintf(w,
			`<h1>%s</h1><dl><dt>%s</dt><dd id="student_id">%s</dd><dt>%s</dt><dd id="name">%s</dd></dl><p id="binding">%s</p>`,
			templ.EscapeString(p.Sprintf(i18n.KeySuccessHeading)),
			templ.EscapeString(p.Sprintf(i18n.KeyStudentIDLabel)),
			templ.EscapeString(v.Identity.StudentID),
			templ.EscapeString(p.Sprintf(i18n.KeyNameLabel)),
			templ.EscapeString(v.Identity.Name),
			templ.EscapeString(status),
		); err != nil {
			return err
		}
		if v.QR == "" {
			return nil
		}
		_, err := fmt.Fprintf(w, `<img class="qr" alt="%s" src="%s" width="%d" height="%d">`,
			templ.EscapeString(v.Identity.StudentID), v.QR, qrSize, qrSize)
		return err
	})
	return layout(p, v.page, body)
}
