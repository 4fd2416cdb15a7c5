// Package render turns a notification event into channel-specific content.
// Rendering is pure: templates are parsed once in New and Render performs
// no I/O.
package render

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	"net/url"
	"strings"
	texttmpl "text/template"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

type compiled struct {
	subject string
	text    *texttmpl.Template
	html    *htmltmpl.Template
	path    *texttmpl.Template
	action  string
}

// Renderer holds the parsed templates for every known event kind.
type Renderer struct {
	baseURL string
	brand   string
	layout  *htmltmpl.Template
	kinds   map[domain.EventKind]compiled
}

var funcs = map[string]any{
	"stars":   stars,
	"urlpath": func(v any) string { return url.PathEscape(fmt.Sprint(v)) },
}

// New parses all templates. baseURL prefixes every call-to-action link and
// brand is used in the email layout and fallback copy.
func New(baseURL, brand string) (*Renderer, error) {
	layout, err := htmltmpl.New("layout").Parse(layoutHTML)
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	r := &Renderer{
		baseURL: strings.TrimRight(baseURL, "/"),
		brand:   brand,
		layout:  layout,
		kinds:   make(map[domain.EventKind]compiled, len(messages)),
	}
	for kind, m := range messages {
		c := compiled{subject: m.subject, action: m.action}
		if c.text, err = texttmpl.New(string(kind)).Funcs(funcs).Parse(m.text); err != nil {
			return nil, fmt.Errorf("parse %s text: %w", kind, err)
		}
		if c.html, err = htmltmpl.New(string(kind)).Funcs(funcs).Parse(m.html); err != nil {
			return nil, fmt.Errorf("parse %s html: %w", kind, err)
		}
		if c.path, err = texttmpl.New(string(kind) + "-path").Funcs(funcs).Parse(m.path); err != nil {
			return nil, fmt.Errorf("parse %s path: %w", kind, err)
		}
		r.kinds[kind] = c
	}
	return r, nil
}

// Render produces the content for one event on one channel. Unknown kinds
// and template failures fall back to a generic notice; Render never fails.
//
// Email gets subject, plain text and the HTML layout. Telegram and VK get
// plain text ending in the link. Push gets a title (Subject), a short body
// without the link, the click URL and a tag.
func (r *Renderer) Render(ev domain.Event, ch domain.Channel) domain.Content {
	c, ok := r.kinds[ev.Kind]
	if !ok {
		return r.fallback(ev, ch)
	}

	body, err := execText(c.text, ev.Data)
	if err != nil {
		return r.fallback(ev, ch)
	}
	path, err := execText(c.path, ev.Data)
	if err != nil {
		return r.fallback(ev, ch)
	}
	link := r.baseURL + path

	content := domain.Content{Subject: c.subject, URL: link, Tag: string(ev.Kind)}
	switch ch {
	case domain.ChannelPush:
		content.Text = body
		return content
	case domain.ChannelEmail:
		var frag bytes.Buffer
		if err := c.html.Execute(&frag, ev.Data); err != nil {
			return r.fallback(ev, ch)
		}
		html, err := r.wrap(c.subject, htmltmpl.HTML(frag.String()), link, c.action)
		if err != nil {
			return r.fallback(ev, ch)
		}
		content.HTML = html
	}
	content.Text = body + "\n\nOpen: " + link
	return content
}

func (r *Renderer) fallback(ev domain.Event, ch domain.Channel) domain.Content {
	notice := "Notification from " + r.brand
	content := domain.Content{Subject: notice, Text: notice, URL: r.baseURL + "/", Tag: string(ev.Kind)}
	if ch == domain.ChannelEmail {
		// The layout itself is static, so a failure here leaves HTML empty
		// and the email adapter sends text only.
		content.HTML, _ = r.wrap(notice, htmltmpl.HTML("<p>"+htmltmpl.HTMLEscapeString(notice)+"</p>"), "", "")
	}
	return content
}

func (r *Renderer) wrap(subject string, body htmltmpl.HTML, link, action string) (string, error) {
	var buf bytes.Buffer
	err := r.layout.Execute(&buf, struct {
		Subject, Brand, URL, Action string
		Body                        htmltmpl.HTML
	}{subject, r.brand, link, action, body})
	return buf.String(), err
}

func execText(t *texttmpl.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// stars renders a 1..5 rating as filled and empty stars.
func stars(v any) string {
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int32:
		n = int(x)
	case int64:
		n = int(x)
	case float64:
		n = int(x)
	case string:
		fmt.Sscanf(x, "%d", &n)
	}
	n = max(0, min(5, n))
	return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
}
