// ABOUTME: Minimal scripted browser for the phone's embedded web UI
// ABOUTME: Fetches pages, parses HTML forms, and submits them with field overrides and an optional file part
package phone

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// FilePayload is attached to a form's file control on submit.
type FilePayload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Field is one form control as parsed from the page. Type is the input's
// type attribute lowercased, or "select" for selection lists.
type Field struct {
	Name     string
	Value    string
	Type     string
	ReadOnly bool
}

// Form is a parsed HTML form bound to the browser that fetched it.
type Form struct {
	browser *Browser
	action  *url.URL
	method  string
	fields  []*Field
}

// Page is one fetched and parsed document.
type Page struct {
	browser *Browser
	URL     *url.URL
	Body    string
	doc     *html.Node
}

// Browser drives the device web UI the way a desktop browser would,
// carrying session cookies across requests. One browser belongs to exactly
// one session; it is not safe for concurrent use.
type Browser struct {
	base   *url.URL
	client *http.Client
}

// NewBrowser creates a browser rooted at the device base URL.
func NewBrowser(base string) (*Browser, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid phone URL %q: %w", base, err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &Browser{base: u, client: &http.Client{Jar: jar}}, nil
}

// Get fetches a reference relative to the base URL and parses the result.
func (b *Browser) Get(ctx context.Context, ref string) (*Page, error) {
	target, err := b.base.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid page reference %q: %w", ref, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	return b.do(req)
}

func (b *Browser) do(req *http.Request) (*Page, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: %s", req.Method, req.URL, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL, err)
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", req.URL, err)
	}

	// resp.Request carries the final URL after any redirect.
	return &Page{browser: b, URL: resp.Request.URL, Body: string(data), doc: doc}, nil
}

// Form locates the form with the given name attribute on the page.
func (p *Page) Form(name string) (*Form, error) {
	node := findForm(p.doc, name)
	if node == nil {
		return nil, fmt.Errorf("no form named %q on %s", name, p.URL)
	}

	f := &Form{browser: p.browser, action: p.URL, method: http.MethodGet}
	if action := attr(node, "action"); action != "" {
		u, err := p.URL.Parse(action)
		if err != nil {
			return nil, fmt.Errorf("invalid form action %q: %w", action, err)
		}
		f.action = u
	}
	if m := attr(node, "method"); m != "" {
		f.method = strings.ToUpper(m)
	}
	collectFields(node, f)
	return f, nil
}

// HasLink reports whether any anchor on the page points at ref.
func (p *Page) HasLink(ref string) bool {
	found := false
	walk(p.doc, func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" && strings.Contains(attr(n, "href"), ref) {
			found = true
		}
	})
	return found
}

func (f *Form) field(name string) *Field {
	for _, fl := range f.fields {
		if fl.Name == name {
			return fl
		}
	}
	return nil
}

// Set assigns a value to an existing writable field.
func (f *Form) Set(name, value string) error {
	fl := f.field(name)
	if fl == nil {
		return fmt.Errorf("form has no field %q", name)
	}
	if fl.ReadOnly {
		return fmt.Errorf("field %q is read-only", name)
	}
	fl.Value = value
	return nil
}

// ForceSet assigns a value regardless of the read-only flag, creating the
// field when the page never declared it. The device adds some fields
// through client-side script, so a scripted client has to inject them.
func (f *Form) ForceSet(name, value string) {
	if fl := f.field(name); fl != nil {
		fl.ReadOnly = false
		fl.Value = value
		return
	}
	f.fields = append(f.fields, &Field{Name: name, Value: value, Type: "hidden"})
}

// Submit sends the form. A non-nil file is attached to the form's file
// control and switches the request to multipart encoding.
func (f *Form) Submit(ctx context.Context, file *FilePayload) (*Page, error) {
	if file != nil {
		return f.submitMultipart(ctx, file)
	}

	values := url.Values{}
	for _, fl := range f.fields {
		if fl.Type == "file" {
			continue
		}
		values.Set(fl.Name, fl.Value)
	}

	if f.method == http.MethodGet {
		target := *f.action
		target.RawQuery = values.Encode()
		return f.browser.Get(ctx, target.String())
	}

	req, err := http.NewRequestWithContext(ctx, f.method, f.action.String(), strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.browser.do(req)
}

func (f *Form) submitMultipart(ctx context.Context, file *FilePayload) (*Page, error) {
	var fileField *Field
	for _, fl := range f.fields {
		if fl.Type == "file" {
			fileField = fl
			break
		}
	}
	if fileField == nil {
		return nil, fmt.Errorf("form on %s has no file control", f.action)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, fl := range f.fields {
		if fl.Type == "file" {
			continue
		}
		if err := w.WriteField(fl.Name, fl.Value); err != nil {
			return nil, err
		}
	}

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField.Name, file.Name))
	hdr.Set("Content-Type", file.ContentType)
	part, err := w.CreatePart(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.action.String(), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return f.browser.do(req)
}

func findForm(root *html.Node, name string) *html.Node {
	var form *html.Node
	walk(root, func(n *html.Node) {
		if form == nil && n.Type == html.ElementNode && n.Data == "form" && attr(n, "name") == name {
			form = n
		}
	})
	return form
}

func collectFields(form *html.Node, f *Form) {
	walk(form, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "input":
			name := attr(n, "name")
			if name == "" {
				return
			}
			typ := strings.ToLower(attr(n, "type"))
			if typ == "" {
				typ = "text"
			}
			switch typ {
			case "submit", "button", "reset", "image":
				return
			case "checkbox", "radio":
				if !hasAttr(n, "checked") {
					return
				}
			}
			f.fields = append(f.fields, &Field{
				Name:     name,
				Value:    attr(n, "value"),
				Type:     typ,
				ReadOnly: hasAttr(n, "readonly") || hasAttr(n, "disabled"),
			})
		case "select":
			name := attr(n, "name")
			if name == "" {
				return
			}
			f.fields = append(f.fields, &Field{
				Name:     name,
				Value:    selectedOption(n),
				Type:     "select",
				ReadOnly: hasAttr(n, "disabled"),
			})
		}
	})
}

// selectedOption returns the value of the selected option, or of the first
// option when none is marked selected, as a browser would.
func selectedOption(sel *html.Node) string {
	first := ""
	seen := false
	selected := ""
	walk(sel, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "option" {
			return
		}
		value := attr(n, "value")
		if value == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			value = strings.TrimSpace(n.FirstChild.Data)
		}
		if !seen {
			first = value
			seen = true
		}
		if selected == "" && hasAttr(n, "selected") {
			selected = value
		}
	})
	if selected != "" {
		return selected
	}
	return first
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
