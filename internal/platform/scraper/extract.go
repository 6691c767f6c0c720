package scraper

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var skipTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Template: true,
	atom.Canvas:   true,
}

var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Main: true, atom.Header: true, atom.Footer: true, atom.Nav: true,
	atom.Aside: true, atom.Ul: true, atom.Ol: true, atom.Li: true,
	atom.Table: true, atom.Tr: true, atom.Td: true, atom.Th: true,
	atom.Br: true, atom.Hr: true, atom.Pre: true, atom.Blockquote: true,
	atom.Dl: true, atom.Dt: true, atom.Dd: true, atom.Figure: true,
	atom.Figcaption: true, atom.Form: true, atom.Address: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

type extractor struct {
	base    *url.URL
	page    *Page
	full    strings.Builder
	current strings.Builder
	section Section
	h1      string
	ogTitle string
	ogDesc  string
	seen    map[string]bool
}

// extractHTML fills title, description, headings, sections, links and text.
func extractHTML(r io.Reader, base *url.URL, page *Page) error {
	doc, err := html.Parse(r)
	if err != nil {
		return err
	}
	ex := &extractor{base: base, page: page, seen: map[string]bool{}}
	ex.walk(doc)
	ex.flushSection()

	if page.Title == "" {
		page.Title = ex.ogTitle
	}
	if page.Title == "" {
		page.Title = ex.h1
	}
	if page.Description == "" {
		page.Description = ex.ogDesc
	}
	page.Text = normalizeText(ex.full.String())
	return nil
}

func (ex *extractor) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		ex.write(n.Data)
		return
	case html.ElementNode:
		if skipTags[n.DataAtom] {
			return
		}
		switch n.DataAtom {
		case atom.Title:
			if ex.page.Title == "" {
				ex.page.Title = collapse(textContent(n))
			}
			return
		case atom.Meta:
			ex.meta(n)
			return
		case atom.A:
			ex.link(attr(n, "href"))
		}
		if lvl := headingLevel(n.DataAtom); lvl > 0 {
			ex.heading(n, lvl)
			return
		}
	}

	block := n.Type == html.ElementNode && blockTags[n.DataAtom]
	if block {
		ex.newline()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		ex.walk(c)
	}
	if block {
		ex.newline()
	}
}

func (ex *extractor) write(s string) {
	if strings.TrimSpace(s) == "" {
		if s != "" {
			ex.full.WriteByte(' ')
			ex.current.WriteByte(' ')
		}
		return
	}
	s = strings.Join(strings.Fields(s), " ")
	ex.full.WriteString(s)
	ex.current.WriteString(s)
	ex.full.WriteByte(' ')
	ex.current.WriteByte(' ')
}

func (ex *extractor) newline() {
	ex.full.WriteByte('\n')
	ex.current.WriteByte('\n')
}

func (ex *extractor) heading(n *html.Node, lvl int) {
	text := collapse(textContent(n))
	if text == "" {
		return
	}
	ex.page.Headings = append(ex.page.Headings, Heading{Level: lvl, Text: text})
	if lvl == 1 && ex.h1 == "" {
		ex.h1 = text
	}
	ex.full.WriteString("\n\n" + text + "\n\n")
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		ex.collectLinks(c)
	}
	if lvl <= 3 {
		ex.flushSection()
		ex.section = Section{Heading: text, Level: lvl}
		return
	}
	ex.current.WriteString("\n\n" + text + "\n\n")
}

func (ex *extractor) flushSection() {
	text := normalizeText(ex.current.String())
	ex.current.Reset()
	if text == "" && ex.section.Heading == "" {
		return
	}
	ex.section.Text = text
	ex.page.Sections = append(ex.page.Sections, ex.section)
	ex.section = Section{}
}

func (ex *extractor) meta(n *html.Node) {
	content := collapse(attr(n, "content"))
	if content == "" {
		return
	}
	name := strings.ToLower(attr(n, "name"))
	prop := strings.ToLower(attr(n, "property"))
	switch {
	case name == "description" && ex.page.Description == "":
		ex.page.Description = content
	case prop == "og:title" && ex.ogTitle == "":
		ex.ogTitle = content
	case prop == "og:description" && ex.ogDesc == "":
		ex.ogDesc = content
	}
}

func (ex *extractor) collectLinks(n *html.Node) {
	if n.Type == html.ElementNode && n.DataAtom == atom.A {
		ex.link(attr(n, "href"))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		ex.collectLinks(c)
	}
}

// link records href when it resolves to an http(s) URL on the page's host.
func (ex *extractor) link(href string) {
	href = strings.TrimSpace(href)
	if href == "" || ex.base == nil || strings.HasPrefix(href, "#") {
		return
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "tel:") {
		return
	}
	ref, err := url.Parse(href)
	if err != nil {
		return
	}
	abs := ex.base.ResolveReference(ref)
	u, err := ValidateURL(abs.String())
	if err != nil || !strings.EqualFold(u.Hostname(), ex.base.Hostname()) {
		return
	}
	s := u.String()
	if ex.seen[s] {
		return
	}
	ex.seen[s] = true
	ex.page.Links = append(ex.page.Links, s)
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\u00a0", " ")), " ")
}

// normalizeText collapses whitespace inside lines and keeps at most one
// blank line between paragraphs.
func normalizeText(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, ln := range lines {
		ln = collapse(ln)
		if ln == "" {
			if len(out) > 0 && !blank {
				out = append(out, "")
				blank = true
			}
			continue
		}
		out = append(out, ln)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
