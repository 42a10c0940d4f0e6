package scraper

import (
	"errors"
	"io"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/iliyamo/bandou-movie/internal/model"
)

// ErrNoTitle is returned for detail pages without a recognisable title.
var ErrNoTitle = errors.New("detail page has no title")

var subjectPath = regexp.MustCompile(`/subject/\d+/?$`)

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func text(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// ParseListing returns the detail page links of the "now playing" list in
// document order, resolved against base and without duplicates.
func ParseListing(r io.Reader, base *url.URL) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var (
		out  []string
		seen = map[string]bool{}
	)
	walk(doc, func(li *html.Node) {
		if li.Data != "li" || !hasClass(li, "list-item") {
			return
		}
		walk(li, func(a *html.Node) {
			if a.Data != "a" {
				return
			}
			ref, err := url.Parse(attr(a, "href"))
			if err != nil {
				return
			}
			u := base.ResolveReference(ref)
			u.RawQuery, u.Fragment = "", ""
			if !subjectPath.MatchString(u.Path) || seen[u.String()] {
				return
			}
			seen[u.String()] = true
			out = append(out, u.String())
		})
	})
	return out, nil
}

// ParseDetail extracts one movie from its detail page.  The page score is
// on a ten point scale and is halved onto the 0..5 rating scale.
func ParseDetail(r io.Reader) (*model.Movie, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var (
		m         model.Movie
		directors []string
		starring  []string
		genres    []string
	)
	walk(doc, func(n *html.Node) {
		switch {
		case attr(n, "property") == "v:itemreviewed":
			m.Title = text(n)
		case n.Data == "img" && attr(n, "rel") == "v:image":
			m.CoverURL = attr(n, "src")
		case attr(n, "property") == "v:average":
			if f, err := strconv.ParseFloat(strings.TrimSpace(text(n)), 64); err == nil {
				s := math.Round(f/2*10) / 10
				m.Score = &s
			}
		case attr(n, "rel") == "v:directedBy":
			directors = append(directors, text(n))
		case attr(n, "rel") == "v:starring":
			starring = append(starring, text(n))
		case attr(n, "property") == "v:genre":
			genres = append(genres, text(n))
		case attr(n, "property") == "v:initialReleaseDate" && m.ReleaseDate == nil:
			if d, ok := parseDate(attr(n, "content"), text(n)); ok {
				m.ReleaseDate = &d
			}
		case attr(n, "property") == "v:summary":
			m.Brief = text(n)
		}
	})
	if m.Title == "" {
		return nil, ErrNoTitle
	}
	m.Director = strings.Join(directors, "/")
	m.Starring = strings.Join(starring, "/")
	m.Category = strings.Join(genres, "/")
	return &m, nil
}

// parseDate reads the leading YYYY-MM-DD of values like "2024-05-01(中国大陆)".
func parseDate(candidates ...string) (time.Time, bool) {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if len(c) < 10 {
			continue
		}
		if d, err := time.Parse("2006-01-02", c[:10]); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}
