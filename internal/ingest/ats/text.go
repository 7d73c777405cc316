package ats

import (
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"jobsync-engine/internal/domain"
)

// DescriptionCap bounds stored descriptions, in runes.
const DescriptionCap = 20000

func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// HTMLToText returns the visible text of an HTML fragment with block
// elements separated by newlines. Entity-escaped markup (Greenhouse sends
// its content that way) is unescaped first.
func HTMLToText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	if strings.Contains(s, "&lt;") {
		s = html.UnescapeString(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return CleanText(s)
	}
	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, li, h1, h2, h3, h4, div, tr").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = CleanText(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

// Description converts vendor HTML to capped plain text.
func Description(htmlOrText string) string {
	return Truncate(HTMLToText(htmlOrText), DescriptionCap)
}

func NormalizeLocation(loc string) string {
	loc = CleanText(loc)
	if loc == "" {
		return ""
	}
	loc = strings.TrimSpace(strings.TrimPrefix(loc, "Location:"))

	seen := map[string]bool{}
	var out []string
	for _, p := range strings.Split(loc, ",") {
		p = CleanText(p)
		k := strings.ToLower(p)
		if p == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}

// Workplace maps a vendor workplace hint to remote/hybrid/on-site, falling
// back to keywords in the location and title.
func Workplace(hint, location, title string) string {
	if w := workplaceFrom(hint); w != "" {
		return w
	}
	return workplaceFrom(location + " " + title)
}

func workplaceFrom(s string) string {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "remote"):
		return domain.WorkplaceRemote
	case strings.Contains(s, "hybrid"):
		return domain.WorkplaceHybrid
	case strings.Contains(s, "on-site") || strings.Contains(s, "onsite") || strings.Contains(s, "on site"):
		return domain.WorkplaceOnsite
	}
	return ""
}

// StripQuery drops the query string and fragment from a job URL.
func StripQuery(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// ParseTime accepts the timestamp shapes vendors send and returns nil for
// anything else.
func ParseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
