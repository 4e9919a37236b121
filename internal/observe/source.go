package observe

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// sourceAttrs are probed first, in order. Grid implementations that expose an
// explicit attachment URL always win over whatever thumbnail is rendered.
var sourceAttrs = []string{"data-url", "data-full-url", "data-source-url"}

var reBackgroundURL = regexp.MustCompile(`url\(['"]?([^'")]+)['"]?\)`)

// deriveSource resolves the best-guess image URL for an attachment node:
// explicit data attributes, then a contained img element's effective source,
// then a computed-style background image. Empty means nothing usable yet;
// the grid may simply not have rendered the thumbnail.
func deriveSource(sel *goquery.Selection) string {
	for _, attr := range sourceAttrs {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}

	if img := sel.Find("img").First(); img.Length() > 0 {
		if v, ok := img.Attr("src"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		if v, ok := img.Attr("srcset"); ok && v != "" {
			// First entry of the srcset is "url descriptor"
			fields := strings.Fields(strings.Split(v, ",")[0])
			if len(fields) > 0 {
				return fields[0]
			}
		}
	}

	if src := backgroundSource(sel); src != "" {
		return src
	}
	var found string
	sel.Find("[style]").EachWithBreak(func(_ int, child *goquery.Selection) bool {
		if src := backgroundSource(child); src != "" {
			found = src
			return false
		}
		return true
	})
	return found
}

func backgroundSource(sel *goquery.Selection) string {
	style, ok := sel.Attr("style")
	if !ok || !strings.Contains(style, "background") {
		return ""
	}
	m := reBackgroundURL.FindStringSubmatch(style)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// deriveContext pulls filename-ish text off the node for the analysis prompt.
func deriveContext(sel *goquery.Selection) string {
	if v, ok := sel.Attr("aria-label"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v, ok := sel.Attr("title"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if img := sel.Find("img").First(); img.Length() > 0 {
		if v, ok := img.Attr("alt"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if fn := sel.Find(".filename").First(); fn.Length() > 0 {
		return strings.TrimSpace(fn.Text())
	}
	return ""
}

func isBlobURL(u string) bool {
	return strings.HasPrefix(strings.ToLower(u), "blob:")
}

func isAbsoluteURL(u string) bool {
	parsed, err := url.Parse(u)
	return err == nil && parsed.IsAbs()
}

// resolveURL makes ref absolute against base. Empty means it could not be
// resolved, typically because the base itself is missing or relative.
func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}
