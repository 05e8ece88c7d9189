package crawler

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/venator/internal/models"
)

// pageContent is what the crawler keeps from one fetched page.
type pageContent struct {
	Title string
	Text  string
	Links []string
}

// isHTML reports whether the response claims an HTML body.
func isHTML(resp *models.Response) bool {
	ct := strings.ToLower(resp.Headers["Content-Type"])
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// parsePage extracts the title, visible text, and absolute outbound links
// from an HTML body. Relative hrefs resolve against the final fetch URL.
func parsePage(baseURL string, body []byte) (*pageContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, models.WrapError(models.KindCorruptArtifact, err, "cannot parse HTML")
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, models.WrapError(models.KindInternal, err, "unparseable base URL")
	}

	page := &pageContent{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	doc.Find("script, style, noscript").Remove()
	page.Text = collapseWhitespace(doc.Find("body").Text())

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		link := abs.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		page.Links = append(page.Links, link)
	})

	return page, nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
