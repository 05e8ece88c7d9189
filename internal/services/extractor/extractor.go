// -----
// Extractor - readability-style content extraction with markdown
// conversion
// -----

package extractor

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/models"
)

// chrome selectors removed before main-content detection.
var boilerplate = []string{
	"script", "style", "noscript", "iframe", "svg",
	"nav", "header", "footer", "aside",
	"[role=navigation]", "[role=banner]", "[role=contentinfo]",
}

// candidates for the main content region, tried in order.
var contentSelectors = []string{
	"main", "article", "[role=main]", "#content", ".content", "#main",
}

// Service is the default ContentExtractor: goquery-based DOM pruning with
// markdown conversion. Satisfies interfaces.ContentExtractor.
type Service struct {
	converter *md.Converter
	logger    arbor.ILogger
}

// NewService builds the extractor.
func NewService(logger arbor.ILogger) *Service {
	converter := md.NewConverter("", true, nil)
	return &Service{converter: converter, logger: logger}
}

// Extract parses the HTML, strips boilerplate, and returns text, markdown,
// headings, links, and page metadata.
func (s *Service) Extract(ctx context.Context, html []byte, sourceURL string) (*models.ExtractedContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, models.WrapError(models.KindCorruptArtifact, err, "cannot parse HTML")
	}

	content := &models.ExtractedContent{
		Metadata: extractMetadata(doc),
	}
	content.Title = content.Metadata.Title

	base, _ := url.Parse(sourceURL)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || base == nil {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme == "http" || abs.Scheme == "https" {
			content.Links = append(content.Links, abs.String())
		}
	})

	for _, sel := range boilerplate {
		doc.Find(sel).Remove()
	}

	main := mainContent(doc)
	main.Find("h1, h2, h3, h4").Each(func(_ int, sel *goquery.Selection) {
		if h := strings.TrimSpace(sel.Text()); h != "" {
			content.Headings = append(content.Headings, h)
		}
	})
	content.Text = strings.Join(strings.Fields(main.Text()), " ")

	if markdown, err := s.markdown(main); err == nil {
		content.Markdown = markdown
	} else {
		s.logger.Debug().Err(err).Str("url", sourceURL).Msg("Markdown conversion failed")
	}

	return content, nil
}

// mainContent picks the densest candidate region, falling back to body.
func mainContent(doc *goquery.Document) *goquery.Selection {
	for _, selector := range contentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() > 0 && len(strings.TrimSpace(sel.Text())) > 0 {
			return sel
		}
	}
	body := doc.Find("body").First()
	if body.Length() > 0 {
		return body
	}
	return doc.Selection
}

func (s *Service) markdown(sel *goquery.Selection) (string, error) {
	html, err := goquery.OuterHtml(sel)
	if err != nil {
		return "", err
	}
	return s.converter.ConvertString(html)
}

func extractMetadata(doc *goquery.Document) models.PageMetadata {
	meta := models.PageMetadata{
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		OpenGraph:   make(map[string]string),
		TwitterCard: make(map[string]string),
	}

	if lang, ok := doc.Find("html").Attr("lang"); ok {
		meta.Language = lang
	}
	if href, ok := doc.Find("link[rel=canonical]").Attr("href"); ok {
		meta.CanonicalURL = href
	}

	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		content, _ := sel.Attr("content")
		if content == "" {
			return
		}
		if name, ok := sel.Attr("name"); ok {
			switch strings.ToLower(name) {
			case "description":
				meta.Description = content
			case "author":
				meta.Author = content
			default:
				if strings.HasPrefix(name, "twitter:") {
					meta.TwitterCard[strings.TrimPrefix(name, "twitter:")] = content
				}
			}
		}
		if property, ok := sel.Attr("property"); ok && strings.HasPrefix(property, "og:") {
			meta.OpenGraph[strings.TrimPrefix(property, "og:")] = content
			if property == "og:title" && meta.Title == "" {
				meta.Title = content
			}
			if property == "og:description" && meta.Description == "" {
				meta.Description = content
			}
		}
	})

	if len(meta.OpenGraph) == 0 {
		meta.OpenGraph = nil
	}
	if len(meta.TwitterCard) == 0 {
		meta.TwitterCard = nil
	}
	return meta
}

// ExtractStructured pulls named fields via CSS selectors. A selector ending
// in "@attr" captures the attribute instead of the text; selectors matching
// multiple nodes produce a list.
func (s *Service) ExtractStructured(ctx context.Context, html []byte, selectors map[string]string) (map[string]interface{}, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, models.WrapError(models.KindCorruptArtifact, err, "cannot parse HTML")
	}

	out := make(map[string]interface{}, len(selectors))
	for field, selector := range selectors {
		attr := ""
		if idx := strings.LastIndex(selector, "@"); idx > 0 {
			attr = selector[idx+1:]
			selector = selector[:idx]
		}

		var values []string
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			var v string
			if attr != "" {
				v, _ = sel.Attr(attr)
			} else {
				v = strings.TrimSpace(sel.Text())
			}
			if v != "" {
				values = append(values, v)
			}
		})

		switch len(values) {
		case 0:
			out[field] = nil
		case 1:
			out[field] = values[0]
		default:
			out[field] = values
		}
	}
	return out, nil
}
