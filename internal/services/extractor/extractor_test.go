package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

const samplePage = `<!DOCTYPE html>
<html lang="en">
<head>
  <title>Widget Review 2026</title>
  <link rel="canonical" href="https://example.com/widgets/review">
  <meta name="description" content="An in-depth widget review">
  <meta name="author" content="Jordan Smith">
  <meta property="og:title" content="Widget Review">
  <meta property="og:image" content="https://example.com/widget.png">
  <meta name="twitter:card" content="summary">
</head>
<body>
  <nav><a href="/home">Home</a> | <a href="/about">About</a></nav>
  <article>
    <h1>Widget Review 2026</h1>
    <p>The widget performs <strong>admirably</strong> under load.</p>
    <h2>Benchmarks</h2>
    <p>Throughput doubled compared to <a href="/widgets/2025">last year's model</a>.</p>
    <script>trackPageView();</script>
  </article>
  <footer>Copyright 2026</footer>
</body>
</html>`

func TestExtract(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	content, err := svc.Extract(context.Background(), []byte(samplePage), "https://example.com/widgets/review")
	require.NoError(t, err)

	assert.Equal(t, "Widget Review 2026", content.Title)
	assert.Contains(t, content.Text, "performs admirably under load")
	assert.Contains(t, content.Text, "Throughput doubled")
	assert.NotContains(t, content.Text, "trackPageView", "scripts stripped")
	assert.NotContains(t, content.Text, "Copyright 2026", "boilerplate stripped from main content")

	assert.Contains(t, content.Headings, "Widget Review 2026")
	assert.Contains(t, content.Headings, "Benchmarks")

	assert.Contains(t, content.Links, "https://example.com/widgets/2025", "links resolved against the page URL")
	assert.Contains(t, content.Links, "https://example.com/home")

	assert.NotEmpty(t, content.Markdown)
	assert.Contains(t, content.Markdown, "admirably")
}

func TestExtractMetadata(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	content, err := svc.Extract(context.Background(), []byte(samplePage), "https://example.com/widgets/review")
	require.NoError(t, err)

	meta := content.Metadata
	assert.Equal(t, "Widget Review 2026", meta.Title)
	assert.Equal(t, "en", meta.Language)
	assert.Equal(t, "https://example.com/widgets/review", meta.CanonicalURL)
	assert.Equal(t, "An in-depth widget review", meta.Description)
	assert.Equal(t, "Jordan Smith", meta.Author)
	assert.Equal(t, "Widget Review", meta.OpenGraph["title"])
	assert.Equal(t, "https://example.com/widget.png", meta.OpenGraph["image"])
	assert.Equal(t, "summary", meta.TwitterCard["card"])
}

func TestExtractEmptyDocument(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	content, err := svc.Extract(context.Background(), []byte("<html><body></body></html>"), "https://example.com/")
	require.NoError(t, err)
	assert.Empty(t, content.Text)
	assert.Empty(t, content.Links)
}

func TestExtractStructured(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	page := []byte(`<html><body>
		<h1 class="name">Acme Widget</h1>
		<span class="price">$19.99</span>
		<ul><li class="tag">red</li><li class="tag">portable</li></ul>
		<a id="buy" href="/cart/add">Buy now</a>
	</body></html>`)

	fields, err := svc.ExtractStructured(context.Background(), page, map[string]string{
		"name":    "h1.name",
		"price":   ".price",
		"tags":    ".tag",
		"buy_url": "#buy@href",
		"missing": ".does-not-exist",
	})
	require.NoError(t, err)

	assert.Equal(t, "Acme Widget", fields["name"])
	assert.Equal(t, "$19.99", fields["price"])
	assert.Equal(t, []string{"red", "portable"}, fields["tags"])
	assert.Equal(t, "/cart/add", fields["buy_url"], "@attr suffix captures the attribute")
	assert.Nil(t, fields["missing"])
}
