package crates

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
)

// docsNoise is page chrome that carries no documentation.
const docsNoise = "script, style, nav, noscript, .sidebar, .sidebar-elems, #rustdoc-toolbar, .out-of-band, .rustdoc-breadcrumbs"

// DocsURL is the docs.rs page for a crate. An empty version means latest.
func (c *Client) DocsURL(crate, version string) string {
	if version == "" {
		version = "latest"
	}
	return c.docs.JoinPath(crate, version, strings.ReplaceAll(crate, "-", "_")).String() + "/"
}

// Docs fetches the crate's documentation front page and renders its main
// content as markdown, truncated to the configured number of characters.
func (c *Client) Docs(ctx context.Context, crate, version string) (*Docs, error) {
	target := c.DocsURL(crate, version)
	if version == "" {
		version = "latest"
	}

	body, err := c.get(ctx, target, "text/html", crate)
	if err != nil {
		return nil, err
	}

	markdown, err := renderDocs(body)
	if err != nil {
		return nil, apperrors.NewBuilder(apperrors.CodeUpstreamError, "could not parse documentation page").
			Permanent().Wrap(err).WithContext("url", target).Build()
	}

	docs := &Docs{Crate: crate, Version: version, URL: target, Markdown: markdown}
	if utf8.RuneCountInString(markdown) > c.maxDocChars {
		docs.Markdown = truncateRunes(markdown, c.maxDocChars) +
			fmt.Sprintf("\n\n[Content truncated. Full documentation available at %s]", target)
		docs.Truncated = true
	}
	return docs, nil
}

func renderDocs(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", err
	}

	content := doc.Find("#main-content").First()
	if content.Length() == 0 {
		content = doc.Find("body").First()
	}
	content.Find(docsNoise).Remove()

	// Identifiers such as serde_json must come through unescaped.
	conv := md.NewConverter("", true, &md.Options{
		HeadingStyle: "atx",
		EscapeMode:   "disabled",
	})
	return strings.TrimSpace(conv.Convert(content)), nil
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
