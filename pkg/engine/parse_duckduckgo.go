package engine

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const duckduckgoParserVersion = "ddg-html-v1"

// parseDuckDuckGoResults extracts organic results from the html endpoint.
// Result links route through a /l/?uddg= redirect that we unwrap.
func parseDuckDuckGoResults(body []byte) ([]OrganicResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building document: %w", err)
	}

	var organic []OrganicResult
	position := 0
	doc.Find("div.result, div.web-result").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return
		}
		position++
		snippet := strings.TrimSpace(s.Find("a.result__snippet, div.result__snippet").First().Text())
		organic = append(organic, OrganicResult{
			Title:    title,
			URL:      unwrapDuckDuckGoRedirect(href),
			Snippet:  snippet,
			Position: position,
		})
	})
	return organic, nil
}

func unwrapDuckDuckGoRedirect(href string) string {
	if !strings.Contains(href, "uddg=") {
		return href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
