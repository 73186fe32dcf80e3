package engine

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	bingParserVersion    = "bing-html-v2"
	bingAPIParserVersion = "bing-api-v7"
)

// parseBingSERP extracts the local map answer and organic results from a
// Bing results page.
func parseBingSERP(body []byte) ([]ParsedBusiness, []OrganicResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("building document: %w", err)
	}

	var businesses []ParsedBusiness
	rank := 0
	doc.Find("div.b_localList li, li.b_local, div.lMapContainer li").Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.Find("div.lc_content h2, a.name, div.b_factrow a").First().Text())
		if name == "" {
			name = strings.TrimSpace(s.Find("h2").First().Text())
		}
		if name == "" {
			return
		}
		rank++
		business := ParsedBusiness{
			Name:         name,
			ResultType:   ResultTypeLocalPack,
			RankPosition: rank,
		}

		if m := phonePattern.FindString(s.Text()); m != "" {
			phone := m
			business.Phone = &phone
		}
		if address := strings.TrimSpace(s.Find("span.b_address, div.b_address").First().Text()); address != "" {
			business.Address = &address
		}
		if ratingText, exists := s.Find("div.csrc_rating, span.csrc").First().Attr("aria-label"); exists {
			if m := ratingPattern.FindStringSubmatch(ratingText); m != nil {
				if rating, err := strconv.ParseFloat(m[1], 64); err == nil {
					business.Rating = &rating
				}
			}
		}
		if entityID, exists := s.Attr("data-entityid"); exists && entityID != "" {
			business.BingEntityID = &entityID
		}
		businesses = append(businesses, business)
	})

	var organic []OrganicResult
	position := 0
	doc.Find("li.b_algo").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("h2 a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return
		}
		position++
		snippet := strings.TrimSpace(s.Find("div.b_caption p").First().Text())
		organic = append(organic, OrganicResult{
			Title:    title,
			URL:      href,
			Snippet:  snippet,
			Position: position,
		})
	})

	return businesses, organic, nil
}
