package engine

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const googleParserVersion = "google-html-v3"

// ratingPattern matches "4.8" style ratings inside aria labels and text
// such as "Rated 4.8 out of 5".
var ratingPattern = regexp.MustCompile(`(\d\.\d)`)

// reviewCountPattern matches "(123)" or "123 reviews".
var reviewCountPattern = regexp.MustCompile(`\(?([\d,]+)\)?\s*(?:reviews)?`)

// placeIDPattern pulls ludocid / place IDs out of result hrefs.
var placeIDPattern = regexp.MustCompile(`(?:ludocid%3D|ludocid=|placeid=)([A-Za-z0-9_-]+)`)

// phonePattern matches US phone formats rendered in local results.
var phonePattern = regexp.MustCompile(`\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`)

// parseGoogleSERP extracts the local pack and organic results from a
// standard results page. Selectors track the current markup and will need
// bumping with googleParserVersion when Google ships a new layout.
func parseGoogleSERP(body []byte) ([]ParsedBusiness, []OrganicResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("building document: %w", err)
	}

	var businesses []ParsedBusiness
	rank := 0
	doc.Find("div[jscontroller] div.VkpGBb, div.rllt__details").Each(func(_ int, s *goquery.Selection) {
		business, ok := parseGoogleLocalEntry(s)
		if !ok {
			return
		}
		rank++
		business.ResultType = ResultTypeLocalPack
		business.RankPosition = rank
		businesses = append(businesses, business)
	})

	var organic []OrganicResult
	position := 0
	doc.Find("div.g").Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h3").First().Text())
		href, _ := s.Find("a").First().Attr("href")
		if title == "" || href == "" || !strings.HasPrefix(href, "http") {
			return
		}
		position++
		snippet := strings.TrimSpace(s.Find("div.VwiC3b, span.aCOpRe").First().Text())
		organic = append(organic, OrganicResult{
			Title:    title,
			URL:      href,
			Snippet:  snippet,
			Position: position,
		})
	})

	return businesses, organic, nil
}

// parseGoogleLocalFinder extracts the expanded local results list (tbm=lcl).
func parseGoogleLocalFinder(body []byte) ([]ParsedBusiness, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building document: %w", err)
	}

	var businesses []ParsedBusiness
	rank := 0
	doc.Find("div.rllt__details, div[jsaction*='trigger']").Each(func(_ int, s *goquery.Selection) {
		business, ok := parseGoogleLocalEntry(s)
		if !ok {
			return
		}
		rank++
		business.ResultType = ResultTypeLocalFinder
		business.RankPosition = rank
		businesses = append(businesses, business)
	})
	return businesses, nil
}

// parseGoogleLocalEntry reads one local listing block shared between the
// local pack and the local finder layouts.
func parseGoogleLocalEntry(s *goquery.Selection) (ParsedBusiness, bool) {
	name := strings.TrimSpace(s.Find("div[role='heading'] span, span.OSrXXb, div.dbg0pd").First().Text())
	if name == "" {
		return ParsedBusiness{}, false
	}
	business := ParsedBusiness{Name: name}

	text := s.Text()
	if m := phonePattern.FindString(text); m != "" {
		phone := m
		business.Phone = &phone
	}

	if label, exists := s.Find("span[aria-label]").First().Attr("aria-label"); exists {
		if m := ratingPattern.FindStringSubmatch(label); m != nil {
			if rating, err := strconv.ParseFloat(m[1], 64); err == nil {
				business.Rating = &rating
			}
		}
	}
	if reviewText := s.Find("span.RDApEe, span.UY7F9").First().Text(); reviewText != "" {
		if m := reviewCountPattern.FindStringSubmatch(reviewText); m != nil {
			if count, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil && count > 0 {
				business.ReviewCount = &count
			}
		}
	}

	s.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if m := placeIDPattern.FindStringSubmatch(href); m != nil {
			placeID := m[1]
			business.GooglePlaceID = &placeID
			return false
		}
		return true
	})

	s.Find("a[href^='http']").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if strings.Contains(href, "google.com") || strings.Contains(href, "/url?") {
			return true
		}
		website := href
		business.Website = &website
		return false
	})

	// The second detail line carries "Category · Address".
	if detail := s.Find("div:contains('·')").Last().Text(); detail != "" {
		parts := strings.Split(detail, "·")
		if len(parts) >= 2 {
			address := strings.TrimSpace(parts[len(parts)-1])
			if address != "" && !phonePattern.MatchString(address) {
				business.Address = &address
			}
		}
	}

	return business, true
}

// parseGoogleMapsShell scans the Maps SPA shell for inlined listing data.
// The shell rarely carries any, so the common outcome is an empty slice.
func parseGoogleMapsShell(body []byte) ([]ParsedBusiness, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building document: %w", err)
	}

	var businesses []ParsedBusiness
	rank := 0
	doc.Find("div[role='article']").Each(func(_ int, s *goquery.Selection) {
		name, exists := s.Attr("aria-label")
		if !exists || strings.TrimSpace(name) == "" {
			return
		}
		rank++
		businesses = append(businesses, ParsedBusiness{
			Name:         strings.TrimSpace(name),
			ResultType:   ResultTypeMaps,
			RankPosition: rank,
		})
	})
	return businesses, nil
}
