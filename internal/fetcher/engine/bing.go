package engine

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"newswatch/internal/news"
)

// NewBing builds the Bing news scraper.
func NewBing(deps Deps) *Fetcher {
	return newFetcher(descriptor{
		source: news.SourceBing,
		searchURL: func(keyword string) string {
			return "https://www.bing.com/news/search?q=" + queryEscape(keyword) + "&qft=sortbydate%3d%221%22"
		},
		parse: parseBing,
	}, deps)
}

func parseBing(doc *goquery.Document, max int) []rawResult {
	var results []rawResult
	doc.Find("div.news-card").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		title := card.Find("a.title")
		link, _ := title.Attr("href")
		if link == "" {
			// Older layout keeps the link on the card itself.
			link, _ = card.Attr("url")
		}
		results = append(results, rawResult{
			title:   strings.TrimSpace(title.Text()),
			link:    link,
			snippet: strings.TrimSpace(card.Find("div.snippet").Text()),
		})
		return len(results) < max
	})
	return results
}
