package engine

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"newswatch/internal/news"
)

// NewYahoo builds the Yahoo news scraper.
func NewYahoo(deps Deps) *Fetcher {
	return newFetcher(descriptor{
		source: news.SourceYahoo,
		searchURL: func(keyword string) string {
			return "https://news.search.yahoo.com/search?p=" + queryEscape(keyword)
		},
		parse: parseYahoo,
	}, deps)
}

func parseYahoo(doc *goquery.Document, max int) []rawResult {
	var results []rawResult
	doc.Find("div.NewsArticle").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		anchor := card.Find("h4 a")
		link, _ := anchor.Attr("href")
		results = append(results, rawResult{
			title:   strings.TrimSpace(anchor.Text()),
			link:    link,
			snippet: strings.TrimSpace(card.Find("p").First().Text()),
		})
		return len(results) < max
	})
	return results
}
