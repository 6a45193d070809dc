package engine

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"newswatch/internal/news"
)

// NewBaidu builds the Baidu search scraper. Baidu links are redirect stubs
// under baidu.com/link, so the resolver step matters more here than for the
// other engines.
func NewBaidu(deps Deps) *Fetcher {
	return newFetcher(descriptor{
		source: news.SourceBaidu,
		searchURL: func(keyword string) string {
			return "https://www.baidu.com/s?wd=" + queryEscape(keyword) + "&ie=utf-8&rn=20"
		},
		parse: parseBaidu,
	}, deps)
}

func parseBaidu(doc *goquery.Document, max int) []rawResult {
	cards := doc.Find("div.result.c-container")
	if cards.Length() == 0 {
		// Baidu rotates layout class names; fall back to anything result-like.
		cards = doc.Find("div[class*='result']")
	}

	var results []rawResult
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		anchor := card.Find("h3 a").First()
		link, _ := anchor.Attr("href")
		if link == "" {
			link, _ = card.Find("a").First().Attr("href")
		}
		if strings.HasPrefix(link, "/") {
			link = "https://www.baidu.com" + link
		}
		title := strings.TrimSpace(anchor.Text())
		if title == "" {
			title = strings.TrimSpace(card.Find("h3").First().Text())
		}
		results = append(results, rawResult{
			title:   title,
			link:    link,
			snippet: baiduSnippet(card, title),
		})
		return len(results) < max
	})
	return results
}

func baiduSnippet(card *goquery.Selection, title string) string {
	for _, sel := range []string{".c-abstract", "div[class*='content-']", ".op-se-it-content"} {
		if text := strings.TrimSpace(card.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	// No abstract block: take the card text minus the title line.
	text := strings.TrimSpace(strings.Replace(card.Text(), title, "", 1))
	return strings.Join(strings.Fields(text), " ")
}
