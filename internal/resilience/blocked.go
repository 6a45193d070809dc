package resilience

import (
	"strings"
)

// BlockDetector implements a handful of rule-based verification-page checks.
// A hit means the current attempt is skipped, never retried.
type BlockDetector struct{}

// NewBlockDetector creates a new detector.
func NewBlockDetector() *BlockDetector {
	return &BlockDetector{}
}

var blockedURLMarkers = []string{
	"wappass.baidu.com",
	"captcha",
	"verify.bing.com",
	"/sorry/",
}

var blockedTitleMarkers = []string{
	"安全验证",
	"百度安全验证",
	"verification required",
	"are you a robot",
	"access denied",
	"just a moment",
}

var blockedBodyMarkers = []string{
	"unusual traffic from your computer network",
	"请完成下方验证",
	"cf-challenge",
	"g-recaptcha",
	"h-captcha",
	"id=\"captcha\"",
	"prove you are human",
}

// BlockedURL reports whether the URL itself points at a verification page.
func (d *BlockDetector) BlockedURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, marker := range blockedURLMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// BlockedPage reports whether a fetched document is a verification page.
func (d *BlockDetector) BlockedPage(title string, body []byte) bool {
	lowerTitle := strings.ToLower(title)
	for _, marker := range blockedTitleMarkers {
		if strings.Contains(lowerTitle, marker) {
			return true
		}
	}
	lowerBody := strings.ToLower(string(body))
	for _, marker := range blockedBodyMarkers {
		if strings.Contains(lowerBody, marker) {
			return true
		}
	}
	return false
}
