package dispatcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/samvad-relay/pkg/jsonhttp"
)

const maxSummaryLen = 512

// describeError renders err for events. Failed responses are reduced to a
// short summary so HTML error pages do not flood downstream sinks.
func describeError(err error) string {
	var reqErr *jsonhttp.HTTPRequestFailedError
	if errors.As(err, &reqErr) {
		return fmt.Sprintf("status %d: %s", reqErr.StatusCode, summarizeBody(reqErr.Body))
	}
	return err.Error()
}

// summarizeBody returns the page title or visible text of HTML bodies and a
// trimmed snippet of anything else.
func summarizeBody(body string) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "<empty>"
	}
	if looksLikeHTML(trimmed) {
		if text := htmlSummary(trimmed); text != "" {
			return truncate(text)
		}
	}
	return truncate(trimmed)
}

func looksLikeHTML(s string) bool {
	head := strings.ToLower(s[:min(len(s), 256)])
	return strings.HasPrefix(head, "<!doctype html") ||
		strings.Contains(head, "<html") ||
		strings.Contains(head, "<body")
}

func htmlSummary(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	if title := collapseSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if h1 := collapseSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	doc.Find("script, style").Remove()
	return collapseSpace(doc.Find("body").Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string) string {
	if len(s) > maxSummaryLen {
		return s[:maxSummaryLen] + "..."
	}
	return s
}
