package search

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const maxCitations = 5

var rule = strings.Repeat("=", 60)

// FormatReasoning renders a reasoning answer as a context block for the
// answering models.
func FormatReasoning(r *Reasoning) string {
	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("CURRENT INFORMATION FROM WEB SEARCH\n")
	fmt.Fprintf(&b, "Retrieved: %s\n", r.RetrievedAt.UTC().Format("January 02, 2006 at 03:04 PM UTC"))
	fmt.Fprintf(&b, "Source: Perplexity API (%s)\n", r.Model)
	b.WriteString(rule + "\n\n")
	b.WriteString(r.Answer + "\n\n")

	if len(r.Citations) > 0 {
		b.WriteString("Sources:\n")
		for i, c := range r.Citations[:min(len(r.Citations), maxCitations)] {
			fmt.Fprintf(&b, "  [%d] %s\n", i+1, c.Title)
			if c.URL != "" {
				fmt.Fprintf(&b, "      URL: %s\n", c.URL)
			}
			if c.Published != "" {
				fmt.Fprintf(&b, "      Date: %s\n", c.Published)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(rule + "\n")
	b.WriteString("Use the above current information to answer the user's question.\n")
	b.WriteString(rule + "\n")
	return b.String()
}

// FormatHits renders plain search hits as a context preamble dated now.
func FormatHits(hits []Hit, now time.Time, cutoffDisplay string) string {
	date := now.Format("January 02, 2006")

	var b strings.Builder
	fmt.Fprintf(&b, "**Current Information from Web Search (as of %s):**\n\n", date)
	for i, h := range hits {
		dated := ""
		if h.Published != "" {
			dated = " (" + h.Published + ")"
		}
		fmt.Fprintf(&b, "**Source %d: %s%s**\n", i+1, h.Source, dated)
		fmt.Fprintf(&b, "Title: %s\n", h.Title)
		fmt.Fprintf(&b, "Content: %s\n\n", h.Snippet)
	}
	b.WriteString("---\n")
	fmt.Fprintf(&b, "*Note: The above information was retrieved from web search on %s. LLM knowledge cutoff is %s.*\n", date, cutoffDisplay)
	return b.String()
}

// Domain returns the host of rawURL without a leading "www.". Unparseable
// input is returned as is.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Host, "www.")
}
