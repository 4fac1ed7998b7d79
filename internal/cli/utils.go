// Package cli provides CLI output formatting for Kirameki.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lustra/kirameki/internal/models"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact is one result per line.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		for _, result := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%d\t%s\n", result.Rank, result.Score, result.Item.ID, result.Item.Name)
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d similar items in %dms\n\n", response.Total, response.QueryTime)
	for _, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Similarity: %.4f\n", result.Rank, result.Score)
		fmt.Fprintf(w, "ID: %d | %s\n", result.Item.ID, result.Item.Name)
		if result.Item.Category != "" {
			fmt.Fprintf(w, "Category: %s\n", result.Item.Category)
		}
		if result.Item.Price > 0 {
			fmt.Fprintf(w, "Price: %.2f\n", result.Item.Price)
		}
		if result.Item.Description != "" {
			fmt.Fprintf(w, "\n%s\n", Truncate(result.Item.Description, 200))
		}
		fmt.Fprintln(w)
	}
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
