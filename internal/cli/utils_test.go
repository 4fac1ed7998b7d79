package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/lustra/kirameki/internal/models"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Results: []*models.SearchResult{
			{
				Item: &models.CatalogItem{
					ID:          3,
					Name:        "Gold Signet Ring",
					Category:    "rings",
					Price:       499.99,
					Description: "Hand-engraved 18k gold signet ring.",
				},
				Score: 0.9341,
				Rank:  1,
			},
			{
				Item:  &models.CatalogItem{ID: 7, Name: "Silver Band"},
				Score: 0.8123,
				Rank:  2,
			},
		},
		Total:     2,
		QueryTime: 12,
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Found 2 similar items", "Gold Signet Ring", "Similarity: 0.9341", "Category: rings", "Price: 499.99"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults_Compact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputCompact); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "1\t0.9341\t3\tGold Signet Ring") {
		t.Errorf("first line = %q", lines[0])
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.SearchResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Total != 2 || len(decoded.Results) != 2 {
		t.Errorf("decoded=%+v", decoded)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("got %q", got)
	}
	if got := Truncate("hello", 0); got != "hello" {
		t.Errorf("maxLen 0 should not truncate, got %q", got)
	}
}

func TestTruncateWords(t *testing.T) {
	if got := TruncateWords("one two three", 2); got != "one two..." {
		t.Errorf("got %q", got)
	}
	if got := TruncateWords("one two", 5); got != "one two" {
		t.Errorf("got %q", got)
	}
}
