// Package knowledge provides the document store that research stages query
// for subject background material.
//
// Documents are ingested per subject and split into paragraph chunks. Query
// ranks chunks by keyword overlap with the question and returns the best
// matches, which stages fold into their snapshot fields. In-memory and
// SQLite-backed implementations ship with this module.
package knowledge

import (
	"context"
	"sort"
	"strings"
)

// Store holds background material per subject and answers keyword queries
// over it.
type Store interface {
	// Ingest splits text into paragraph chunks and files them under the
	// subject. It returns the number of chunks stored.
	Ingest(ctx context.Context, subject, text string) (int, error)

	// Query returns up to limit chunks for the subject, ranked by keyword
	// overlap with the question. limit <= 0 means a default of 3.
	Query(ctx context.Context, subject, question string, limit int) ([]string, error)
}

const defaultQueryLimit = 3

// chunks splits a document into non-empty paragraphs.
func chunks(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// keywords lowercases the question and keeps words long enough to carry
// meaning.
func keywords(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	var out []string
	for _, f := range fields {
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}

type scoredChunk struct {
	index int
	text  string
	score int
}

// rank orders chunks by descending keyword overlap, breaking ties by
// ingestion order. Chunks with no overlap are dropped.
func rank(candidates []string, question string, limit int) []string {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	words := keywords(question)
	if len(words) == 0 {
		return nil
	}

	scored := make([]scoredChunk, 0, len(candidates))
	for i, c := range candidates {
		lower := strings.ToLower(c)
		score := 0
		for _, w := range words {
			score += strings.Count(lower, w)
		}
		if score > 0 {
			scored = append(scored, scoredChunk{index: i, text: c, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].index < scored[j].index
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.text
	}
	return out
}
