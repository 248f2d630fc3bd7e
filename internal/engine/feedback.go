package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/heimdall/pkg/api"
)

// parseFeedback parses reviewer feedback as a YAML mapping of section key to
// replacement text. An empty document means "approve as-is" and yields a nil
// map without error.
func parseFeedback(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var patches map[string]string
	if err := yaml.Unmarshal([]byte(raw), &patches); err != nil {
		return nil, fmt.Errorf("feedback is not a YAML mapping: %w", err)
	}
	return patches, nil
}

// applyFeedback patches the final report text section by section. Patches
// are applied in sorted key order so the result is deterministic regardless
// of map iteration.
func applyFeedback(snap *api.Snapshot, patches map[string]string) {
	keys := make([]string, 0, len(patches))
	for k := range patches {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	report := snap.Field(api.FieldFinalReport)
	for _, key := range keys {
		report = patchSection(report, key, patches[key])
	}
	snap.Merge(map[string]string{api.FieldFinalReport: report})
}

// sectionTitle turns a feedback key like "risk_section" into the heading
// text "Risk Section".
func sectionTitle(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == ' '
	})
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// nextHeading matches the start of any following section heading, which
// bounds how far a replacement reaches.
var nextHeading = regexp.MustCompile(`(?m)^\w[\w ]*:`)

// patchSection replaces the body of the named section in the report: from
// the line containing the section heading up to the next heading or the end
// of the text. A section the report does not contain is appended.
func patchSection(report, key, replacement string) string {
	title := sectionTitle(key)

	headingRe := regexp.MustCompile(`(?im)^.*` + regexp.QuoteMeta(title) + `.*$`)
	loc := headingRe.FindStringIndex(report)
	if loc == nil {
		if strings.TrimSpace(report) == "" {
			return title + ":\n" + replacement
		}
		return strings.TrimRight(report, "\n") + "\n\n" + title + ":\n" + replacement
	}

	rest := report[loc[1]:]
	if nl := nextHeading.FindStringIndex(rest); nl != nil {
		return report[:loc[1]] + "\n" + replacement + "\n\n" + report[loc[1]+nl[0]:]
	}
	return report[:loc[1]] + "\n" + replacement
}
