// Package profile maintains the derived behavioral profile for each user:
// recurring themes, growth areas, goals, strengths, challenges, and
// insights accumulated from conversation history. Profiles are derived
// state - only the Extractor writes them, and every field traces back to
// stored memory records.
package profile

import (
	"fmt"
	"strings"
	"time"
)

// Profile is one user's accumulated behavioral summary.
type Profile struct {
	UserID string

	// Personal details picked up from conversation, not user-editable.
	Name     string
	Location string

	// Derived sets. Append-biased: entries are added as observed and
	// never removed except by compaction, which collapses near-duplicate
	// phrasings once a set exceeds its cap.
	RecurringThemes []string
	GrowthAreas     []string
	Goals           []string
	Strengths       []string
	Challenges      []string
	Insights        []string

	TotalTurns        int
	FirstConversation time.Time
	LastConversation  time.Time

	LastUpdated      time.Time
	TurnsSinceUpdate int
}

// New creates an empty profile for a first-time user.
func New(userID string) *Profile {
	return &Profile{UserID: userID}
}

// Clone returns a deep copy, so extraction can work on scratch state and
// publish atomically.
func (p *Profile) Clone() *Profile {
	c := *p
	c.RecurringThemes = append([]string(nil), p.RecurringThemes...)
	c.GrowthAreas = append([]string(nil), p.GrowthAreas...)
	c.Goals = append([]string(nil), p.Goals...)
	c.Strengths = append([]string(nil), p.Strengths...)
	c.Challenges = append([]string(nil), p.Challenges...)
	c.Insights = append([]string(nil), p.Insights...)
	return &c
}

// Summary renders the profile for prompt injection: personal details
// first, then the most recent entries of each derived set.
func (p *Profile) Summary() string {
	var parts []string

	var personal []string
	if p.Name != "" {
		personal = append(personal, fmt.Sprintf("User's name: %s", p.Name))
	}
	if p.Location != "" {
		personal = append(personal, fmt.Sprintf("Location: %s", p.Location))
	}
	if len(personal) > 0 {
		parts = append(parts, "Personal information: "+strings.Join(personal, ", "))
	}

	if len(p.RecurringThemes) > 0 {
		parts = append(parts, "Recurring themes: "+strings.Join(lastN(p.RecurringThemes, 5), ", "))
	}
	if len(p.GrowthAreas) > 0 {
		parts = append(parts, "Growth areas: "+strings.Join(lastN(p.GrowthAreas, 3), ", "))
	}
	if len(p.Goals) > 0 {
		parts = append(parts, "Current goals: "+strings.Join(lastN(p.Goals, 3), ", "))
	}
	if len(p.Strengths) > 0 {
		parts = append(parts, "Strengths: "+strings.Join(lastN(p.Strengths, 3), ", "))
	}
	if len(p.Challenges) > 0 {
		parts = append(parts, "Challenges: "+strings.Join(lastN(p.Challenges, 3), ", "))
	}
	if len(p.Insights) > 0 {
		parts = append(parts, "Insights: "+strings.Join(lastN(p.Insights, 2), "; "))
	}

	return strings.Join(parts, "\n")
}

func lastN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

// addUnseen appends entries not already present (case-insensitive match),
// preserving observation order. Existing entries are never removed.
func addUnseen(set []string, additions []string) []string {
	for _, add := range additions {
		add = strings.TrimSpace(add)
		if add == "" {
			continue
		}
		seen := false
		for _, existing := range set {
			if strings.EqualFold(existing, add) {
				seen = true
				break
			}
		}
		if !seen {
			set = append(set, add)
		}
	}
	return set
}

// compact collapses near-duplicate phrasings and caps the set size,
// keeping the most recently observed entries. Two entries are
// near-duplicates when most of their words overlap.
func compact(set []string, max int) []string {
	if max <= 0 || len(set) <= max {
		return set
	}

	var collapsed []string
	for _, entry := range set {
		duplicate := false
		for i, kept := range collapsed {
			if nearDuplicate(kept, entry) {
				// Later phrasing wins as canonical: it reflects the most
				// recent observation of the theme.
				collapsed[i] = entry
				duplicate = true
				break
			}
		}
		if !duplicate {
			collapsed = append(collapsed, entry)
		}
	}

	if len(collapsed) > max {
		collapsed = collapsed[len(collapsed)-max:]
	}
	return collapsed
}

// nearDuplicate reports whether a and b phrase the same thing: at least
// half the words of the shorter entry appear in the other.
func nearDuplicate(a, b string) bool {
	wordsA := strings.Fields(strings.ToLower(a))
	wordsB := strings.Fields(strings.ToLower(b))
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return false
	}
	if len(wordsB) < len(wordsA) {
		wordsA, wordsB = wordsB, wordsA
	}
	inB := make(map[string]bool, len(wordsB))
	for _, w := range wordsB {
		inB[w] = true
	}
	matches := 0
	for _, w := range wordsA {
		if inB[w] {
			matches++
		}
	}
	return matches*2 >= len(wordsA)
}
