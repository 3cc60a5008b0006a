package rules

import "time"

// DefaultRules returns the seed rule set installed into an empty store.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:        "rule_person",
			Name:      "Person",
			Kind:      KindLabelContains,
			Target:    "person",
			Feedback:  []Feedback{{Type: FeedbackText, Content: "Hello! Welcome to the lens."}},
			CreatedAt: time.UnixMilli(1715000000000).UTC(),
		},
		{
			ID:        "rule_cup",
			Name:      "Cup",
			Kind:      KindLabelContains,
			Target:    "cup",
			Feedback:  []Feedback{{Type: FeedbackText, Content: "That's a cup. Remember to drink some water."}},
			CreatedAt: time.UnixMilli(1715000000001).UTC(),
		},
		{
			ID:        "rule_keyboard",
			Name:      "Keyboard",
			Kind:      KindLabelContains,
			Target:    "keyboard",
			Feedback:  []Feedback{{Type: FeedbackText, Content: "Keyboard spotted. Writing code? Keep going!"}},
			CreatedAt: time.UnixMilli(1715000000002).UTC(),
		},
	}
}
