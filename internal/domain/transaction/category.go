package transaction

import "strings"

// CategorySeparator joins the aggregator's category hierarchy into one string.
const CategorySeparator = " > "

// FlattenCategory joins a category hierarchy such as ["Travel", "Taxi"] into
// "Travel > Taxi". Blank segments are dropped; an empty result is nil.
func FlattenCategory(parts []string) *string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	flat := strings.Join(kept, CategorySeparator)
	return &flat
}
