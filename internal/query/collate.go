package query

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortByName orders items by name using the collation rules of locale,
// ignoring case. Unknown locales fall back to the root collation.
func SortByName[T any](items []T, name func(T) string, locale string) {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Und
	}
	collator := collate.New(tag, collate.IgnoreCase)
	sort.SliceStable(items, func(i, j int) bool {
		return collator.CompareString(name(items[i]), name(items[j])) < 0
	})
}
