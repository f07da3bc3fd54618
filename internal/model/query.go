package model

// Sort orders for search results.
const (
	SortName     = "name"
	SortQuantity = "quantity"
	SortAdded    = "added"
)

// Query selects items for Search.
type Query struct {
	// Text is matched as a case-insensitive, whitespace-normalised substring of the name.
	Text string
	// IncludeZero returns the full catalog instead of only owned items.
	IncludeZero bool
	Category    string
	Sort        string
	Desc        bool
}

// ValidSort reports whether s names a supported sort order.
func ValidSort(s string) bool {
	switch s {
	case "", SortName, SortQuantity, SortAdded:
		return true
	}
	return false
}
