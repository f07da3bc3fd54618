package model

import "time"

// Item is one tracked gear piece. Name is unique case-insensitively.
type Item struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Category    string     `json:"category,omitempty"`
	Quantity    int        `json:"quantity"`
	Location    string     `json:"location,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	ImageSource string     `json:"image_source,omitempty"`
	ImageKey    string     `json:"image_key,omitempty"`
	Favorite    bool       `json:"is_favorite"`
	AddedAt     *time.Time `json:"added_to_inventory_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// InInventory reports whether the item is currently owned.
func (i *Item) InInventory() bool {
	return i.Quantity > 0
}

// AddRequest describes one Add-or-Merge call. A nil Quantity means 1.
type AddRequest struct {
	Name         string
	Category     string
	Quantity     *int
	Location     string
	Notes        string
	ImageLocator string
}

// Delta returns the quantity to add, defaulting to 1.
func (r AddRequest) Delta() int {
	if r.Quantity == nil {
		return DefaultQuantity
	}
	return *r.Quantity
}

// AddResult reports the outcome of Add-or-Merge.
type AddResult struct {
	Item        *Item `json:"item"`
	Created     bool  `json:"created"`
	ImageCached bool  `json:"image_cached"`
}

// Images holds servable URLs for an item's cached image variants.
type Images struct {
	Icon   string `json:"icon_url,omitempty"`
	Medium string `json:"medium_url,omitempty"`
	Full   string `json:"full_url,omitempty"`
}

// Stats summarises the inventory.
type Stats struct {
	TotalItems     int            `json:"total_items_in_db"`
	InventoryItems int            `json:"inventory_unique_items"`
	TotalQuantity  int            `json:"total_item_count"`
	CategoryCounts map[string]int `json:"category_counts"`
	CacheSizeBytes int64          `json:"cache_size_bytes"`
}
