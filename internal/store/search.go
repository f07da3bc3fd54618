package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/erazemk/oprema/internal/model"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search lists items matching q. Text matching is a case-insensitive
// substring test with all whitespace variants collapsed to one space.
func (s *Store) Search(ctx context.Context, q model.Query) ([]model.Item, error) {
	var (
		where []string
		args  []any
	)
	if !q.IncludeZero {
		where = append(where, "quantity > 0")
	}
	if text := model.SearchKey(q.Text); text != "" {
		where = append(where, `search_key LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(text)+"%")
	}
	if category := strings.TrimSpace(q.Category); category != "" {
		where = append(where, "category = ?")
		args = append(args, category)
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ` + orderBy(q.Sort, q.Desc)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching items: %w", err)
	}
	defer rows.Close()

	items := []model.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// orderBy builds the ORDER BY clause. Unset dates always sort last.
func orderBy(sort string, desc bool) string {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	switch sort {
	case model.SortQuantity:
		return "quantity " + dir + ", name_key ASC"
	case model.SortAdded:
		return "added_to_inventory_at IS NULL, added_to_inventory_at " + dir + ", name_key ASC"
	default:
		return "name_key " + dir + ", id ASC"
	}
}

// ListCategories returns the distinct non-empty categories, sorted.
func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT category FROM items
		 WHERE category IS NOT NULL AND category != ''
		 ORDER BY category`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// Stats summarizes the table. CacheSizeBytes is left for the caller.
func (s *Store) Stats(ctx context.Context) (*model.Stats, error) {
	st := &model.Stats{CategoryCounts: map[string]int{}}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN quantity > 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(quantity), 0)
		 FROM items`,
	).Scan(&st.TotalItems, &st.InventoryItems, &st.TotalQuantity)
	if err != nil {
		return nil, fmt.Errorf("counting items: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, SUM(quantity) FROM items
		 WHERE quantity > 0 AND category IS NOT NULL AND category != ''
		 GROUP BY category`,
	)
	if err != nil {
		return nil, fmt.Errorf("counting categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			category string
			total    int
		)
		if err := rows.Scan(&category, &total); err != nil {
			return nil, fmt.Errorf("scanning category count: %w", err)
		}
		st.CategoryCounts[category] = total
	}
	return st, rows.Err()
}
