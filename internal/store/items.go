package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/oprema/internal/model"
)

const itemColumns = `id, name, category, quantity, location, notes, image_source, image_key,
	is_favorite, added_to_inventory_at, created_at, updated_at`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (*model.Item, error) {
	item := &model.Item{}
	var category, location, notes, imageSource, imageKey sql.NullString
	err := sc.Scan(&item.ID, &item.Name, &category, &item.Quantity, &location, &notes,
		&imageSource, &imageKey, &item.Favorite, &item.AddedAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Category = category.String
	item.Location = location.String
	item.Notes = notes.String
	item.ImageSource = imageSource.String
	item.ImageKey = imageKey.String
	return item, nil
}

func getByKey(ctx context.Context, q querier, key string) (*model.Item, error) {
	item, err := scanItem(q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE name_key = ?`, key,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// Get returns the item with the given name (case-insensitive), or nil.
func (s *Store) Get(ctx context.Context, name string) (*model.Item, error) {
	return getByKey(ctx, s.db, model.NameKey(name))
}

// AddOrMerge creates the named item or adds the requested quantity to the
// existing one. An image locator is resolved before the write; failing to
// resolve it never fails the call.
func (s *Store) AddOrMerge(ctx context.Context, req model.AddRequest) (res *model.AddResult, err error) {
	defer func() { s.metrics.Mutation("add", err) }()

	name := model.CleanName(req.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	key := model.NameKey(name)
	category := strings.TrimSpace(req.Category)
	locator := strings.TrimSpace(req.ImageLocator)

	existing, err := getByKey(ctx, s.db, key)
	if err != nil {
		return nil, err
	}

	var imageKey string
	if locator != "" {
		namespace := category
		if existing != nil && existing.Category != "" {
			namespace = existing.Category
		}
		imageKey = s.resolveImage(ctx, name, locator, namespace)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := getByKey(ctx, tx, key)
	if err != nil {
		return nil, err
	}

	now := s.now()
	created := current == nil
	if created {
		qty := model.FloorQuantity(req.Delta())
		var addedAt any
		if qty > 0 {
			addedAt = now
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO items (name, name_key, search_key, category, quantity, location, notes,
			                    image_source, image_key, added_to_inventory_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			name, key, model.SearchKey(name), nullString(category), qty,
			nullString(strings.TrimSpace(req.Location)), nullString(req.Notes),
			nullString(locator), nullString(imageKey), addedAt, now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("creating item: %w", err)
		}
	} else {
		qty := model.FloorQuantity(current.Quantity + req.Delta())
		_, err = tx.ExecContext(ctx,
			`UPDATE items SET
			     quantity     = ?,
			     category     = COALESCE(NULLIF(category, ''), ?),
			     location     = COALESCE(?, location),
			     notes        = COALESCE(?, notes),
			     image_source = COALESCE(?, image_source),
			     image_key    = COALESCE(?, image_key),
			     added_to_inventory_at = COALESCE(added_to_inventory_at, CASE WHEN ? > 0 THEN ? END),
			     updated_at   = ?
			 WHERE id = ?`,
			qty, nullString(category), nullString(strings.TrimSpace(req.Location)),
			nullString(req.Notes), nullString(locator), nullString(imageKey),
			qty, now, now, current.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("merging item: %w", err)
		}
	}

	item, err := getByKey(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("merging item: row vanished")
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing item: %w", err)
	}

	return &model.AddResult{Item: item, Created: created, ImageCached: imageKey != ""}, nil
}

// resolveImage returns the cache key for locator or "" when the image could
// not be cached. Failures are logged, not returned.
func (s *Store) resolveImage(ctx context.Context, name, locator, category string) string {
	if s.images == nil {
		return ""
	}
	key, err := s.images.Resolve(ctx, locator, category, s.fetcher)
	if err != nil {
		s.log.Warn("image not cached", "item", name, "locator", locator, "error", err)
		return ""
	}
	return key
}

// UpdateQuantity sets the quantity directly. Negative values are floored to zero.
func (s *Store) UpdateQuantity(ctx context.Context, name string, quantity int) (err error) {
	defer func() { s.metrics.Mutation("quantity", err) }()

	qty := model.FloorQuantity(quantity)
	now := s.now()
	return s.exec(ctx, "updating quantity",
		`UPDATE items SET
		     quantity = ?,
		     added_to_inventory_at = COALESCE(added_to_inventory_at, CASE WHEN ? > 0 THEN ? END),
		     updated_at = ?
		 WHERE name_key = ?`,
		qty, qty, now, now, model.NameKey(name),
	)
}

// UpdateNotes replaces an item's notes. Empty notes clear them.
func (s *Store) UpdateNotes(ctx context.Context, name, notes string) (err error) {
	defer func() { s.metrics.Mutation("notes", err) }()

	return s.exec(ctx, "updating notes",
		`UPDATE items SET notes = ?, updated_at = ? WHERE name_key = ?`,
		nullString(notes), s.now(), model.NameKey(name),
	)
}

// SetFavorite sets or clears the favorite flag.
func (s *Store) SetFavorite(ctx context.Context, name string, favorite bool) (err error) {
	defer func() { s.metrics.Mutation("favorite", err) }()

	return s.exec(ctx, "setting favorite",
		`UPDATE items SET is_favorite = ?, updated_at = ? WHERE name_key = ?`,
		favorite, s.now(), model.NameKey(name),
	)
}

// AttachImage resolves locator and stores it as the item's image. Unlike
// Add-or-Merge, a failed resolution is returned since it is the whole point
// of the call; the existing image is left untouched.
func (s *Store) AttachImage(ctx context.Context, name, locator string) (item *model.Item, err error) {
	defer func() { s.metrics.Mutation("image", err) }()

	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, fmt.Errorf("attaching image: empty locator")
	}
	if s.images == nil {
		return nil, fmt.Errorf("attaching image: image cache not configured")
	}

	current, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}

	key, err := s.images.Resolve(ctx, locator, current.Category, s.fetcher)
	if err != nil {
		return nil, fmt.Errorf("attaching image: %w", err)
	}

	if err := s.exec(ctx, "attaching image",
		`UPDATE items SET image_source = ?, image_key = ?, updated_at = ? WHERE id = ?`,
		locator, key, s.now(), current.ID,
	); err != nil {
		return nil, err
	}
	return s.Get(ctx, name)
}

// SetImageKey stores an already cached key for an item (used for uploads).
func (s *Store) SetImageKey(ctx context.Context, name, source, key string) (err error) {
	defer func() { s.metrics.Mutation("image", err) }()

	return s.exec(ctx, "setting image",
		`UPDATE items SET image_source = ?, image_key = ?, updated_at = ? WHERE name_key = ?`,
		nullString(source), nullString(key), s.now(), model.NameKey(name),
	)
}

// Delete removes an item. Deleting a missing item is not an error.
func (s *Store) Delete(ctx context.Context, name string) (err error) {
	defer func() { s.metrics.Mutation("delete", err) }()

	_, err = s.db.ExecContext(ctx, `DELETE FROM items WHERE name_key = ?`, model.NameKey(name))
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

// ClearQuantities sets every quantity to zero, keeping the rows.
func (s *Store) ClearQuantities(ctx context.Context) (n int64, err error) {
	defer func() { s.metrics.Mutation("clear", err) }()

	result, err := s.db.ExecContext(ctx,
		`UPDATE items SET quantity = 0, updated_at = ? WHERE quantity != 0`, s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("clearing quantities: %w", err)
	}
	return result.RowsAffected()
}

// DeleteAll removes every item.
func (s *Store) DeleteAll(ctx context.Context) (n int64, err error) {
	defer func() { s.metrics.Mutation("delete_all", err) }()

	result, err := s.db.ExecContext(ctx, `DELETE FROM items`)
	if err != nil {
		return 0, fmt.Errorf("deleting all items: %w", err)
	}
	return result.RowsAffected()
}

// exec runs a single-row mutation and returns ErrNotFound if no row matched.
func (s *Store) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
