package imagecache

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
)

// SweepResult summarises a derivative sweep.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Derived int `json:"derived"`
	Failed  int `json:"failed"`
}

// Sweep walks every cached original and regenerates missing derivatives.
// Per-file failures are logged and counted, not returned.
func (c *Cache) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	err := filepath.WalkDir(c.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !isOriginal(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(c.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		res.Scanned++

		n, err := c.EnsureDerivatives(key)
		if err != nil {
			res.Failed++
			c.log.Warn("sweep: generating derivatives failed", "key", key, "error", err)
			return nil
		}
		res.Derived += n
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("sweeping cache: %w", err)
	}
	return res, nil
}
