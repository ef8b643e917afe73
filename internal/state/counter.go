// Package state holds small JSON documents kept on local disk: the lifetime
// order counter and ledger snapshots.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

type counterDoc struct {
	TotalOrders int64 `json:"total_orders"`
}

// Counter implements domain.OrderCounter on a JSON file of the form
// {"total_orders": N}. A missing file reads as zero.
type Counter struct {
	path string
	mu   sync.Mutex
}

// NewCounter returns a Counter persisted at path.
func NewCounter(path string) *Counter {
	return &Counter{path: path}
}

// Add increments the total by n and returns the new total.
func (c *Counter) Add(n int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return doc.TotalOrders, nil
	}
	doc.TotalOrders += int64(n)
	if err := WriteJSON(c.path, doc); err != nil {
		return 0, fmt.Errorf("state/counter: save: %w", err)
	}
	return doc.TotalOrders, nil
}

// Total returns the persisted total.
func (c *Counter) Total() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return 0, err
	}
	return doc.TotalOrders, nil
}

func (c *Counter) load() (counterDoc, error) {
	b, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return counterDoc{}, nil
		}
		return counterDoc{}, fmt.Errorf("state/counter: read %s: %w", c.path, err)
	}
	var doc counterDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return counterDoc{}, fmt.Errorf("state/counter: parse %s: %w", c.path, err)
	}
	return doc, nil
}

// WriteJSON writes v as indented JSON to path via a temporary file and a
// rename, creating parent directories as needed.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

var _ domain.OrderCounter = (*Counter)(nil)
