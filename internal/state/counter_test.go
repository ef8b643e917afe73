package state

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "order_count_state.json")
	c := NewCounter(path)

	total, err := c.Total()
	require.NoError(t, err)
	assert.Zero(t, total)

	total, err = c.Add(10)
	require.NoError(t, err)
	assert.EqualValues(t, 10, total)

	total, err = NewCounter(path).Add(5)
	require.NoError(t, err)
	assert.EqualValues(t, 15, total)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_orders": 15}`, string(raw))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestCounter_Concurrent(t *testing.T) {
	c := NewCounter(filepath.Join(t.TempDir(), "c.json"))
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Add(1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	total, err := c.Total()
	require.NoError(t, err)
	assert.EqualValues(t, 20, total)
}

func TestCounter_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewCounter(path).Total()
	assert.ErrorContains(t, err, "state/counter: parse")
}
