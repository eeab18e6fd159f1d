package repository

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/parish-tools/rosterbot/internal/models"
	"github.com/parish-tools/rosterbot/pkg/errors"
)

// CacheMetrics receives cache activity counters.
type CacheMetrics interface {
	CacheHit(table string)
	CacheMiss(table string)
	CacheRefresh(table string)
}

// TableCache is a read-through, write-through snapshot cache over the remote
// store. Reads serve an immutable snapshot; writes go to the store first and
// then patch or reload the snapshot, so readers always see their own writes.
type TableCache struct {
	store   RemoteStore
	logger  *zap.Logger
	metrics CacheMetrics

	mu     sync.RWMutex
	tables map[string]*models.Table

	writeMu sync.Mutex
	writers map[string]*sync.Mutex
}

// NewTableCache builds an empty cache over the store. Metrics may be nil.
func NewTableCache(store RemoteStore, logger *zap.Logger, metrics CacheMetrics) *TableCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableCache{
		store:   store,
		logger:  logger,
		metrics: metrics,
		tables:  make(map[string]*models.Table),
		writers: make(map[string]*sync.Mutex),
	}
}

// Get returns the cached snapshot, loading it from the store on first use.
func (c *TableCache) Get(ctx context.Context, name string) (*models.Table, error) {
	c.mu.RLock()
	table, ok := c.tables[name]
	c.mu.RUnlock()
	if ok {
		if c.metrics != nil {
			c.metrics.CacheHit(name)
		}
		return table, nil
	}

	if c.metrics != nil {
		c.metrics.CacheMiss(name)
	}
	return c.Refresh(ctx, name)
}

// Snapshot returns the cached table without touching the store.
func (c *TableCache) Snapshot(name string) (*models.Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	table, ok := c.tables[name]
	return table, ok
}

// Refresh reloads one table from the store and swaps the snapshot in one
// step. On failure the previous snapshot, if any, stays in place.
func (c *TableCache) Refresh(ctx context.Context, name string) (*models.Table, error) {
	values, err := c.store.FetchAll(ctx, name)
	if err != nil {
		c.logger.Error("table_refresh_failed", zap.String("table", name), zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrBackingStore.Code, errors.ErrBackingStore.Status, errors.ErrBackingStore.Message)
	}

	table := models.NewTable(name, values)
	c.mu.Lock()
	c.tables[name] = table
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CacheRefresh(name)
	}
	c.logger.Debug("table_refreshed", zap.String("table", name), zap.Int("rows", table.RowCount()))
	return table, nil
}

// RefreshAll reloads every named table, returning the first failure after
// attempting them all.
func (c *TableCache) RefreshAll(ctx context.Context, names []string) error {
	var firstErr error
	for _, name := range names {
		if _, err := c.Refresh(ctx, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EnsureTable creates the sheet with the given header when it does not exist
// yet and loads its snapshot.
func (c *TableCache) EnsureTable(ctx context.Context, name string, headers []string) error {
	unlock := c.lockTable(name)
	defer unlock()

	if err := c.store.CreateSheet(ctx, name, headers); err != nil {
		return errors.Wrap(err, errors.ErrBackingStore.Code, errors.ErrBackingStore.Status, errors.ErrBackingStore.Message)
	}
	_, err := c.Refresh(ctx, name)
	return err
}

// AppendRow writes a row through to the store and extends the snapshot, so
// an immediate re-read includes it.
func (c *TableCache) AppendRow(ctx context.Context, name string, cells []string) (int, error) {
	unlock := c.lockTable(name)
	defer unlock()

	table, err := c.Get(ctx, name)
	if err != nil {
		return 0, err
	}

	rowNumber, err := c.store.AppendRow(ctx, name, cells)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrBackingStore.Code, errors.ErrBackingStore.Status, errors.ErrBackingStore.Message)
	}

	if rowNumber == table.LastRowNumber()+1 {
		c.swap(name, models.NewTable(name, append(table.Values(), cells)))
		return rowNumber, nil
	}

	// Another writer got ahead of the snapshot; reload instead of patching.
	if _, err := c.Refresh(ctx, name); err != nil {
		return rowNumber, err
	}
	return rowNumber, nil
}

// UpdateRow replaces a data row. A row number past the snapshot forces a
// reload before deciding the row truly does not exist.
func (c *TableCache) UpdateRow(ctx context.Context, name string, rowNumber int, cells []string) error {
	unlock := c.lockTable(name)
	defer unlock()

	table, err := c.Get(ctx, name)
	if err != nil {
		return err
	}

	if _, ok := table.Row(rowNumber); !ok {
		if table, err = c.Refresh(ctx, name); err != nil {
			return err
		}
		if _, ok := table.Row(rowNumber); !ok {
			return errors.Clone(errors.ErrNotFound, "row not found")
		}
	}

	if err := c.store.UpdateRow(ctx, name, rowNumber, cells); err != nil {
		return errors.Wrap(err, errors.ErrBackingStore.Code, errors.ErrBackingStore.Status, errors.ErrBackingStore.Message)
	}

	values := table.Values()
	values[rowNumber-1] = cells
	c.swap(name, models.NewTable(name, values))
	return nil
}

// SetCell writes one cell addressed by column name.
func (c *TableCache) SetCell(ctx context.Context, name string, rowNumber int, column, value string) error {
	unlock := c.lockTable(name)
	defer unlock()

	table, err := c.Get(ctx, name)
	if err != nil {
		return err
	}

	colIdx := table.ColumnIndex(column)
	if colIdx < 0 {
		return errors.Clone(errors.ErrNotFound, "column not found")
	}
	if _, ok := table.Row(rowNumber); !ok {
		return errors.Clone(errors.ErrNotFound, "row not found")
	}

	if err := c.store.SetCellValue(ctx, name, rowNumber, colIdx+1, value); err != nil {
		return errors.Wrap(err, errors.ErrBackingStore.Code, errors.ErrBackingStore.Status, errors.ErrBackingStore.Message)
	}

	values := table.Values()
	row := make([]string, len(values[rowNumber-1]))
	copy(row, values[rowNumber-1])
	for len(row) <= colIdx {
		row = append(row, "")
	}
	row[colIdx] = value
	values[rowNumber-1] = row
	c.swap(name, models.NewTable(name, values))
	return nil
}

// AddColumn appends a header column when missing. It reports whether the
// column was added, so repeated calls stay idempotent.
func (c *TableCache) AddColumn(ctx context.Context, name, column string) (bool, error) {
	unlock := c.lockTable(name)
	defer unlock()

	table, err := c.Get(ctx, name)
	if err != nil {
		return false, err
	}
	if table.ColumnIndex(column) >= 0 {
		return false, nil
	}

	newIdx := len(table.Headers) + 1
	if err := c.store.SetCellValue(ctx, name, 1, newIdx, column); err != nil {
		return false, errors.Wrap(err, errors.ErrBackingStore.Code, errors.ErrBackingStore.Status, errors.ErrBackingStore.Message)
	}

	values := table.Values()
	headers := make([]string, len(table.Headers), len(table.Headers)+1)
	copy(headers, table.Headers)
	values[0] = append(headers, column)
	c.swap(name, models.NewTable(name, values))
	return true, nil
}

// DeleteRow removes a row and reloads the snapshot, because every row below
// it shifts up and cached row numbers go stale.
func (c *TableCache) DeleteRow(ctx context.Context, name string, rowNumber int) error {
	unlock := c.lockTable(name)
	defer unlock()

	table, err := c.Get(ctx, name)
	if err != nil {
		return err
	}
	if _, ok := table.Row(rowNumber); !ok {
		return errors.Clone(errors.ErrNotFound, "row not found")
	}

	if err := c.store.DeleteRow(ctx, name, rowNumber); err != nil {
		return errors.Wrap(err, errors.ErrBackingStore.Code, errors.ErrBackingStore.Status, errors.ErrBackingStore.Message)
	}

	_, err = c.Refresh(ctx, name)
	return err
}

// DeleteColumn removes a named column from the sheet and reloads.
func (c *TableCache) DeleteColumn(ctx context.Context, name, column string) error {
	unlock := c.lockTable(name)
	defer unlock()

	table, err := c.Get(ctx, name)
	if err != nil {
		return err
	}
	colIdx := table.ColumnIndex(column)
	if colIdx < 0 {
		return errors.Clone(errors.ErrNotFound, "column not found")
	}

	if err := c.store.DeleteColumn(ctx, name, colIdx+1); err != nil {
		return errors.Wrap(err, errors.ErrBackingStore.Code, errors.ErrBackingStore.Status, errors.ErrBackingStore.Message)
	}

	_, err = c.Refresh(ctx, name)
	return err
}

func (c *TableCache) swap(name string, table *models.Table) {
	c.mu.Lock()
	c.tables[name] = table
	c.mu.Unlock()
}

// lockTable serializes writers per table while leaving readers and other
// tables unblocked.
func (c *TableCache) lockTable(name string) func() {
	c.writeMu.Lock()
	mu, ok := c.writers[name]
	if !ok {
		mu = &sync.Mutex{}
		c.writers[name] = mu
	}
	c.writeMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
