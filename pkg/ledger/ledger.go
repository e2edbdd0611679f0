// Package ledger persists reward events in a single parquet file.
//
// Every write replaces the whole file with a deduplicated, sorted snapshot.
// Only one process may write a ledger file at a time.
package ledger

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/li-blockchain/rewards-collector/pkg/rewardTypes"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const backupSuffix = ".backup"

type LedgerStore struct {
	path   string
	logger *zap.Logger
}

type MergeResult struct {
	Epoch uint64
	// records removed because they belonged to the merged epoch
	Replaced int
	Added    int
	// records dropped by key deduplication
	Duplicates int
	Total      int
}

type DedupeResult struct {
	Before     int
	After      int
	Removed    int
	BackupPath string
}

func NewLedgerStore(path string, l *zap.Logger) *LedgerStore {
	return &LedgerStore{
		path:   path,
		logger: l,
	}
}

func (ls *LedgerStore) Path() string {
	return ls.path
}

func (ls *LedgerStore) Exists() (bool, error) {
	_, err := os.Stat(ls.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to stat ledger '%s'", ls.path)
}

// Load returns every record in file order. A missing file is an empty ledger.
func (ls *LedgerStore) Load() ([]*rewardTypes.RewardEvent, error) {
	exists, err := ls.Exists()
	if err != nil {
		return nil, err
	}
	if !exists {
		return []*rewardTypes.RewardEvent{}, nil
	}

	if err := ls.checkSchema(); err != nil {
		return nil, err
	}

	rows, err := parquet.ReadFile[ledgerRow](ls.path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read ledger '%s'", ls.path)
	}

	events := make([]*rewardTypes.RewardEvent, 0, len(rows))
	for i, row := range rows {
		e, err := row.toEvent()
		if err != nil {
			return nil, errors.Wrapf(err, "invalid ledger row %d", i)
		}
		events = append(events, e)
	}
	return events, nil
}

func (ls *LedgerStore) checkSchema() error {
	f, err := os.Open(ls.path)
	if err != nil {
		return errors.Wrapf(err, "failed to open ledger '%s'", ls.path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat ledger '%s'", ls.path)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return errors.Wrapf(err, "failed to open ledger '%s'", ls.path)
	}
	if err := checkColumns(pf.Schema()); err != nil {
		return errors.Wrapf(err, "ledger '%s'", ls.path)
	}
	return nil
}

// Merge replaces the records of epoch with newEvents, then deduplicates and
// sorts the whole ledger. Re-running a merge for the same epoch is a no-op.
func (ls *LedgerStore) Merge(newEvents []*rewardTypes.RewardEvent, epoch uint64) (*MergeResult, error) {
	existing, err := ls.Load()
	if err != nil {
		return nil, err
	}

	combined := make([]*rewardTypes.RewardEvent, 0, len(existing)+len(newEvents))
	replaced := 0
	for _, e := range existing {
		if e.Epoch == epoch {
			replaced++
			continue
		}
		combined = append(combined, e)
	}
	combined = append(combined, newEvents...)

	deduped, _ := dedupe(combined)
	sortEvents(deduped)

	if err := ls.write(deduped); err != nil {
		return nil, err
	}

	res := &MergeResult{
		Epoch:      epoch,
		Replaced:   replaced,
		Added:      len(newEvents),
		Duplicates: len(combined) - len(deduped),
		Total:      len(deduped),
	}
	ls.logger.Sugar().Infow("Merged events into ledger",
		zap.Uint64("epoch", epoch),
		zap.Int("replaced", res.Replaced),
		zap.Int("added", res.Added),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("total", res.Total),
	)
	return res, nil
}

// Range returns records with from <= epoch <= to, in ledger order.
func (ls *LedgerStore) Range(from uint64, to uint64) ([]*rewardTypes.RewardEvent, error) {
	events, err := ls.Load()
	if err != nil {
		return nil, err
	}
	filtered := make([]*rewardTypes.RewardEvent, 0)
	for _, e := range events {
		if e.Epoch >= from && e.Epoch <= to {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// MaxEpoch returns the highest epoch in the ledger, false when it is empty.
func (ls *LedgerStore) MaxEpoch() (uint64, bool, error) {
	events, err := ls.Load()
	if err != nil {
		return 0, false, err
	}
	if len(events) == 0 {
		return 0, false, nil
	}
	var max uint64
	for _, e := range events {
		if e.Epoch > max {
			max = e.Epoch
		}
	}
	return max, true, nil
}

// Deduplicate drops repeated keys keeping the first occurrence, without
// re-sorting. With backup set the original file is copied next to it first.
func (ls *LedgerStore) Deduplicate(backup bool) (*DedupeResult, error) {
	exists, err := ls.Exists()
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Errorf("ledger '%s' does not exist", ls.path)
	}

	events, err := ls.Load()
	if err != nil {
		return nil, err
	}

	deduped, removed := dedupe(events)
	res := &DedupeResult{
		Before:  len(events),
		After:   len(deduped),
		Removed: len(removed),
	}

	if len(removed) == 0 {
		ls.logger.Sugar().Infow("No duplicate records found", zap.Int("records", len(events)))
		return res, nil
	}

	sample := make([]string, 0, 10)
	for i := 0; i < len(removed) && i < 10; i++ {
		sample = append(sample, removed[i].Key().String())
	}
	ls.logger.Sugar().Infow("Found duplicate records",
		zap.Int("duplicates", len(removed)),
		zap.Strings("sample", sample),
	)

	if backup {
		res.BackupPath = ls.path + backupSuffix
		if err := copyFile(ls.path, res.BackupPath); err != nil {
			return nil, errors.Wrap(err, "failed to back up ledger")
		}
		ls.logger.Sugar().Infow("Backed up ledger", zap.String("path", res.BackupPath))
	}

	if err := ls.write(deduped); err != nil {
		return nil, err
	}
	return res, nil
}

// dedupe keeps the first event of every key and returns the dropped ones.
func dedupe(events []*rewardTypes.RewardEvent) ([]*rewardTypes.RewardEvent, []*rewardTypes.RewardEvent) {
	seen := make(map[rewardTypes.EventKey]struct{}, len(events))
	kept := make([]*rewardTypes.RewardEvent, 0, len(events))
	removed := make([]*rewardTypes.RewardEvent, 0)
	for _, e := range events {
		key := e.Key()
		if _, ok := seen[key]; ok {
			removed = append(removed, e)
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, e)
	}
	return kept, removed
}

// sortEvents orders by (epoch, kind, validator index), keeping the relative
// order of ties.
func sortEvents(events []*rewardTypes.RewardEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Epoch != b.Epoch {
			return a.Epoch < b.Epoch
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.ValidatorIndex < b.ValidatorIndex
	})
}

// write replaces the ledger atomically: temp file in the same directory,
// fsync, rename.
func (ls *LedgerStore) write(events []*rewardTypes.RewardEvent) error {
	rows := make([]ledgerRow, 0, len(events))
	for _, e := range events {
		row, err := rowFromEvent(e)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	dir := filepath.Dir(ls.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create ledger directory '%s'", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(ls.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary ledger file")
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if err := parquet.Write(tmp, rows, parquet.Compression(&parquet.Snappy)); err != nil {
		cleanup()
		return errors.Wrap(err, "failed to encode ledger")
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return errors.Wrap(err, "failed to sync ledger")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "failed to close ledger")
	}
	if err := os.Rename(tmpPath, ls.path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to replace ledger '%s'", ls.path)
	}
	return nil
}

func copyFile(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
