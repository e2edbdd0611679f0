package ledger

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const CheckpointFileName = ".lastepoch"

func (ls *LedgerStore) CheckpointPath() string {
	return filepath.Join(filepath.Dir(ls.path), CheckpointFileName)
}

// ReadCheckpoint returns the last successfully collected epoch, false when
// no checkpoint has been written yet.
func (ls *LedgerStore) ReadCheckpoint() (uint64, bool, error) {
	contents, err := os.ReadFile(ls.CheckpointPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, errors.Wrap(err, "failed to read checkpoint")
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return 0, false, nil
	}
	epoch, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "invalid checkpoint '%s'", value)
	}
	return epoch, true, nil
}

func (ls *LedgerStore) WriteCheckpoint(epoch uint64) error {
	path := ls.CheckpointPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create checkpoint directory")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatUint(epoch, 10)), 0o644); err != nil {
		return errors.Wrap(err, "failed to write checkpoint")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "failed to replace checkpoint")
	}
	return nil
}
