// Package registry loads validator metadata from the validator csv file.
package registry

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	minColumns = 4
	numColumns = 5
)

// ValidatorRecord columns are positional: index, pubkey, bond_type, node, pool_id.
type ValidatorRecord struct {
	Index    string `csv:"index"`
	Pubkey   string `csv:"pubkey"`
	BondType string `csv:"bond_type"`
	Node     string `csv:"node"`
	PoolId   string `csv:"pool_id"`
}

type MalformedInputError struct {
	Line   int
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed validator csv at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed validator csv: %s", e.Reason)
}

type ValidatorRegistry struct {
	path       string
	logger     *zap.Logger
	validators []*ValidatorRecord
	byIndex    map[string]*ValidatorRecord
}

func NewValidatorRegistry(path string, l *zap.Logger) *ValidatorRegistry {
	return &ValidatorRegistry{
		path:    path,
		logger:  l,
		byIndex: make(map[string]*ValidatorRecord),
	}
}

// Load reads the csv file the registry was created with.
func (vr *ValidatorRegistry) Load() ([]*ValidatorRecord, error) {
	f, err := os.Open(vr.path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open validator csv '%s'", vr.path)
	}
	defer f.Close()

	return vr.LoadFromReader(f)
}

func (vr *ValidatorRegistry) LoadFromReader(r io.Reader) ([]*ValidatorRecord, error) {
	rows := newRowReader(r)
	normalized, err := rows.ReadAll()
	if err != nil {
		var malformed *MalformedInputError
		if errors.As(err, &malformed) {
			return nil, malformed
		}
		return nil, errors.Wrap(err, "failed to read validator csv")
	}

	validators := make([]*ValidatorRecord, 0, len(normalized))
	if len(normalized) > 0 {
		if err := gocsv.UnmarshalCSVWithoutHeaders(&bufferedRows{rows: normalized}, &validators); err != nil {
			return nil, errors.Wrap(err, "failed to decode validator csv")
		}
	}

	byIndex := make(map[string]*ValidatorRecord, len(validators))
	for i, v := range validators {
		if _, ok := byIndex[v.Index]; ok {
			return nil, &MalformedInputError{
				Line:   rows.lines[i],
				Reason: fmt.Sprintf("duplicate validator index '%s'", v.Index),
			}
		}
		byIndex[v.Index] = v
	}

	vr.validators = validators
	vr.byIndex = byIndex

	vr.logger.Sugar().Infow("Loaded validators",
		zap.Int("count", len(validators)),
		zap.Int("skipped", rows.skipped),
	)
	return validators, nil
}

func (vr *ValidatorRegistry) Validators() []*ValidatorRecord {
	return vr.validators
}

func (vr *ValidatorRegistry) Len() int {
	return len(vr.validators)
}

func (vr *ValidatorRegistry) Lookup(index string) (*ValidatorRecord, bool) {
	v, ok := vr.byIndex[index]
	return v, ok
}

// Chunk splits validator indices into ordered batches of at most size.
// A non-positive size yields a single batch.
func (vr *ValidatorRegistry) Chunk(size int) [][]string {
	indices := make([]string, 0, len(vr.validators))
	for _, v := range vr.validators {
		indices = append(indices, v.Index)
	}
	if len(indices) == 0 {
		return [][]string{}
	}
	if size <= 0 {
		return [][]string{indices}
	}

	chunks := make([][]string, 0, (len(indices)+size-1)/size)
	for start := 0; start < len(indices); start += size {
		end := start + size
		if end > len(indices) {
			end = len(indices)
		}
		chunks = append(chunks, indices[start:end])
	}
	return chunks
}

// rowReader yields normalized rows: the header is dropped, cells are
// trimmed, rows without an index are skipped and short rows are rejected.
type rowReader struct {
	reader     *csv.Reader
	readHeader bool
	skipped    int
	// source line of every row handed out, in order
	lines []int
}

func newRowReader(r io.Reader) *rowReader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return &rowReader{reader: reader}
}

func (rr *rowReader) Read() ([]string, error) {
	if !rr.readHeader {
		if _, err := rr.reader.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &MalformedInputError{Reason: "missing header row"}
			}
			return nil, err
		}
		rr.readHeader = true
	}

	for {
		record, err := rr.reader.Read()
		if err != nil {
			return nil, err
		}
		line, _ := rr.reader.FieldPos(0)

		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		if len(record) == 0 || record[0] == "" {
			rr.skipped++
			continue
		}
		if len(record) < minColumns {
			return nil, &MalformedInputError{
				Line:   line,
				Reason: fmt.Sprintf("expected at least %d columns, got %d", minColumns, len(record)),
			}
		}

		normalized := make([]string, numColumns)
		copy(normalized, record)
		rr.lines = append(rr.lines, line)
		return normalized, nil
	}
}

func (rr *rowReader) ReadAll() ([][]string, error) {
	rows := make([][]string, 0)
	for {
		row, err := rr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

type bufferedRows struct {
	rows [][]string
	pos  int
}

func (b *bufferedRows) Read() ([]string, error) {
	if b.pos >= len(b.rows) {
		return nil, io.EOF
	}
	row := b.rows[b.pos]
	b.pos++
	return row, nil
}

func (b *bufferedRows) ReadAll() ([][]string, error) {
	rest := b.rows[b.pos:]
	b.pos = len(b.rows)
	return rest, nil
}
