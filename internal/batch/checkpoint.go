package batch

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/orgenrich/internal/atomicfile"
)

// Checkpoint records how many input records have committed output.
// Records [0, Processed) are in the snapshot; resume starts at Processed.
type Checkpoint struct {
	Processed   int       `json:"processed"`
	Total       int       `json:"total"`
	InputSHA256 string    `json:"input_sha256"`
	RunID       string    `json:"run_id"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DefaultCheckpointPath returns the checkpoint path paired with output.
func DefaultCheckpointPath(output string) string {
	return output + ".checkpoint.json"
}

// LoadCheckpoint reads the checkpoint at path. A missing file returns
// (nil, nil).
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read checkpoint %s", path)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, eris.Wrapf(err, "batch: decode checkpoint %s", path)
	}
	if cp.Processed < 0 || (cp.Total > 0 && cp.Processed > cp.Total) {
		return nil, eris.Errorf("batch: checkpoint %s has processed=%d of total=%d", path, cp.Processed, cp.Total)
	}
	return &cp, nil
}

// Save writes the checkpoint atomically.
func (c Checkpoint) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return eris.Wrap(err, "batch: encode checkpoint")
	}
	return atomicfile.WriteFile(path, append(data, '\n'), 0o644)
}

// CompatibleWith reports why c cannot resume a run over an input with the
// given fingerprint and length, or nil if it can.
func (c Checkpoint) CompatibleWith(inputSHA256 string, total int) error {
	if c.InputSHA256 != "" && c.InputSHA256 != inputSHA256 {
		return eris.Errorf("batch: checkpoint was written for a different input (sha256 %s, now %s)",
			short(c.InputSHA256), short(inputSHA256))
	}
	if c.Total != 0 && c.Total != total {
		return eris.Errorf("batch: checkpoint total %d does not match input length %d", c.Total, total)
	}
	if c.Processed > total {
		return eris.Errorf("batch: checkpoint processed %d exceeds input length %d", c.Processed, total)
	}
	return nil
}

func short(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
