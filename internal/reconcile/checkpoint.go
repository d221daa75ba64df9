package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryDelay is the polling interval while waiting for the checkpoint
// file lock.
const lockRetryDelay = 100 * time.Millisecond

// Checkpoint records the state of the last completed reconcile run. LargestID
// is the identity cursor the next run resumes from.
type Checkpoint struct {
	RunID       string    `json:"runId"`
	LargestID   int64     `json:"largestId"`
	CompletedAt time.Time `json:"completedAt"`
}

// CheckpointStore persists the checkpoint to a local file. Writes go through
// a temp file and rename so a crash mid-write never leaves a torn
// checkpoint, and a file lock keeps concurrent processes from interleaving.
type CheckpointStore struct {
	path string
	lock *flock.Flock
}

// NewCheckpointStore creates a checkpoint store backed by the given file
// path. The file need not exist yet.
func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Load reads the last persisted checkpoint. A missing file is not an error;
// it reports a nil checkpoint, meaning no run has completed yet.
func (s *CheckpointStore) Load(ctx context.Context) (*Checkpoint, error) {
	locked, err := s.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		// The lock file lives next to the checkpoint, so a missing parent
		// directory means no run has ever saved one.
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock checkpoint file: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("checkpoint file is locked by another process")
	}
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint file %s: %w", s.path, err)
	}

	return &cp, nil
}

// Save persists the checkpoint atomically, replacing any previous one.
func (s *CheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}

	// The directory must exist before the lock file can be opened in it.
	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to lock checkpoint file: %w", err)
	}
	if !locked {
		return fmt.Errorf("checkpoint file is locked by another process")
	}
	defer s.lock.Unlock()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	return nil
}
