package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// StateDirName is the directory, relative to the working directory, that
// holds all persisted sweep state.
const StateDirName = ".awacsweep"

const (
	runFile        = "run.json"
	failureFile    = "failure.json"
	checkpointsDir = "checkpoints"
)

// Store keeps sweep records under
//
//	<baseDir>/.awacsweep/runs/<run-id>/
//	    run.json
//	    failure.json
//	    checkpoints/<exp_name>.json
//
// Every record is validated before it is written and after it is read.
// Writes replace the file atomically and sync it and its directory.
type Store struct {
	root string
}

// record is any document the store persists.
type record interface {
	Validate() error
}

func NewStore(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("baseDir is required")
	}
	return &Store{root: filepath.Join(baseDir, StateDirName, "runs")}, nil
}

// ListRunIDs returns the IDs of all runs on disk, sorted.
func (s *Store) ListRunIDs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// path joins a run-relative path, refusing IDs that would escape the store.
func (s *Store) path(runID string, elem ...string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", errors.New("runID is required")
	}
	if strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("invalid runID %q", runID)
	}
	return filepath.Join(append([]string{s.root, runID}, elem...)...), nil
}

func (s *Store) SaveRun(run Run) error {
	p, err := s.path(run.RunID, runFile)
	if err != nil {
		return err
	}
	return s.write(p, "run", run)
}

func (s *Store) LoadRun(runID string) (Run, error) {
	var run Run
	p, err := s.path(runID, runFile)
	if err != nil {
		return Run{}, err
	}
	return run, s.read(p, "run", &run)
}

func (s *Store) SaveCheckpoint(runID string, cp Checkpoint) error {
	p, err := s.path(runID, checkpointsDir, cp.ExpName+".json")
	if err != nil {
		return err
	}
	return s.write(p, "checkpoint", cp)
}

// LoadCheckpoint reads the checkpoint of one job; the file name must agree
// with the exp_name it holds.
func (s *Store) LoadCheckpoint(runID, expName string) (Checkpoint, error) {
	var cp Checkpoint
	if strings.TrimSpace(expName) == "" {
		return Checkpoint{}, errors.New("expName is required")
	}
	p, err := s.path(runID, checkpointsDir, expName+".json")
	if err != nil {
		return Checkpoint{}, err
	}
	if err := s.read(p, "checkpoint", &cp); err != nil {
		return Checkpoint{}, err
	}
	if cp.ExpName != expName {
		return Checkpoint{}, fmt.Errorf("checkpoint file %s.json holds exp_name %q", expName, cp.ExpName)
	}
	return cp, nil
}

// LoadAllCheckpoints loads every checkpoint of a run, ordered by job index.
func (s *Store) LoadAllCheckpoints(runID string) ([]Checkpoint, error) {
	dir, err := s.path(runID, checkpointsDir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Checkpoint{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]Checkpoint, 0, len(entries))
	for _, e := range entries {
		expName, ok := strings.CutSuffix(e.Name(), ".json")
		if e.IsDir() || !ok || expName == "" {
			continue
		}
		cp, err := s.LoadCheckpoint(runID, expName)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *Store) SaveFailure(runID string, f Failure) error {
	p, err := s.path(runID, failureFile)
	if err != nil {
		return err
	}
	return s.write(p, "failure", f)
}

// LoadFailure returns an error satisfying errors.Is(err, fs.ErrNotExist)
// when the run has no failure record.
func (s *Store) LoadFailure(runID string) (Failure, error) {
	var f Failure
	p, err := s.path(runID, failureFile)
	if err != nil {
		return Failure{}, err
	}
	return f, s.read(p, "failure", &f)
}

func (s *Store) write(path, kind string, rec record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid %s: %w", kind, err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	if err := replaceFile(path, append(data, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	return nil
}

// read decodes a single JSON document, rejecting unknown fields and
// trailing content.
func (s *Store) read(path, kind string, rec record) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(rec); err != nil {
		return fmt.Errorf("decode %s %s: %w", kind, path, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("decode %s %s: trailing content", kind, path)
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid %s on disk: %w", kind, err)
	}
	return nil
}

// replaceFile writes data to a temp file next to path, syncs it, renames
// it over path and syncs the directory. New directories are synced up to
// the first one that already existed.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	created, err := mkdirAllReporting(dir)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	for _, d := range append([]string{dir}, created...) {
		if err := syncDir(d); err != nil {
			return err
		}
	}
	return nil
}

// mkdirAllReporting creates dir and returns the parents of every directory
// it had to create, so that the new entries can be synced.
func mkdirAllReporting(dir string) ([]string, error) {
	var missing []string
	for d := dir; ; d = filepath.Dir(d) {
		if _, err := os.Stat(d); err == nil || filepath.Dir(d) == d {
			break
		}
		missing = append(missing, filepath.Dir(d))
	}
	if len(missing) == 0 {
		return nil, nil
	}
	return missing, os.MkdirAll(dir, 0o755)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
