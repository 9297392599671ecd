package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"agent-orchestrator/internal/domain"
)

// Store keeps one directory per job under a fixed root. The contract files
// inside it are what completion checks and the operator API read back.
type Store struct {
	root string

	// serializes run.jsonl appends
	mu sync.Mutex
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		root = "artifacts"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifact root: %w", err)
	}
	return &Store{root: root}, nil
}

// safeSegment rejects anything that could escape the root.
func safeSegment(s string) error {
	if s == "" || s == "." || s == ".." {
		return fmt.Errorf("segment %q: %w", s, domain.ErrInvalidArgument)
	}
	if strings.ContainsAny(s, `/\`) || strings.ContainsRune(s, 0) {
		return fmt.Errorf("segment %q: %w", s, domain.ErrInvalidArgument)
	}
	return nil
}

func (s *Store) dir(jobID string) (string, error) {
	if err := safeSegment(jobID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, jobID), nil
}

func (s *Store) EnsureDir(jobID string) (string, error) {
	dir, err := s.dir(jobID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func (s *Store) WriteArtifact(ctx context.Context, jobID, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := safeSegment(name); err != nil {
		return err
	}
	dir, err := s.EnsureDir(jobID)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

func (s *Store) ReadArtifact(ctx context.Context, jobID, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := safeSegment(name); err != nil {
		return nil, err
	}
	dir, err := s.dir(jobID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	return data, err
}

func (s *Store) List(ctx context.Context, jobID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.dir(jobID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (s *Store) AppendRunLog(ctx context.Context, jobID string, entry map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.EnsureDir(jobID)
	if err != nil {
		return err
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(filepath.Join(dir, "run.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
