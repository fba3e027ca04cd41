package localfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Scratch keeps per-job temporary files under basePath/{jobID}.
type Scratch struct {
	basePath string
}

func New(basePath string) (*Scratch, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), "medvoice")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Scratch{basePath: basePath}, nil
}

func (s *Scratch) Path(jobID, name string) (string, error) {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job scratch dir: %w", err)
	}
	return filepath.Join(dir, safeName(name)), nil
}

func (s *Scratch) Write(jobID, name string, data io.Reader) (string, error) {
	path, err := s.Path(jobID, name)
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// Remove deletes one scratch file. A missing file is not an error.
func (s *Scratch) Remove(path string) error {
	if !s.contains(path) {
		return fmt.Errorf("refusing to remove %q outside scratch", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove scratch file: %w", err)
	}
	return nil
}

func (s *Scratch) RemoveJob(jobID string) error {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove job scratch dir: %w", err)
	}
	return nil
}

func (s *Scratch) jobDir(jobID string) (string, error) {
	name := safeName(jobID)
	if name == "" || name == "_" {
		return "", errors.New("job id is required for scratch space")
	}
	return filepath.Join(s.basePath, name), nil
}

func (s *Scratch) contains(path string) bool {
	rel, err := filepath.Rel(s.basePath, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

func safeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		return "_"
	}
	return base
}
