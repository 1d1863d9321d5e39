// Package curation reads and appends the administrative curation file and
// runs the exclusion pass of a rebuild. Curation never patches a live
// snapshot; entries take effect on the next full rebuild.
package curation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bobmatnyc/the-island-sub004/internal/util"
	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"

	"github.com/go-playground/validator"
	"gopkg.in/yaml.v3"
)

// Exclusion removes an entity from the next rebuild. It matches by ID, or
// by name (canonical name or alias), optionally narrowed to one type.
type Exclusion struct {
	ID           string            `json:"id,omitempty" yaml:"id,omitempty"`
	Name         string            `json:"name,omitempty" yaml:"name,omitempty"`
	EntityType   common.EntityType `json:"entity_type,omitempty" yaml:"entity_type,omitempty"`
	Reason       string            `json:"reason" yaml:"reason" validate:"required"`
	SubmissionID string            `json:"submission_id,omitempty" yaml:"submission_id,omitempty"`
	Timestamp    string            `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// File is the curation file: curated aliases and exclusions.
type File struct {
	Aliases    []common.AliasMapping `json:"aliases" yaml:"aliases"`
	Exclusions []Exclusion           `json:"exclusions" yaml:"exclusions"`
}

var validate = validator.New()

// Validate checks every entry.
func (f File) Validate() error {
	for i, a := range f.Aliases {
		if err := validate.Struct(a); err != nil {
			return fmt.Errorf("%w: alias %d: %v", common.ErrMalformedInput, i, err)
		}
		if a.EntityType != "" && !a.EntityType.Valid() {
			return fmt.Errorf("%w: alias %d: unknown entity type %q", common.ErrMalformedInput, i, a.EntityType)
		}
	}
	for i, x := range f.Exclusions {
		if err := validate.Struct(x); err != nil {
			return fmt.Errorf("%w: exclusion %d: %v", common.ErrMalformedInput, i, err)
		}
		if x.ID == "" && x.Name == "" {
			return fmt.Errorf("%w: exclusion %d needs an id or a name", common.ErrMalformedInput, i)
		}
		if x.EntityType != "" && !x.EntityType.Valid() {
			return fmt.Errorf("%w: exclusion %d: unknown entity type %q", common.ErrMalformedInput, i, x.EntityType)
		}
	}
	return nil
}

// Parse decodes and validates a curation file.
func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("failed to parse curation file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Load reads path. A missing file is an empty curation file.
func Load(path string) (File, error) {
	if path == "" {
		return File{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("[Curation] No curation file, continuing without", "path", path)
		return File{}, nil
	}
	if err != nil {
		return File{}, fmt.Errorf("failed to read curation file: %w", err)
	}
	return Parse(data)
}

var appendMu sync.Mutex

// Append validates add, stamps it with a submission id and timestamp, and
// writes the merged file back atomically. It returns the submission id.
func Append(path string, add File, at time.Time) (string, error) {
	if err := add.Validate(); err != nil {
		return "", err
	}
	submission, err := util.NewRunID()
	if err != nil {
		return "", err
	}

	appendMu.Lock()
	defer appendMu.Unlock()

	cur, err := Load(path)
	if err != nil {
		return "", err
	}

	stamp := at.UTC().Format(time.RFC3339)
	for _, a := range add.Aliases {
		if a.Timestamp == "" {
			a.Timestamp = stamp
		}
		a.Provenance = common.ProvenanceCurated
		cur.Aliases = append(cur.Aliases, a)
	}
	for _, x := range add.Exclusions {
		x.SubmissionID = submission
		if x.Timestamp == "" {
			x.Timestamp = stamp
		}
		cur.Exclusions = append(cur.Exclusions, x)
	}

	data, err := yaml.Marshal(cur)
	if err != nil {
		return "", fmt.Errorf("failed to encode curation file: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	logger.Info("[Curation] Entries appended", "path", path, "submission", submission,
		"aliases", len(add.Aliases), "exclusions", len(add.Exclusions))
	return submission, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create curation dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".curation-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write curation file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write curation file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync curation file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
