// Package snapshot stores each collection as one JSON document in the
// persisted mirror.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/retina-api/internal/model"
	"github.com/jwalitptl/retina-api/internal/repository"
	"github.com/jwalitptl/retina-api/internal/storage"
	"github.com/jwalitptl/retina-api/pkg/logger"
)

// Mirror keys.
const (
	KeyUser        = "user"
	KeyPatients    = "patients"
	KeyScanResults = "scanResults"
	KeyUsers       = "users"
	KeySequences   = "sequences"
)

type Repository struct {
	kv     storage.KV
	logger *logger.Logger
}

var (
	_ repository.SessionRepository = (*Repository)(nil)
	_ repository.RecordRepository  = (*Repository)(nil)
)

func New(kv storage.KV, logger *logger.Logger) *Repository {
	return &Repository{kv: kv, logger: logger}
}

// load decodes key into v. A value that does not decode is reported as
// absent so the caller falls back to its defaults.
func (r *Repository) load(ctx context.Context, key string, v interface{}) (bool, error) {
	raw, ok, err := r.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		r.logger.Warn("Ignoring unreadable persisted value", "key", key, "error", err.Error())
		return false, nil
	}
	return true, nil
}

// withoutNil drops null entries from a decoded collection.
func withoutNil[T any](r *Repository, key string, items []*T) []*T {
	out := items[:0]
	for _, item := range items {
		if item != nil {
			out = append(out, item)
		}
	}
	if dropped := len(items) - len(out); dropped > 0 {
		r.logger.Warn("Ignoring null persisted entries", "key", key, "count", dropped)
	}
	return out
}

func (r *Repository) save(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := r.kv.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (r *Repository) LoadCurrent(ctx context.Context) (*model.Identity, bool, error) {
	var identity model.Identity
	ok, err := r.load(ctx, KeyUser, &identity)
	if err != nil || !ok {
		return nil, false, err
	}
	return &identity, true, nil
}

func (r *Repository) SaveCurrent(ctx context.Context, identity *model.Identity) error {
	return r.save(ctx, KeyUser, identity)
}

func (r *Repository) ClearCurrent(ctx context.Context) error {
	if err := r.kv.Delete(ctx, KeyUser); err != nil {
		return fmt.Errorf("failed to clear %s: %w", KeyUser, err)
	}
	return nil
}

func (r *Repository) LoadRoster(ctx context.Context) ([]model.Identity, bool, error) {
	var roster []model.Identity
	ok, err := r.load(ctx, KeyUsers, &roster)
	return roster, ok, err
}

func (r *Repository) SaveRoster(ctx context.Context, roster []model.Identity) error {
	return r.save(ctx, KeyUsers, roster)
}

func (r *Repository) LoadPatients(ctx context.Context) ([]*model.Patient, bool, error) {
	var patients []*model.Patient
	ok, err := r.load(ctx, KeyPatients, &patients)
	return withoutNil(r, KeyPatients, patients), ok, err
}

func (r *Repository) SavePatients(ctx context.Context, patients []*model.Patient) error {
	if patients == nil {
		patients = []*model.Patient{}
	}
	return r.save(ctx, KeyPatients, patients)
}

func (r *Repository) LoadScanResults(ctx context.Context) ([]*model.ScanResult, bool, error) {
	var results []*model.ScanResult
	ok, err := r.load(ctx, KeyScanResults, &results)
	return withoutNil(r, KeyScanResults, results), ok, err
}

func (r *Repository) SaveScanResults(ctx context.Context, results []*model.ScanResult) error {
	if results == nil {
		results = []*model.ScanResult{}
	}
	return r.save(ctx, KeyScanResults, results)
}

func (r *Repository) LoadSequences(ctx context.Context) (repository.Sequences, bool, error) {
	var seq repository.Sequences
	ok, err := r.load(ctx, KeySequences, &seq)
	return seq, ok, err
}

func (r *Repository) SaveSequences(ctx context.Context, seq repository.Sequences) error {
	return r.save(ctx, KeySequences, seq)
}
