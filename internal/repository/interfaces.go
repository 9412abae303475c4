package repository

import (
	"context"

	"github.com/jwalitptl/retina-api/internal/model"
)

// Sequences holds the last ordinal handed out per collection.
type Sequences struct {
	Patients    int `json:"patients"`
	ScanResults int `json:"scanResults"`
}

// SessionRepository persists the signed-in identity and the registration
// roster. Load methods report false when nothing is stored.
type SessionRepository interface {
	LoadCurrent(ctx context.Context) (*model.Identity, bool, error)
	SaveCurrent(ctx context.Context, identity *model.Identity) error
	ClearCurrent(ctx context.Context) error
	LoadRoster(ctx context.Context) ([]model.Identity, bool, error)
	SaveRoster(ctx context.Context, roster []model.Identity) error
}

type PatientRepository interface {
	LoadPatients(ctx context.Context) ([]*model.Patient, bool, error)
	SavePatients(ctx context.Context, patients []*model.Patient) error
}

type ScanResultRepository interface {
	LoadScanResults(ctx context.Context) ([]*model.ScanResult, bool, error)
	SaveScanResults(ctx context.Context, results []*model.ScanResult) error
}

type SequenceRepository interface {
	LoadSequences(ctx context.Context) (Sequences, bool, error)
	SaveSequences(ctx context.Context, seq Sequences) error
}

// RecordRepository is everything the patient store persists.
type RecordRepository interface {
	PatientRepository
	ScanResultRepository
	SequenceRepository
}
