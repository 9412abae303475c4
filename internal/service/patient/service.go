package patient

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jwalitptl/retina-api/internal/model"
	"github.com/jwalitptl/retina-api/internal/repository"
	"github.com/jwalitptl/retina-api/pkg/errors"
	"github.com/jwalitptl/retina-api/pkg/event"
	"github.com/jwalitptl/retina-api/pkg/logger"
	"github.com/jwalitptl/retina-api/pkg/metrics"
	"github.com/jwalitptl/retina-api/pkg/validator"
)

const (
	storeName = "patients"

	patientPrefix = "P"
	scanPrefix    = "S"
)

// Store is the patient and scan record surface.
type Store interface {
	AddPatient(ctx context.Context, in model.PatientInput) (string, error)
	GetPatient(ctx context.Context, id string) (*model.Patient, bool)
	RemovePatient(ctx context.Context, id string) error
	ListPatients(ctx context.Context, filter model.PatientFilter) []*model.Patient

	AddScanResult(ctx context.Context, in model.ScanInput) (string, error)
	GetScanResult(ctx context.Context, id string) (*model.ScanResult, bool)
	GetPatientScanResults(ctx context.Context, patientID string) []*model.ScanResult
	ListScanResults(ctx context.Context) []*model.ScanResult

	DoctorSummary(ctx context.Context, doctorID string, recent int) *model.DoctorSummary
	StageDistribution(ctx context.Context, patientID string) []model.StageCount
	Subscribe(l event.Listener) func()
}

type Config struct {
	// StrictReferences rejects scan results for unknown patients.
	StrictReferences bool
	// Now stamps scan dates. Defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	repo      repository.RecordRepository
	validator validator.Validator
	bus       *event.Bus
	logger    *logger.Logger
	metrics   *metrics.Metrics
	strict    bool
	now       func() time.Time

	mu       sync.RWMutex
	patients []*model.Patient
	scans    []*model.ScanResult
	seq      repository.Sequences
}

var _ Store = (*Service)(nil)

// NewService rehydrates both collections. Missing collections are seeded
// with the demo records and written back.
func NewService(
	ctx context.Context,
	repo repository.RecordRepository,
	v validator.Validator,
	bus *event.Bus,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	cfg Config,
) (*Service, error) {
	s := &Service{
		repo:      repo,
		validator: v,
		bus:       bus,
		logger:    logger,
		metrics:   metrics,
		strict:    cfg.StrictReferences,
		now:       cfg.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	patients, ok, err := repo.LoadPatients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load patients: %w", err)
	}
	if !ok {
		patients = model.DemoPatients()
		if err := repo.SavePatients(ctx, patients); err != nil {
			return nil, fmt.Errorf("failed to seed patients: %w", err)
		}
	}

	scans, ok, err := repo.LoadScanResults(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load scan results: %w", err)
	}
	if !ok {
		scans = model.DemoScanResults()
		if err := repo.SaveScanResults(ctx, scans); err != nil {
			return nil, fmt.Errorf("failed to seed scan results: %w", err)
		}
	}

	seq, ok, err := repo.LoadSequences(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sequences: %w", err)
	}
	floor := repository.Sequences{
		Patients:    maxOrdinal(patientPrefix, patientIDs(patients)),
		ScanResults: maxOrdinal(scanPrefix, scanIDs(scans)),
	}
	if !ok || seq.Patients < floor.Patients || seq.ScanResults < floor.ScanResults {
		seq.Patients = max(seq.Patients, floor.Patients)
		seq.ScanResults = max(seq.ScanResults, floor.ScanResults)
		if err := repo.SaveSequences(ctx, seq); err != nil {
			return nil, fmt.Errorf("failed to save sequences: %w", err)
		}
	}

	s.patients = patients
	s.scans = scans
	s.seq = seq
	s.metrics.Patients.Set(float64(len(patients)))
	s.metrics.ScanResults.Set(float64(len(scans)))

	return s, nil
}

// AddPatient validates in, assigns the next P-number and persists the
// roster before it becomes visible.
func (s *Service) AddPatient(ctx context.Context, in model.PatientInput) (string, error) {
	if err := s.validator.Validate(in); err != nil {
		return "", s.fail("add_patient", errors.BadRequest("invalid patient", err))
	}

	s.mu.Lock()
	seq := s.seq
	seq.Patients++
	p := &model.Patient{
		ID:          formatID(patientPrefix, seq.Patients),
		Name:        strings.TrimSpace(in.Name),
		Age:         in.Age,
		Gender:      in.Gender,
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
		Doctor:      in.Doctor,
	}
	patients := appendCopy(s.patients, p)

	if err := s.repo.SaveSequences(ctx, seq); err != nil {
		s.mu.Unlock()
		return "", s.fail("add_patient", errors.Internal(err))
	}
	if err := s.repo.SavePatients(ctx, patients); err != nil {
		s.restoreSequences(ctx)
		s.mu.Unlock()
		return "", s.fail("add_patient", errors.Internal(err))
	}
	s.seq = seq
	s.patients = patients
	count := len(patients)
	s.mu.Unlock()

	s.metrics.Patients.Set(float64(count))
	s.metrics.ObserveStore(storeName, "add_patient", nil)
	s.logger.Info("Patient added", "patient_id", p.ID, "doctor", p.Doctor)
	s.bus.Publish(event.Event{
		Type:      event.PatientAdded,
		Store:     storeName,
		Operation: "add_patient",
		Payload:   *p,
	})
	return p.ID, nil
}

func (s *Service) GetPatient(_ context.Context, id string) (*model.Patient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.patients {
		if p.ID == id {
			out := *p
			return &out, true
		}
	}
	return nil, false
}

// RemovePatient deletes the patient and every scan result that refers to
// it. Unknown ids are ignored.
func (s *Service) RemovePatient(ctx context.Context, id string) error {
	s.mu.Lock()
	var removed *model.Patient
	patients := make([]*model.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		if p.ID == id {
			removed = p
			continue
		}
		patients = append(patients, p)
	}
	if removed == nil {
		s.mu.Unlock()
		return nil
	}

	scans := make([]*model.ScanResult, 0, len(s.scans))
	for _, r := range s.scans {
		if r.PatientID != id {
			scans = append(scans, r)
		}
	}

	if err := s.repo.SavePatients(ctx, patients); err != nil {
		s.mu.Unlock()
		return s.fail("remove_patient", errors.Internal(err))
	}
	if err := s.repo.SaveScanResults(ctx, scans); err != nil {
		if rbErr := s.repo.SavePatients(ctx, s.patients); rbErr != nil {
			s.logger.Error(rbErr, "Failed to restore patients after scan write failure")
		}
		s.mu.Unlock()
		return s.fail("remove_patient", errors.Internal(err))
	}
	cascaded := len(s.scans) - len(scans)
	s.patients = patients
	s.scans = scans
	pc, sc := len(patients), len(scans)
	s.mu.Unlock()

	s.metrics.Patients.Set(float64(pc))
	s.metrics.ScanResults.Set(float64(sc))
	s.metrics.ObserveStore(storeName, "remove_patient", nil)
	s.logger.Info("Patient removed", "patient_id", id, "scan_results_removed", cascaded)
	s.bus.Publish(event.Event{
		Type:      event.PatientRemoved,
		Store:     storeName,
		Operation: "remove_patient",
		Payload:   *removed,
	})
	return nil
}

// ListPatients filters by owning doctor and a case-insensitive substring
// of name or id. Zero filter fields match everything.
func (s *Service) ListPatients(_ context.Context, filter model.PatientFilter) []*model.Patient {
	term := strings.ToLower(strings.TrimSpace(filter.Search))

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		if filter.Doctor != "" && p.Doctor != filter.Doctor {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(p.Name), term) &&
			!strings.Contains(strings.ToLower(p.ID), term) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// AddScanResult stamps today's UTC date and the next S-number. The patient
// reference is only checked when strict references are enabled.
func (s *Service) AddScanResult(ctx context.Context, in model.ScanInput) (string, error) {
	if err := s.validator.Validate(in); err != nil {
		return "", s.fail("add_scan_result", errors.BadRequest("invalid scan result", err))
	}

	s.mu.Lock()
	if s.strict && !s.hasPatient(in.PatientID) {
		s.mu.Unlock()
		return "", s.fail("add_scan_result",
			errors.BadRequest(fmt.Sprintf("patient %s does not exist", in.PatientID), nil))
	}

	seq := s.seq
	seq.ScanResults++
	r := &model.ScanResult{
		ID:        formatID(scanPrefix, seq.ScanResults),
		PatientID: in.PatientID,
		ImagePath: in.ImagePath,
		Stage:     in.Stage,
		Diagnosis: in.Diagnosis,
		Date:      s.now().UTC().Format(model.DateLayout),
	}
	scans := appendCopy(s.scans, r)

	if err := s.repo.SaveSequences(ctx, seq); err != nil {
		s.mu.Unlock()
		return "", s.fail("add_scan_result", errors.Internal(err))
	}
	if err := s.repo.SaveScanResults(ctx, scans); err != nil {
		s.restoreSequences(ctx)
		s.mu.Unlock()
		return "", s.fail("add_scan_result", errors.Internal(err))
	}
	s.seq = seq
	s.scans = scans
	count := len(scans)
	s.mu.Unlock()

	s.metrics.ScanResults.Set(float64(count))
	s.metrics.ObserveStore(storeName, "add_scan_result", nil)
	s.logger.Info("Scan result added", "scan_id", r.ID, "patient_id", r.PatientID, "stage", int(r.Stage))
	s.bus.Publish(event.Event{
		Type:      event.ScanAdded,
		Store:     storeName,
		Operation: "add_scan_result",
		Payload:   *r,
	})
	return r.ID, nil
}

func (s *Service) GetScanResult(_ context.Context, id string) (*model.ScanResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.scans {
		if r.ID == id {
			out := *r
			return &out, true
		}
	}
	return nil, false
}

// GetPatientScanResults returns matches in insertion order.
func (s *Service) GetPatientScanResults(_ context.Context, patientID string) []*model.ScanResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scansFor(func(r *model.ScanResult) bool { return r.PatientID == patientID })
}

func (s *Service) ListScanResults(_ context.Context) []*model.ScanResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scansFor(func(*model.ScanResult) bool { return true })
}

// DoctorSummary covers the doctor's patients and their scans. The last
// scan date is that of the most recently stored scan; RecentScans holds
// up to recent scans, newest date first.
func (s *Service) DoctorSummary(_ context.Context, doctorID string, recent int) *model.DoctorSummary {
	s.mu.RLock()
	owned := make(map[string]struct{})
	for _, p := range s.patients {
		if p.Doctor == doctorID {
			owned[p.ID] = struct{}{}
		}
	}
	scans := s.scansFor(func(r *model.ScanResult) bool {
		_, ok := owned[r.PatientID]
		return ok
	})
	s.mu.RUnlock()

	summary := &model.DoctorSummary{
		Doctor:       doctorID,
		PatientCount: len(owned),
		ScanCount:    len(scans),
		Distribution: distribution(scans),
	}
	if len(scans) > 0 {
		summary.LastScanDate = scans[len(scans)-1].Date
	}

	sorted := make([]*model.ScanResult, len(scans))
	copy(sorted, scans)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date > sorted[j].Date })
	if recent >= 0 && len(sorted) > recent {
		sorted = sorted[:recent]
	}
	summary.RecentScans = sorted
	return summary
}

// StageDistribution counts a patient's scans per stage, always five entries.
func (s *Service) StageDistribution(ctx context.Context, patientID string) []model.StageCount {
	return distribution(s.GetPatientScanResults(ctx, patientID))
}

func (s *Service) Subscribe(l event.Listener) func() {
	return s.bus.Subscribe(l)
}

// hasPatient must be called with mu held.
func (s *Service) hasPatient(id string) bool {
	for _, p := range s.patients {
		if p.ID == id {
			return true
		}
	}
	return false
}

// scansFor must be called with mu held.
func (s *Service) scansFor(keep func(*model.ScanResult) bool) []*model.ScanResult {
	out := make([]*model.ScanResult, 0)
	for _, r := range s.scans {
		if keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

func (s *Service) fail(op string, err *errors.AppError) error {
	s.metrics.ObserveStore(storeName, op, err)
	s.logger.Warn("Record operation failed", "operation", op, "error", err.Error())
	s.bus.Publish(event.Event{
		Type:      event.OperationFailed,
		Store:     storeName,
		Operation: op,
		Err:       err,
	})
	return err
}

func distribution(scans []*model.ScanResult) []model.StageCount {
	out := make([]model.StageCount, 0, 5)
	for _, d := range model.Stages() {
		out = append(out, model.StageCount{
			Stage: d.Stage,
			Label: fmt.Sprintf("Stage %d", int(d.Stage)),
			Color: d.Color,
		})
	}
	for _, r := range scans {
		if r.Stage.Valid() {
			out[r.Stage].Count++
		}
	}
	if len(scans) > 0 {
		for i := range out {
			out[i].Percent = int(math.Round(float64(out[i].Count) / float64(len(scans)) * 100))
		}
	}
	return out
}

// restoreSequences writes back the committed counters after a failed add.
// Callers hold s.mu.
func (s *Service) restoreSequences(ctx context.Context) {
	if err := s.repo.SaveSequences(ctx, s.seq); err != nil {
		s.logger.Error(err, "Failed to restore sequences after collection write failure")
	}
}

func formatID(prefix string, ordinal int) string {
	return fmt.Sprintf("%s%03d", prefix, ordinal)
}

// maxOrdinal returns the highest numeric suffix among ids with prefix.
func maxOrdinal(prefix string, ids []string) int {
	highest := 0
	for _, id := range ids {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		n, err := strconv.Atoi(id[len(prefix):])
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

func patientIDs(ps []*model.Patient) []string {
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids
}

func scanIDs(rs []*model.ScanResult) []string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return ids
}

func appendCopy[T any](s []T, v T) []T {
	out := make([]T, len(s), len(s)+1)
	copy(out, s)
	return append(out, v)
}
