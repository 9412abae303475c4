package screening

import (
	"bytes"
	"context"
	stderrors "errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/retina-api/internal/model"
	"github.com/jwalitptl/retina-api/internal/repository/snapshot"
	"github.com/jwalitptl/retina-api/internal/service/classifier"
	"github.com/jwalitptl/retina-api/internal/service/patient"
	"github.com/jwalitptl/retina-api/internal/storage"
	"github.com/jwalitptl/retina-api/pkg/errors"
	"github.com/jwalitptl/retina-api/pkg/event"
	"github.com/jwalitptl/retina-api/pkg/logger"
	"github.com/jwalitptl/retina-api/pkg/metrics"
	"github.com/jwalitptl/retina-api/pkg/validator"
)

type stubClassifier struct {
	result *classifier.Classification
	err    error
	calls  []string
	onCall func()
}

func (s *stubClassifier) Classify(_ context.Context, ref string) (*classifier.Classification, error) {
	s.calls = append(s.calls, ref)
	if s.onCall != nil {
		s.onCall()
	}
	return s.result, s.err
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fixture struct {
	workflow   *Workflow
	patients   *patient.Service
	images     *ImageStore
	classifier *stubClassifier
	failures   *[]event.Event
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureOn(t, storage.NewMemory())
}

func newFixtureOn(t *testing.T, kv storage.KV) fixture {
	t.Helper()
	bus := event.NewBus()
	patients, err := patient.NewService(
		context.Background(),
		snapshot.New(kv, logger.Nop()),
		validator.New(),
		bus,
		logger.Nop(),
		metrics.New("test"),
		patient.Config{},
	)
	require.NoError(t, err)

	images, err := NewImageStore(t.TempDir(), 1024)
	require.NoError(t, err)

	stub := &stubClassifier{result: &classifier.Classification{
		Stage:     model.StageSevere,
		Diagnosis: "Severe NPDR",
	}}

	var failures []event.Event
	bus.Subscribe(func(e event.Event) {
		if e.Type == event.OperationFailed {
			failures = append(failures, e)
		}
	})

	return fixture{
		workflow:   NewWorkflow(patients, images, stub, bus, logger.Nop()),
		patients:   patients,
		images:     images,
		classifier: stub,
		failures:   &failures,
	}
}

func doctor() *model.Identity {
	d := model.DemoDoctor()
	return &d
}

func TestAnalyzeStoresScanResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.workflow.Analyze(ctx, doctor(), "P002", bytes.NewReader(pngBytes(t)))
	require.NoError(t, err)
	assert.Equal(t, "S002", result.ID)
	assert.Equal(t, "P002", result.PatientID)
	assert.Equal(t, model.StageSevere, result.Stage)
	assert.Equal(t, "Severe NPDR", result.Diagnosis)
	assert.True(t, strings.HasPrefix(result.ImagePath, URLPrefix+"/"))
	assert.True(t, strings.HasSuffix(result.ImagePath, ".png"))
	assert.Equal(t, []string{result.ImagePath}, f.classifier.calls)

	rc, err := f.images.Open(result.ImagePath)
	require.NoError(t, err)
	defer rc.Close()
	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pngBytes(t), stored)

	assert.Len(t, f.patients.GetPatientScanResults(ctx, "P002"), 1)
	assert.Empty(t, *f.failures)
}

func TestAnalyzeCompletesAfterCallerCancels(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixtureOn(t, storage.NewRedisWithClient(client, "test:"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.classifier.onCall = cancel

	result, err := f.workflow.Analyze(ctx, doctor(), "P002", bytes.NewReader(pngBytes(t)))
	require.NoError(t, err)
	assert.Equal(t, "S002", result.ID)
	assert.Error(t, ctx.Err())

	stored := f.patients.GetPatientScanResults(context.Background(), "P002")
	require.Len(t, stored, 1)
	assert.Equal(t, result.ImagePath, stored[0].ImagePath)
	assert.True(t, mr.Exists("test:"+snapshot.KeyScanResults))
	assert.Empty(t, *f.failures)
}

func TestAnalyzeRejections(t *testing.T) {
	other := model.Identity{ID: "2", Email: "b@example.com", Name: "Dr. B", Role: model.RoleDoctor}
	patientUser := model.Identity{ID: "3", Role: model.RolePatient}

	tests := []struct {
		name      string
		identity  *model.Identity
		patientID string
		image     func(t *testing.T) io.Reader
		target    error
	}{
		{"missing patient", doctor(), "", func(t *testing.T) io.Reader { return bytes.NewReader(pngBytes(t)) }, errors.BadRequestError},
		{"missing image", doctor(), "P001", func(*testing.T) io.Reader { return nil }, errors.BadRequestError},
		{"not a doctor", &patientUser, "P001", func(t *testing.T) io.Reader { return bytes.NewReader(pngBytes(t)) }, errors.AuthorizationError},
		{"unknown patient", doctor(), "P404", func(t *testing.T) io.Reader { return bytes.NewReader(pngBytes(t)) }, errors.NotFoundError},
		{"someone else's patient", &other, "P001", func(t *testing.T) io.Reader { return bytes.NewReader(pngBytes(t)) }, errors.NotFoundError},
		{"not an image", doctor(), "P001", func(*testing.T) io.Reader { return strings.NewReader("%PDF-1.4 fake") }, errors.BadRequestError},
		{"too large", doctor(), "P001", func(*testing.T) io.Reader { return bytes.NewReader(make([]byte, 2048)) }, errors.BadRequestError},
		{"empty", doctor(), "P001", func(*testing.T) io.Reader { return bytes.NewReader(nil) }, errors.BadRequestError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.workflow.Analyze(context.Background(), tt.identity, tt.patientID, tt.image(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.Empty(t, f.classifier.calls)
			assert.Len(t, f.patients.ListScanResults(context.Background()), 1)
			assert.Len(t, *f.failures, 1)
		})
	}
}

func TestAnalyzeClassifierFailure(t *testing.T) {
	f := newFixture(t)
	f.classifier.result = nil
	f.classifier.err = stderrors.New("model offline")

	_, err := f.workflow.Analyze(context.Background(), doctor(), "P001", bytes.NewReader(pngBytes(t)))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.InternalError)

	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, MsgProcessingError, appErr.Message)
	assert.Len(t, f.patients.ListScanResults(context.Background()), 1)
	require.Len(t, *f.failures, 1)
	assert.Equal(t, storeName, (*f.failures)[0].Store)
}

func TestImageStoreOpenRejectsTraversal(t *testing.T) {
	images, err := NewImageStore(t.TempDir(), 1024)
	require.NoError(t, err)

	for _, ref := range []string{"", "/etc/passwd", URLPrefix + "/../secret", URLPrefix + "/missing.png"} {
		_, err := images.Open(ref)
		assert.ErrorIs(t, err, errors.NotFoundError, ref)
	}
}
