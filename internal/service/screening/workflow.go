package screening

import (
	"context"
	"io"

	"github.com/jwalitptl/retina-api/internal/model"
	"github.com/jwalitptl/retina-api/internal/service/classifier"
	"github.com/jwalitptl/retina-api/internal/service/patient"
	"github.com/jwalitptl/retina-api/pkg/errors"
	"github.com/jwalitptl/retina-api/pkg/event"
	"github.com/jwalitptl/retina-api/pkg/logger"
)

const storeName = "screening"

// Messages shown when an upload cannot be analysed.
const (
	MsgMissingInput    = "Please select a patient and upload an image"
	MsgProcessingError = "An error occurred while processing the scan"
)

// Workflow turns an uploaded image into a stored scan result.
type Workflow struct {
	patients   patient.Store
	images     *ImageStore
	classifier classifier.Classifier
	bus        *event.Bus
	logger     *logger.Logger
}

func NewWorkflow(
	patients patient.Store,
	images *ImageStore,
	c classifier.Classifier,
	bus *event.Bus,
	logger *logger.Logger,
) *Workflow {
	return &Workflow{
		patients:   patients,
		images:     images,
		classifier: c,
		bus:        bus,
		logger:     logger,
	}
}

// Analyze stores image for one of doctor's patients, classifies it and
// records the result.
func (w *Workflow) Analyze(ctx context.Context, doctor *model.Identity, patientID string, image io.Reader) (*model.ScanResult, error) {
	if patientID == "" || image == nil {
		return nil, w.fail(errors.BadRequest(MsgMissingInput, nil))
	}
	if !doctor.IsDoctor() {
		return nil, w.fail(errors.Authorization("only doctors can upload scans"))
	}

	p, ok := w.patients.GetPatient(ctx, patientID)
	if !ok || p.Doctor != doctor.ID {
		return nil, w.fail(errors.NotFound("patient", nil))
	}

	ref, err := w.images.Save(ctx, image)
	if err != nil {
		return nil, w.fail(asAppError(err))
	}
	// Once the image is on disk the scan is recorded even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	outcome := <-classifier.Submit(ctx, w.classifier, ref)
	if outcome.Err != nil {
		w.logger.Error(outcome.Err, "Classification failed", "patient_id", patientID, "image", ref)
		return nil, w.fail(&errors.AppError{Code: errors.ErrInternal, Message: MsgProcessingError, Err: outcome.Err})
	}

	id, err := w.patients.AddScanResult(ctx, model.ScanInput{
		PatientID: patientID,
		ImagePath: ref,
		Stage:     outcome.Classification.Stage,
		Diagnosis: outcome.Classification.Diagnosis,
	})
	if err != nil {
		// the store has already reported its own failure
		return nil, err
	}

	result, ok := w.patients.GetScanResult(ctx, id)
	if !ok {
		return nil, errors.NotFound("scan result", nil)
	}
	w.logger.Info("Scan analysed", "scan_id", id, "patient_id", patientID, "stage", int(result.Stage))
	return result, nil
}

func (w *Workflow) fail(err *errors.AppError) error {
	w.bus.Publish(event.Event{
		Type:      event.OperationFailed,
		Store:     storeName,
		Operation: "analyze",
		Err:       err,
	})
	return err
}

func asAppError(err error) *errors.AppError {
	if appErr, ok := errors.As(err); ok {
		return appErr
	}
	return errors.Internal(err)
}
