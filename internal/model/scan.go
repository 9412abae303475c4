package model

// DateLayout is the calendar date format used for scan dates.
const DateLayout = "2006-01-02"

// ScanResult is one classified retinal image. Date is assigned at
// creation and never edited.
type ScanResult struct {
	ID        string `json:"id"`
	PatientID string `json:"patientId"`
	ImagePath string `json:"imagePath"`
	Stage     Stage  `json:"stage"`
	Diagnosis string `json:"diagnosis"`
	Date      string `json:"date"`
}

// ScanInput is a scan result without id and date.
type ScanInput struct {
	PatientID string `json:"patientId" validate:"required"`
	ImagePath string `json:"imagePath" validate:"required"`
	Stage     Stage  `json:"stage" validate:"stage"`
	Diagnosis string `json:"diagnosis"`
}

// DoctorSummary is the dashboard view of one doctor's records.
type DoctorSummary struct {
	Doctor       string        `json:"doctor"`
	PatientCount int           `json:"patientCount"`
	ScanCount    int           `json:"scanCount"`
	LastScanDate string        `json:"lastScanDate,omitempty"`
	RecentScans  []*ScanResult `json:"recentScans"`
	Distribution []StageCount  `json:"distribution"`
}

// ScanDetail is what the scan result view renders. Patient is nil when
// the referenced patient no longer exists.
type ScanDetail struct {
	ScanResult *ScanResult     `json:"scanResult"`
	Patient    *Patient        `json:"patient,omitempty"`
	Stage      StageDescriptor `json:"stage"`
}
