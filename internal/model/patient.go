package model

// Gender of a patient
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Patient is a roster entry owned by a doctor. Doctor is a weak reference
// to an Identity id.
type Patient struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Age         int    `json:"age"`
	Gender      Gender `json:"gender"`
	PhoneNumber string `json:"phoneNumber"`
	Doctor      string `json:"doctor"`
}

// PatientInput is a patient without its generated id.
type PatientInput struct {
	Name        string `json:"name" binding:"required" validate:"required"`
	Age         int    `json:"age" binding:"required,gt=0" validate:"gt=0"`
	Gender      Gender `json:"gender" binding:"required,gender" validate:"required,gender"`
	PhoneNumber string `json:"phoneNumber" binding:"required" validate:"required"`
	Doctor      string `json:"doctor" validate:"required"`
}

// PatientFilter narrows ListPatients. Zero values match everything.
type PatientFilter struct {
	Doctor string `form:"doctor"`
	Search string `form:"search"`
}

// PatientDetail bundles what the patient detail view renders.
type PatientDetail struct {
	Patient      *Patient      `json:"patient"`
	ScanResults  []*ScanResult `json:"scanResults"`
	Distribution []StageCount  `json:"distribution"`
}
