package model

// DemoPatients is written to an empty mirror on first run.
func DemoPatients() []*Patient {
	return []*Patient{
		{ID: "P001", Name: "John Doe", Age: 45, Gender: GenderMale, PhoneNumber: "555-1234", Doctor: "1"},
		{ID: "P002", Name: "Jane Smith", Age: 52, Gender: GenderFemale, PhoneNumber: "555-5678", Doctor: "1"},
	}
}

// DemoScanResults is written to an empty mirror on first run.
func DemoScanResults() []*ScanResult {
	return []*ScanResult{
		{
			ID:        "S001",
			PatientID: "P001",
			ImagePath: "/placeholder.svg",
			Stage:     StageModerate,
			Diagnosis: "Moderate NPDR detected. Some blood vessels that nourish the retina are blocked.",
			Date:      "2025-04-10",
		},
	}
}
