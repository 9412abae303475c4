package model

// StageCount is one bar of a stage distribution chart.
type StageCount struct {
	Stage   Stage  `json:"stage"`
	Label   string `json:"label"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
	Color   string `json:"color"`
}
