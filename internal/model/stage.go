package model

import "fmt"

// Stage is the diabetic retinopathy severity, 0 (none) to 4 (proliferative).
type Stage int

const (
	StageNone Stage = iota
	StageMild
	StageModerate
	StageSevere
	StageProliferative
)

// Valid reports whether s is one of the five defined stages.
func (s Stage) Valid() bool {
	return s >= StageNone && s <= StageProliferative
}

func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageTable[s].Name
}

// StageDescriptor is the static reference entry for a stage.
type StageDescriptor struct {
	Stage       Stage  `json:"stage"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	ColorClass  string `json:"colorClass"`
}

var stageTable = [...]StageDescriptor{
	{
		Stage:       StageNone,
		Name:        "No DR",
		Description: "No abnormalities detected. The retina appears healthy with no visible signs of diabetic retinopathy.",
		Color:       "#34D399",
		ColorClass:  "bg-stage0",
	},
	{
		Stage:       StageMild,
		Name:        "Mild NPDR",
		Description: "Mild Non-Proliferative Diabetic Retinopathy. Small areas of balloon-like swelling in the retina's tiny blood vessels.",
		Color:       "#FBBF24",
		ColorClass:  "bg-stage1",
	},
	{
		Stage:       StageModerate,
		Name:        "Moderate NPDR",
		Description: "Moderate Non-Proliferative Diabetic Retinopathy. As the disease progresses, some blood vessels that nourish the retina become blocked.",
		Color:       "#F97316",
		ColorClass:  "bg-stage2",
	},
	{
		Stage:       StageSevere,
		Name:        "Severe NPDR",
		Description: "Severe Non-Proliferative Diabetic Retinopathy. Many more blood vessels are blocked, depriving several areas of the retina of their blood supply.",
		Color:       "#EF4444",
		ColorClass:  "bg-stage3",
	},
	{
		Stage:       StageProliferative,
		Name:        "PDR",
		Description: "Proliferative Diabetic Retinopathy. The most advanced stage where new, fragile blood vessels grow in response to the retina being deprived of oxygen.",
		Color:       "#DC2626",
		ColorClass:  "bg-stage4",
	},
}

// Stages returns a copy of the reference table, ordered by stage.
func Stages() []StageDescriptor {
	out := make([]StageDescriptor, len(stageTable))
	copy(out, stageTable[:])
	return out
}

// StageInfo looks up the descriptor for s.
func StageInfo(s Stage) (StageDescriptor, bool) {
	if !s.Valid() {
		return StageDescriptor{}, false
	}
	return stageTable[s], true
}
