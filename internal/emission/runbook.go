package emission

// RunbookStep is one entry of the immutable investigation template.
type RunbookStep struct {
	ID    string
	Label string
}

var defaultRunbook = []RunbookStep{
	{ID: "site-safety", Label: "Confirm site safety and isolate equipment"},
	{ID: "quantify", Label: "Capture follow-up quantification reading"},
	{ID: "notify-ops", Label: "Notify operator and environmental lead"},
	{ID: "mitigation-plan", Label: "Draft mitigation & monitoring plan"},
}

// runbookTemplates is indexed by detection type. Every type currently shares one procedure.
var runbookTemplates = map[DetectionType][]RunbookStep{
	DetectionSatellite:  defaultRunbook,
	DetectionOGI:        defaultRunbook,
	DetectionContinuous: defaultRunbook,
}

// RunbookTemplate returns a copy of the checklist for a detection type.
func RunbookTemplate(t DetectionType) []RunbookStep {
	steps, ok := runbookTemplates[t]
	if !ok {
		return nil
	}
	out := make([]RunbookStep, len(steps))
	copy(out, steps)
	return out
}

// NewRunbook instantiates the template for a detection type with nothing completed.
func NewRunbook(t DetectionType) []RunbookItem {
	steps := RunbookTemplate(t)
	items := make([]RunbookItem, 0, len(steps))
	for _, s := range steps {
		items = append(items, RunbookItem{ID: s.ID, Label: s.Label})
	}
	return items
}
