package domain

import (
	"encoding/json"
)

// WorkflowType distinguishes reasoning traces from custom workflows.
type WorkflowType string

const (
	WorkflowCustom    WorkflowType = "custom"
	WorkflowReasoning WorkflowType = "reasoning"
)

// Workflow is an ordered list of tasks. Tasks are addressed by position.
type Workflow struct {
	Type     WorkflowType    `json:"type"`
	Tasks    []Task          `json:"tasks"`
	Summary  WorkflowSummary `json:"summary"`
	Expanded bool            `json:"expanded"`
}

func (w Workflow) MarshalJSON() ([]byte, error) {
	type wire Workflow
	out := wire(w)
	out.Tasks = nonNil(out.Tasks)
	return json.Marshal(out)
}

// Clone returns a copy whose task slice is not shared with w.
func (w Workflow) Clone() Workflow {
	w.Tasks = append([]Task(nil), w.Tasks...)
	return w
}

// WorkflowSummary is a CustomSummary or a DurationSummary. The wire form is
// untagged; the variant is chosen by which field is present.
type WorkflowSummary interface {
	isWorkflowSummary()
}

type CustomSummary struct {
	Title string  `json:"title"`
	Icon  *string `json:"icon"`
}

// DurationSummary reports how long the workflow ran, in seconds.
type DurationSummary struct {
	Duration int `json:"duration"`
}

func (CustomSummary) isWorkflowSummary()   {}
func (DurationSummary) isWorkflowSummary() {}

// ParseWorkflow parses a workflow.
func ParseWorkflow(data []byte) (Workflow, error) {
	return parseRoot("workflow", data, decodeWorkflow)
}

func decodeWorkflow(d *decoder, path string, raw json.RawMessage) (Workflow, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return Workflow{}, false
	}
	w := Workflow{
		Type:     WorkflowType(o.enum("type", []string{string(WorkflowCustom), string(WorkflowReasoning)}, "")),
		Tasks:    list(o, "tasks", true, decodeTask),
		Expanded: o.boolDefault("expanded", false),
	}
	if raw, ok := o.raw("summary"); ok && !isNull(raw) {
		w.Summary = decodeSummary(d, o.at("summary"), raw)
	}
	return w, len(d.errs) == n
}

func decodeSummary(d *decoder, path string, raw json.RawMessage) WorkflowSummary {
	o, ok := d.object(path, raw)
	if !ok {
		return nil
	}
	if _, ok := o.raw("duration"); ok {
		return DurationSummary{Duration: o.integer("duration")}
	}
	if _, ok := o.raw("title"); ok {
		return CustomSummary{Title: o.str("title"), Icon: o.optStr("icon")}
	}
	d.fail(path, "custom summary {title} or duration summary {duration}", raw)
	return nil
}
