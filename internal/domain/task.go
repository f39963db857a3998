package domain

import (
	"encoding/json"
)

// TaskType discriminates tasks.
type TaskType string

const (
	TaskCustom    TaskType = "custom"
	TaskWebSearch TaskType = "web_search"
	TaskThought   TaskType = "thought"
	TaskFile      TaskType = "file"
	TaskImage     TaskType = "image"
)

var taskTags = []string{
	string(TaskCustom),
	string(TaskWebSearch),
	string(TaskThought),
	string(TaskFile),
	string(TaskImage),
}

// StatusIndicator is the progress badge shown next to a task.
type StatusIndicator string

const (
	IndicatorNone     StatusIndicator = "none"
	IndicatorLoading  StatusIndicator = "loading"
	IndicatorComplete StatusIndicator = "complete"
)

var indicatorValues = []string{string(IndicatorNone), string(IndicatorLoading), string(IndicatorComplete)}

// Task is one step of a workflow or a standalone task item.
type Task interface {
	TaskType() TaskType
	Indicator() StatusIndicator
	isTask()
}

type TaskBase struct {
	StatusIndicator StatusIndicator `json:"status_indicator"`
}

func (b TaskBase) Indicator() StatusIndicator {
	if b.StatusIndicator == "" {
		return IndicatorNone
	}
	return b.StatusIndicator
}

type CustomTask struct {
	TaskBase
	Title   *string `json:"title"`
	Icon    *string `json:"icon"`
	Content *string `json:"content"`
}

type SearchTask struct {
	TaskBase
	Title      *string     `json:"title"`
	TitleQuery *string     `json:"title_query"`
	Queries    []string    `json:"queries"`
	Sources    []URLSource `json:"sources"`
}

type ThoughtTask struct {
	TaskBase
	Title   *string `json:"title"`
	Content string  `json:"content"`
}

type FileTask struct {
	TaskBase
	Title   *string      `json:"title"`
	Sources []FileSource `json:"sources"`
}

type ImageTask struct {
	TaskBase
	Title *string `json:"title"`
}

func (CustomTask) TaskType() TaskType  { return TaskCustom }
func (SearchTask) TaskType() TaskType  { return TaskWebSearch }
func (ThoughtTask) TaskType() TaskType { return TaskThought }
func (FileTask) TaskType() TaskType    { return TaskFile }
func (ImageTask) TaskType() TaskType   { return TaskImage }

func (CustomTask) isTask()  {}
func (SearchTask) isTask()  {}
func (ThoughtTask) isTask() {}
func (FileTask) isTask()    {}
func (ImageTask) isTask()   {}

func (t CustomTask) MarshalJSON() ([]byte, error) {
	type wire CustomTask
	w := wire(t)
	w.StatusIndicator = t.Indicator()
	return tagged(string(TaskCustom), w)
}

func (t SearchTask) MarshalJSON() ([]byte, error) {
	type wire SearchTask
	w := wire(t)
	w.StatusIndicator = t.Indicator()
	w.Queries = nonNil(w.Queries)
	w.Sources = nonNil(w.Sources)
	return tagged(string(TaskWebSearch), w)
}

func (t ThoughtTask) MarshalJSON() ([]byte, error) {
	type wire ThoughtTask
	w := wire(t)
	w.StatusIndicator = t.Indicator()
	return tagged(string(TaskThought), w)
}

func (t FileTask) MarshalJSON() ([]byte, error) {
	type wire FileTask
	w := wire(t)
	w.StatusIndicator = t.Indicator()
	w.Sources = nonNil(w.Sources)
	return tagged(string(TaskFile), w)
}

func (t ImageTask) MarshalJSON() ([]byte, error) {
	type wire ImageTask
	w := wire(t)
	w.StatusIndicator = t.Indicator()
	return tagged(string(TaskImage), w)
}

// ParseTask parses a task.
func ParseTask(data []byte) (Task, error) {
	return parseRoot("task", data, decodeTask)
}

func decodeTask(d *decoder, path string, raw json.RawMessage) (Task, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return nil, false
	}
	tag, ok := o.tag("task", taskTags)
	if !ok {
		return nil, false
	}
	base := TaskBase{
		StatusIndicator: StatusIndicator(o.enum("status_indicator", indicatorValues, string(IndicatorNone))),
	}
	var t Task
	switch TaskType(tag) {
	case TaskCustom:
		t = CustomTask{
			TaskBase: base,
			Title:    o.optStr("title"),
			Icon:     o.optStr("icon"),
			Content:  o.optStr("content"),
		}
	case TaskWebSearch:
		t = SearchTask{
			TaskBase:   base,
			Title:      o.optStr("title"),
			TitleQuery: o.optStr("title_query"),
			Queries:    list(o, "queries", false, stringElem),
			Sources:    list(o, "sources", false, decodeURLSource),
		}
	case TaskThought:
		t = ThoughtTask{
			TaskBase: base,
			Title:    o.optStr("title"),
			Content:  o.str("content"),
		}
	case TaskFile:
		t = FileTask{
			TaskBase: base,
			Title:    o.optStr("title"),
			Sources:  list(o, "sources", false, decodeFileSource),
		}
	case TaskImage:
		t = ImageTask{TaskBase: base, Title: o.optStr("title")}
	}
	return t, len(d.errs) == n
}
