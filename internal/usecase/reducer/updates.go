package reducer

import (
	"fmt"

	"chatkit/internal/domain"
)

// applyUpdate mutates the cloned entry e. Every index-addressed change is
// an append at the running count or a replacement in place.
func applyUpdate(e *entry, u domain.ThreadItemUpdate) error {
	switch up := u.(type) {
	case domain.ContentPartAdded:
		return updateAssistant(e, func(msg *domain.AssistantMessageItem) error {
			if up.ContentIndex != len(msg.Content) {
				return fmt.Errorf("%w: content_index %d, have %d parts", domain.ErrOutOfOrderIndex, up.ContentIndex, len(msg.Content))
			}
			msg.Content = append(msg.Content, up.Content.Clone())
			return nil
		})

	case domain.ContentPartTextDelta:
		return updateAssistant(e, func(msg *domain.AssistantMessageItem) error {
			if err := openPart(e, msg, up.ContentIndex); err != nil {
				return err
			}
			part := msg.Content[up.ContentIndex].Clone()
			part.Text += up.Delta
			msg.Content[up.ContentIndex] = part
			return nil
		})

	case domain.ContentPartAnnotationAdded:
		return updateAssistant(e, func(msg *domain.AssistantMessageItem) error {
			if err := openPart(e, msg, up.ContentIndex); err != nil {
				return err
			}
			part := msg.Content[up.ContentIndex].Clone()
			if up.AnnotationIndex != len(part.Annotations) {
				return fmt.Errorf("%w: annotation_index %d, have %d annotations",
					domain.ErrOutOfOrderIndex, up.AnnotationIndex, len(part.Annotations))
			}
			part.Annotations = append(part.Annotations, up.Annotation)
			msg.Content[up.ContentIndex] = part
			return nil
		})

	case domain.ContentPartDone:
		return updateAssistant(e, func(msg *domain.AssistantMessageItem) error {
			if up.ContentIndex < 0 || up.ContentIndex >= len(msg.Content) {
				return fmt.Errorf("%w: content_index %d, have %d parts", domain.ErrUnknownContentIndex, up.ContentIndex, len(msg.Content))
			}
			msg.Content[up.ContentIndex] = up.Content.Clone()
			if e.closedPart == nil {
				e.closedPart = make(map[int]bool)
			}
			e.closedPart[up.ContentIndex] = true
			return nil
		})

	case domain.WidgetStreamingTextValueDelta:
		return updateWidget(e, func(w *domain.WidgetItem) error {
			if e.closedComp[up.ComponentID] {
				return fmt.Errorf("%w: %s", domain.ErrComponentClosed, up.ComponentID)
			}
			root, err := w.Widget.Update(up.ComponentID, func(c domain.WidgetComponent) (domain.WidgetComponent, error) {
				if c.Streaming != nil && !*c.Streaming {
					return c, fmt.Errorf("%w: %s is not streaming", domain.ErrComponentClosed, up.ComponentID)
				}
				var v string
				if c.Value != nil {
					v = *c.Value
				}
				v += up.Delta
				c.Value = &v
				if up.Done && c.Streaming != nil {
					c.Streaming = domain.Ptr(false)
				}
				return c, nil
			})
			if err != nil {
				return err
			}
			w.Widget = root
			if up.Done {
				if e.closedComp == nil {
					e.closedComp = make(map[string]bool)
				}
				e.closedComp[up.ComponentID] = true
			}
			return nil
		})

	case domain.WidgetRootUpdated:
		return updateWidget(e, func(w *domain.WidgetItem) error {
			w.Widget = up.Widget.Clone()
			e.closedComp = nil
			return nil
		})

	case domain.WidgetComponentUpdated:
		return updateWidget(e, func(w *domain.WidgetItem) error {
			replacement := up.Component.Clone()
			root, err := w.Widget.Update(up.ComponentID, func(domain.WidgetComponent) (domain.WidgetComponent, error) {
				return replacement, nil
			})
			if err != nil {
				return err
			}
			w.Widget = root
			delete(e.closedComp, up.ComponentID)
			return nil
		})

	case domain.WorkflowTaskAdded:
		return updateWorkflow(e, func(wf *domain.Workflow) error {
			if up.TaskIndex != len(wf.Tasks) {
				return fmt.Errorf("%w: task_index %d, have %d tasks", domain.ErrOutOfOrderIndex, up.TaskIndex, len(wf.Tasks))
			}
			wf.Tasks = append(wf.Tasks, up.Task)
			return nil
		})

	case domain.WorkflowTaskUpdated:
		return updateWorkflow(e, func(wf *domain.Workflow) error {
			if up.TaskIndex < 0 || up.TaskIndex >= len(wf.Tasks) {
				return fmt.Errorf("%w: task_index %d, have %d tasks", domain.ErrUnknownTaskIndex, up.TaskIndex, len(wf.Tasks))
			}
			wf.Tasks[up.TaskIndex] = up.Task
			return nil
		})
	}
	return fmt.Errorf("%w: unhandled update %T", domain.ErrIncompatibleUpdate, u)
}

func openPart(e *entry, msg *domain.AssistantMessageItem, idx int) error {
	if idx < 0 || idx >= len(msg.Content) {
		return fmt.Errorf("%w: content_index %d, have %d parts", domain.ErrUnknownContentIndex, idx, len(msg.Content))
	}
	if e.closedPart[idx] {
		return fmt.Errorf("%w: content part %d is done", domain.ErrUnknownContentIndex, idx)
	}
	return nil
}

// The update helpers copy the item's mutable slices before fn runs, so a
// failed update never touches the committed item.

func updateAssistant(e *entry, fn func(*domain.AssistantMessageItem) error) error {
	msg := e.item.(domain.AssistantMessageItem)
	msg.Content = append([]domain.AssistantMessageContent(nil), msg.Content...)
	if err := fn(&msg); err != nil {
		return err
	}
	e.item = msg
	return nil
}

func updateWidget(e *entry, fn func(*domain.WidgetItem) error) error {
	w := e.item.(domain.WidgetItem)
	if err := fn(&w); err != nil {
		return err
	}
	e.item = w
	return nil
}

func updateWorkflow(e *entry, fn func(*domain.Workflow) error) error {
	item := e.item.(domain.WorkflowItem)
	wf := item.Workflow.Clone()
	if err := fn(&wf); err != nil {
		return err
	}
	item.Workflow = wf
	e.item = item
	return nil
}
