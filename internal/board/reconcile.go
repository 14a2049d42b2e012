// Package board implements the core of the tracker: priority
// reconciliation for status groups, the optimistic mutation protocol and
// the role-scoped view projection.
package board

import (
	"fmt"
	"sort"

	"tracker/internal/models"
)

// ApplyStatusChange moves task into newStatus within scope and restores
// the dense 1..N priority ordering of the group it left. The task is
// appended to the end of its new group; moving to a terminal status pins
// it to the sentinel instead. The returned slice holds every task whose
// status or priority changed value, which is exactly the set that must be
// persisted. A change to the current status is a no-op.
func ApplyStatusChange(task *models.Task, newStatus string, scope []*models.Task, statuses models.StatusSet) []*models.Task {
	if newStatus == task.Status {
		return nil
	}

	oldStatus := task.Status
	task.Status = newStatus

	if statuses.Terminal(newStatus) {
		task.Priority = models.SentinelPriority
	} else {
		max := 0
		for _, t := range scope {
			if t.RowID == task.RowID || t.Status != newStatus {
				continue
			}
			if t.Priority > max && t.Priority != models.SentinelPriority {
				max = t.Priority
			}
		}
		task.Priority = max + 1
	}

	changed := []*models.Task{task}
	if !statuses.Terminal(oldStatus) {
		// Terminal groups stay pinned to the sentinel and are never
		// renumbered.
		changed = append(changed, renumberGroup(scope, oldStatus)...)
	}
	return changed
}

// renumberGroup reassigns priorities 1..N to the scope members holding
// status, in their current priority order, and returns the members whose
// priority moved.
func renumberGroup(scope []*models.Task, status string) []*models.Task {
	var group []*models.Task
	for _, t := range scope {
		if t.Status == status {
			group = append(group, t)
		}
	}
	sort.SliceStable(group, func(i, j int) bool {
		if group[i].Priority != group[j].Priority {
			return group[i].Priority < group[j].Priority
		}
		return group[i].RowID < group[j].RowID
	})

	var changed []*models.Task
	for i, t := range group {
		if t.Priority != i+1 {
			t.Priority = i + 1
			changed = append(changed, t)
		}
	}
	return changed
}

// ApplyReorder assigns priority index+1 to each row id in orderedRowIDs,
// the total order produced by a drag-and-drop interaction over one status
// group. The input must be a permutation of that group within scope; a
// reorder never adds or removes group members. Tasks outside the group
// are untouched. Returns the subset whose priority actually changed.
func ApplyReorder(scope []*models.Task, orderedRowIDs []string, statuses models.StatusSet) ([]*models.Task, error) {
	if len(orderedRowIDs) == 0 {
		return nil, nil
	}

	byID := make(map[string]*models.Task, len(scope))
	for _, t := range scope {
		byID[t.RowID] = t
	}

	status := ""
	ordered := make([]*models.Task, 0, len(orderedRowIDs))
	seen := make(map[string]struct{}, len(orderedRowIDs))
	for _, id := range orderedRowIDs {
		t, ok := byID[id]
		if !ok {
			return nil, &models.ValidationError{Field: "row_ids", Reason: fmt.Sprintf("unknown row id %q", id)}
		}
		if _, dup := seen[id]; dup {
			return nil, &models.ValidationError{Field: "row_ids", Reason: fmt.Sprintf("duplicate row id %q", id)}
		}
		seen[id] = struct{}{}
		if status == "" {
			status = t.Status
		} else if t.Status != status {
			return nil, &models.ValidationError{Field: "row_ids", Reason: "tasks span more than one status group"}
		}
		ordered = append(ordered, t)
	}

	if statuses.Terminal(status) {
		return nil, &models.ValidationError{Field: "row_ids", Reason: "terminal tasks cannot be reordered"}
	}

	groupSize := 0
	for _, t := range scope {
		if t.Status == status {
			groupSize++
		}
	}
	if groupSize != len(ordered) {
		return nil, &models.ValidationError{Field: "row_ids", Reason: "row ids are not a permutation of the status group"}
	}

	var changed []*models.Task
	for i, t := range ordered {
		if t.Priority != i+1 {
			t.Priority = i + 1
			changed = append(changed, t)
		}
	}
	return changed, nil
}
