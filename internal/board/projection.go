package board

import (
	"sort"

	"tracker/internal/models"
)

// StatusGroup is the subset of a scope sharing one status, in priority
// order.
type StatusGroup struct {
	Status string        `json:"status"`
	Tasks  []models.Task `json:"tasks"`
}

// ProjectView groups one project's tasks by status for elevated roles.
type ProjectView struct {
	Name   string        `json:"name"`
	Groups []StatusGroup `json:"groups"`
}

// View is the rendered board. Exactly one of Personal and Projects is
// populated, depending on the viewer's role.
type View struct {
	Personal []StatusGroup `json:"personal,omitempty"`
	Projects []ProjectView `json:"projects,omitempty"`
}

// BuildView derives the role-scoped presentation list from the flat task
// collection. It is a pure function of its inputs: fixed input produces
// byte-for-byte identical output, with no dependence on map iteration
// order or the clock.
//
// Basic users see only tasks assigned to them, flattened across projects,
// with terminal tasks filtered out entirely. Elevated roles see every
// project, terminal tasks included, sorted last via the sentinel.
func BuildView(tasks []models.Task, viewer models.Employee, statuses models.StatusSet) View {
	if viewer.Role.Elevated() {
		return View{Projects: projectScoped(tasks, statuses)}
	}
	return View{Personal: personalScoped(tasks, viewer.Name, statuses)}
}

func personalScoped(tasks []models.Task, viewerName string, statuses models.StatusSet) []StatusGroup {
	var mine []models.Task
	for _, t := range tasks {
		if !t.AssignedTo(viewerName) {
			continue
		}
		if statuses.Terminal(t.Status) {
			continue
		}
		mine = append(mine, t.Clone())
	}
	return groupByStatus(mine, statuses)
}

func projectScoped(tasks []models.Task, statuses models.StatusSet) []ProjectView {
	byProject := make(map[string][]models.Task)
	for _, t := range tasks {
		if t.Project == "" {
			continue
		}
		byProject[t.Project] = append(byProject[t.Project], t.Clone())
	}

	names := make([]string, 0, len(byProject))
	for name := range byProject {
		names = append(names, name)
	}
	sort.Strings(names)

	views := make([]ProjectView, 0, len(names))
	for _, name := range names {
		views = append(views, ProjectView{
			Name:   name,
			Groups: groupByStatus(byProject[name], statuses),
		})
	}
	return views
}

// groupByStatus orders tasks by (status display order, priority, row id)
// and splits them into contiguous status groups.
func groupByStatus(tasks []models.Task, statuses models.StatusSet) []StatusGroup {
	sort.SliceStable(tasks, func(i, j int) bool {
		oi, oj := statuses.DisplayOrder(tasks[i].Status), statuses.DisplayOrder(tasks[j].Status)
		if oi != oj {
			return oi < oj
		}
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority < tasks[j].Priority
		}
		return tasks[i].RowID < tasks[j].RowID
	})

	var groups []StatusGroup
	for _, t := range tasks {
		if n := len(groups); n == 0 || groups[n-1].Status != t.Status {
			groups = append(groups, StatusGroup{Status: t.Status})
		}
		last := &groups[len(groups)-1]
		last.Tasks = append(last.Tasks, t)
	}
	return groups
}
