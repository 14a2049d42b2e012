package models

import (
	"math"
	"sort"
	"strings"
	"time"
)

// SentinelPriority marks tasks in a terminal status. Terminal tasks are
// excluded from the dense 1..N ordering of their former group and always
// sort last. New tasks also start here until they are ordered into a group.
const SentinelPriority = 999

// Role determines how much of the board a user can see and mutate.
type Role string

const (
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Elevated reports whether the role sees every project rather than a
// personal task list.
func (r Role) Elevated() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Task represents a single tracked item backed by one store row.
type Task struct {
	RowID       string    `json:"row_id"`
	Name        string    `json:"name"`
	Message     string    `json:"message"`
	Status      string    `json:"status"`
	Project     string    `json:"project"`
	Responsible []string  `json:"responsible"`
	Priority    int       `json:"priority"`
	Version     int64     `json:"version"`
	ModifiedBy  string    `json:"modified_by"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// Clone returns a deep copy so snapshots never alias the live collection.
func (t Task) Clone() Task {
	c := t
	c.Responsible = append([]string(nil), t.Responsible...)
	return c
}

// AssignedTo reports whether the task lists the given employee name as
// responsible.
func (t Task) AssignedTo(name string) bool {
	for _, r := range t.Responsible {
		if r == name {
			return true
		}
	}
	return false
}

// Employee is an identity record owned by the external identity store.
type Employee struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	Phone  string `json:"phone"`
}

// Status describes one board column: its name, its place in the fixed
// display order and whether it is terminal.
type Status struct {
	Name     string `json:"name"`
	Order    int    `json:"order"`
	Terminal bool   `json:"terminal"`
}

// StatusSet is the configured set of valid statuses.
type StatusSet []Status

// DefaultStatuses mirrors the three classic board columns.
func DefaultStatuses() StatusSet {
	return StatusSet{
		{Name: "todo", Order: 1},
		{Name: "in_progress", Order: 2},
		{Name: "done", Order: 3, Terminal: true},
	}
}

// Valid reports whether name is a recognized status.
func (s StatusSet) Valid(name string) bool {
	for _, st := range s {
		if st.Name == name {
			return true
		}
	}
	return false
}

// Terminal reports whether name is a terminal status.
func (s StatusSet) Terminal(name string) bool {
	for _, st := range s {
		if st.Name == name {
			return st.Terminal
		}
	}
	return false
}

// DisplayOrder returns the configured rank of a status. Unknown statuses
// sort after every configured one.
func (s StatusSet) DisplayOrder(name string) int {
	for _, st := range s {
		if st.Name == name {
			return st.Order
		}
	}
	return math.MaxInt
}

// First returns the default status for newly created tasks.
func (s StatusSet) First() string {
	if len(s) == 0 {
		return ""
	}
	best := s[0]
	for _, st := range s[1:] {
		if st.Order < best.Order {
			best = st
		}
	}
	return best.Name
}

// JoinResponsible serializes the responsible set for the row-oriented
// store boundary.
func JoinResponsible(names []string) string {
	return strings.Join(names, ", ")
}

// SplitResponsible parses the comma-joined boundary form back into a
// trimmed, de-duplicated, order-preserving set.
func SplitResponsible(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var names []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// ProjectNames collects the distinct project values across tasks in
// alphabetical order. Projects have no independent lifecycle.
func ProjectNames(tasks []Task) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, t := range tasks {
		if t.Project == "" {
			continue
		}
		if _, ok := seen[t.Project]; ok {
			continue
		}
		seen[t.Project] = struct{}{}
		names = append(names, t.Project)
	}
	sort.Strings(names)
	return names
}
