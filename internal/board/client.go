package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"tracker/internal/models"
)

// ErrMutationPending rejects a mutation against a row that already has one
// in flight from this client. The caller must await resolution first.
var ErrMutationPending = errors.New("another change to this task is still being saved")

// ErrUnavailable classifies transport failures: the store could not be
// reached or did not answer within the persistence timeout.
var ErrUnavailable = errors.New("store unavailable")

// Store is the row-oriented backing store the client persists to. The
// row version check inside ConditionalUpdate and BatchUpdatePriorities is
// the only cross-client coordination primitive in the system.
type Store interface {
	LoadAll(ctx context.Context) ([]models.Task, error)
	ConditionalUpdate(ctx context.Context, rowID string, edit TaskEdit, expectedVersion int64, modifiedBy string) (int64, error)
	BatchUpdatePriorities(ctx context.Context, updates []PriorityUpdate, modifiedBy string) error
	Append(ctx context.Context, task models.Task) (models.Task, error)
	ListEmployees(ctx context.Context) ([]models.Employee, error)
}

// Notifier delivers chat messages. Delivery is fire-and-forget; failures
// are logged, never surfaced to the mutation path.
type Notifier interface {
	NewTaskAssigned(ctx context.Context, userID int64, taskName string, topPriority bool) error
}

// TaskEdit carries the editable fields of a save-edit mutation.
type TaskEdit struct {
	Name        string   `json:"name"`
	Message     string   `json:"message"`
	Project     string   `json:"project"`
	Responsible []string `json:"responsible"`
}

// PriorityUpdate is one row of a batch priority/status write. Every entry
// carries the version the client last confirmed; the store rejects the
// whole batch if any row moved on.
type PriorityUpdate struct {
	RowID           string
	Priority        int
	Status          string
	ExpectedVersion int64
}

// CreateRequest carries the fields of a new task. Status defaults to the
// first board column and Priority to the sentinel: a new task joins a
// dense group only once it is explicitly ordered.
type CreateRequest struct {
	Name        string   `json:"name"`
	Message     string   `json:"message"`
	Project     string   `json:"project"`
	Status      string   `json:"status"`
	Priority    int      `json:"priority"`
	Responsible []string `json:"responsible"`
}

// Client owns the in-memory task collection and runs every mutation
// through the optimistic protocol: apply locally, persist with a bounded
// timeout, then confirm or roll back. It is the single writer of the
// collection; readers get deep-copied snapshots.
type Client struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
	statuses models.StatusSet
	timeout  time.Duration

	mu      sync.Mutex
	tasks   []*models.Task
	pending map[string]struct{}
}

// NewClient constructs a client over the given store. Call Reload to warm
// the collection before serving views.
func NewClient(store Store, notifier Notifier, statuses models.StatusSet, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		store:    store,
		notifier: notifier,
		logger:   logger,
		statuses: statuses,
		timeout:  timeout,
		pending:  make(map[string]struct{}),
	}
}

// Reload replaces the collection with the store's current rows. Required
// after a version conflict: conflicting edits are never merged. Fails
// with ErrMutationPending while any mutation is still in flight.
func (c *Client) Reload(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	loaded, err := c.store.LoadAll(ctx)
	if err != nil {
		return c.classify(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) > 0 {
		// Swapping the collection now would orphan the rows an in-flight
		// mutation still points at; its confirmation or rollback would
		// land in objects no reader can see.
		return fmt.Errorf("%w: reload refused", ErrMutationPending)
	}
	c.tasks = c.tasks[:0]
	for _, t := range loaded {
		clone := t.Clone()
		c.tasks = append(c.tasks, &clone)
	}
	return nil
}

// Snapshot returns a deep copy of the current collection.
func (c *Client) Snapshot() []models.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// View projects the collection for the given viewer.
func (c *Client) View(viewer models.Employee) View {
	return BuildView(c.Snapshot(), viewer, c.statuses)
}

// UpdateStatus moves a task to a new status, renumbers the group it left
// and persists the change-set in one batch. On failure every touched row
// is restored to its prior state.
func (c *Client) UpdateStatus(ctx context.Context, viewer models.Employee, rowID, newStatus string) error {
	if !c.statuses.Valid(newStatus) {
		return &models.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", newStatus)}
	}

	c.mu.Lock()
	task := c.find(rowID)
	if task == nil {
		c.mu.Unlock()
		return models.ErrTaskNotFound
	}
	if task.Status == newStatus {
		c.mu.Unlock()
		return nil
	}

	scope := c.scopeFor(viewer, task)
	if err := c.checkPending(affectedByStatusChange(task, scope)); err != nil {
		c.mu.Unlock()
		return err
	}

	prior := snapshotOf(scope)
	changed := ApplyStatusChange(task, newStatus, scope, c.statuses)
	prior = retainRows(prior, changed)
	updates := make([]PriorityUpdate, 0, len(changed))
	for _, t := range changed {
		updates = append(updates, PriorityUpdate{
			RowID:           t.RowID,
			Priority:        t.Priority,
			Status:          t.Status,
			ExpectedVersion: t.Version,
		})
		c.pending[t.RowID] = struct{}{}
	}
	c.mu.Unlock()

	err := c.persistBatch(ctx, updates, viewer.Name)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range updates {
		delete(c.pending, u.RowID)
	}
	if err != nil {
		c.restore(prior)
		return err
	}
	c.confirmBatch(changed, viewer.Name)
	return nil
}

// Reorder applies a drag-and-drop permutation of one status group and
// persists the rows whose priority moved.
func (c *Client) Reorder(ctx context.Context, viewer models.Employee, orderedRowIDs []string) error {
	c.mu.Lock()
	var anchor *models.Task
	if len(orderedRowIDs) > 0 {
		if anchor = c.find(orderedRowIDs[0]); anchor == nil {
			c.mu.Unlock()
			return models.ErrTaskNotFound
		}
	}
	if anchor == nil {
		c.mu.Unlock()
		return nil
	}

	scope := c.scopeFor(viewer, anchor)
	if err := c.checkPending(orderedRowIDs); err != nil {
		c.mu.Unlock()
		return err
	}

	prior := snapshotOf(scope)
	changed, err := ApplyReorder(scope, orderedRowIDs, c.statuses)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if len(changed) == 0 {
		c.mu.Unlock()
		return nil
	}
	prior = retainRows(prior, changed)

	updates := make([]PriorityUpdate, 0, len(changed))
	for _, t := range changed {
		updates = append(updates, PriorityUpdate{
			RowID:           t.RowID,
			Priority:        t.Priority,
			Status:          t.Status,
			ExpectedVersion: t.Version,
		})
		c.pending[t.RowID] = struct{}{}
	}
	c.mu.Unlock()

	err = c.persistBatch(ctx, updates, viewer.Name)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range updates {
		delete(c.pending, u.RowID)
	}
	if err != nil {
		c.restore(prior)
		return err
	}
	c.confirmBatch(changed, viewer.Name)
	return nil
}

// SaveEdit updates a task's editable fields through the version-checked
// single-row write path.
func (c *Client) SaveEdit(ctx context.Context, viewer models.Employee, rowID string, edit TaskEdit) error {
	if edit.Name == "" {
		return &models.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if edit.Project == "" {
		return &models.ValidationError{Field: "project", Reason: "must not be empty"}
	}
	edit.Responsible = models.SplitResponsible(models.JoinResponsible(edit.Responsible))

	c.mu.Lock()
	task := c.find(rowID)
	if task == nil {
		c.mu.Unlock()
		return models.ErrTaskNotFound
	}
	if err := c.checkPending([]string{rowID}); err != nil {
		c.mu.Unlock()
		return err
	}

	prior := task.Clone()
	expected := task.Version
	task.Name = edit.Name
	task.Message = edit.Message
	task.Project = edit.Project
	task.Responsible = append([]string(nil), edit.Responsible...)
	c.pending[rowID] = struct{}{}
	c.mu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, c.timeout)
	newVersion, err := c.store.ConditionalUpdate(pctx, rowID, edit, expected, viewer.Name)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, rowID)
	if err != nil {
		c.restore([]models.Task{prior})
		return c.classify(err)
	}
	if cur := c.find(rowID); cur != nil {
		cur.Version = newVersion
		cur.ModifiedBy = viewer.Name
		cur.ModifiedAt = time.Now()
	}
	return nil
}

// Create inserts the task optimistically under a synthesized temporary
// row id, persists it, then swaps in the store-confirmed row. On failure
// the temporary task is removed without a trace. Assignees other than the
// creator are notified after confirmation.
func (c *Client) Create(ctx context.Context, viewer models.Employee, req CreateRequest) (models.Task, error) {
	if req.Status == "" {
		req.Status = c.statuses.First()
	}
	if req.Priority <= 0 {
		req.Priority = models.SentinelPriority
	}

	draft := models.Task{
		Name:        req.Name,
		Message:     req.Message,
		Status:      req.Status,
		Project:     req.Project,
		Responsible: models.SplitResponsible(models.JoinResponsible(req.Responsible)),
		Priority:    req.Priority,
		ModifiedBy:  viewer.Name,
		ModifiedAt:  time.Now(),
	}
	if err := draft.Validate(c.statuses); err != nil {
		return models.Task{}, err
	}

	tempID := "temp_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	draft.RowID = tempID

	c.mu.Lock()
	temp := draft.Clone()
	c.tasks = append(c.tasks, &temp)
	c.pending[tempID] = struct{}{}
	c.mu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, c.timeout)
	stored, err := c.store.Append(pctx, draft)
	cancel()

	c.mu.Lock()
	delete(c.pending, tempID)
	if err != nil {
		c.remove(tempID)
		c.mu.Unlock()
		return models.Task{}, c.classify(err)
	}
	if cur := c.find(tempID); cur != nil {
		*cur = stored.Clone()
	}
	c.mu.Unlock()

	c.notifyAssignees(stored, viewer)
	return stored.Clone(), nil
}

// notifyAssignees fans out new-task notifications in the background.
func (c *Client) notifyAssignees(task models.Task, creator models.Employee) {
	if c.notifier == nil || len(task.Responsible) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		employees, err := c.store.ListEmployees(ctx)
		if err != nil {
			c.logger.Error("resolve assignees failed", slog.String("task", task.RowID), slog.String("error", err.Error()))
			return
		}
		byName := make(map[string]models.Employee, len(employees))
		for _, e := range employees {
			byName[e.Name] = e
		}

		top := task.Priority == 1
		for _, name := range task.Responsible {
			emp, ok := byName[name]
			if !ok || emp.UserID == creator.UserID {
				continue
			}
			if err := c.notifier.NewTaskAssigned(ctx, emp.UserID, task.Name, top); err != nil {
				c.logger.Error("notify assignee failed",
					slog.String("assignee", name), slog.String("error", err.Error()))
			}
		}
	}()
}

func (c *Client) persistBatch(ctx context.Context, updates []PriorityUpdate, modifiedBy string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.store.BatchUpdatePriorities(ctx, updates, modifiedBy); err != nil {
		return c.classify(err)
	}
	return nil
}

// confirmBatch adopts the store-side version bump for every persisted row.
func (c *Client) confirmBatch(changed []*models.Task, modifiedBy string) {
	now := time.Now()
	for _, t := range changed {
		t.Version++
		t.ModifiedBy = modifiedBy
		t.ModifiedAt = now
	}
}

// classify folds store errors into the protocol's taxonomy. Conflicts and
// missing rows pass through; everything else is a transport failure.
func (c *Client) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrVersionConflict) || errors.Is(err, models.ErrTaskNotFound) {
		return err
	}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// find returns the live task with the given row id, or nil. Callers hold mu.
func (c *Client) find(rowID string) *models.Task {
	for _, t := range c.tasks {
		if t.RowID == rowID {
			return t
		}
	}
	return nil
}

// remove drops a task from the collection. Callers hold mu.
func (c *Client) remove(rowID string) {
	for i, t := range c.tasks {
		if t.RowID == rowID {
			c.tasks = append(c.tasks[:i], c.tasks[i+1:]...)
			return
		}
	}
}

// scopeFor returns the bounded set of tasks ordering operates over: the
// task's project for elevated roles, the viewer's whole personal list for
// the basic role. Callers hold mu.
func (c *Client) scopeFor(viewer models.Employee, task *models.Task) []*models.Task {
	var scope []*models.Task
	for _, t := range c.tasks {
		if viewer.Role.Elevated() {
			if t.Project == task.Project {
				scope = append(scope, t)
			}
		} else if t.AssignedTo(viewer.Name) || t.RowID == task.RowID {
			scope = append(scope, t)
		}
	}
	return scope
}

// checkPending fails fast when any listed row already has a mutation in
// flight. Callers hold mu.
func (c *Client) checkPending(rowIDs []string) error {
	for _, id := range rowIDs {
		if _, ok := c.pending[id]; ok {
			return fmt.Errorf("%w (row %s)", ErrMutationPending, id)
		}
	}
	return nil
}

// affectedByStatusChange lists the rows a status change may touch: the
// task itself plus its current group, which gets renumbered.
func affectedByStatusChange(task *models.Task, scope []*models.Task) []string {
	ids := []string{task.RowID}
	for _, t := range scope {
		if t.RowID != task.RowID && t.Status == task.Status {
			ids = append(ids, t.RowID)
		}
	}
	return ids
}

// snapshotOf captures prior state for rollback.
func snapshotOf(scope []*models.Task) []models.Task {
	out := make([]models.Task, 0, len(scope))
	for _, t := range scope {
		out = append(out, t.Clone())
	}
	return out
}

// retainRows narrows a snapshot to the rows in the change-set. Rollback
// may only touch rows the failed write carried: anything else in scope
// could have been confirmed by another mutation in the meantime.
func retainRows(prior []models.Task, changed []*models.Task) []models.Task {
	keep := make(map[string]struct{}, len(changed))
	for _, t := range changed {
		keep[t.RowID] = struct{}{}
	}
	out := make([]models.Task, 0, len(changed))
	for _, snap := range prior {
		if _, ok := keep[snap.RowID]; ok {
			out = append(out, snap)
		}
	}
	return out
}

// restore puts captured rows back, field for field. Rows that vanished
// from the collection in the meantime are skipped. Callers hold mu.
func (c *Client) restore(prior []models.Task) {
	for _, snap := range prior {
		if cur := c.find(snap.RowID); cur != nil {
			*cur = snap.Clone()
		}
	}
}
