package models

import (
	"fmt"
	"time"

	"github.com/tonehq/tonesync/pkg/constants"
)

type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Task is a leaf of the hierarchy. Tasks have no active cursor.
type Task struct {
	ID          string
	Title       string
	Description *string
	Status      Status
	Completed   bool
	UserID      string
	ListID      string
	StartDate   *time.Time
	DueDate     *time.Time
	Assignee    *string
	Tags        []string
	Order       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (t Task) GetID() string       { return t.ID }
func (t Task) GetOrder() int       { return t.Order }
func (t Task) GetOwnerID() string  { return t.UserID }
func (t Task) GetParentID() string { return t.ListID }

func (t Task) Document() Document {
	d := base(t.ID, t.UserID, t.Order, t.CreatedAt, t.UpdatedAt)
	d[FieldTitle] = t.Title
	d[FieldDescription] = optString(t.Description)
	d[FieldStatus] = string(t.Status)
	d[FieldCompleted] = t.Completed
	d[FieldListID] = t.ListID
	d[FieldStartDate] = optTime(t.StartDate)
	d[FieldDueDate] = optTime(t.DueDate)
	d[FieldAssignee] = optString(t.Assignee)
	d[FieldTags] = optStrings(t.Tags)
	return d
}

func DecodeTask(d Document) (Task, error) {
	var (
		t   Task
		err error
	)
	if t.ID, err = d.str(FieldID); err != nil {
		return t, err
	}
	if t.Title, err = d.str(FieldTitle); err != nil {
		return t, err
	}
	if t.Description, err = d.optStr(FieldDescription); err != nil {
		return t, err
	}
	status, err := d.optStr(FieldStatus)
	if err != nil {
		return t, err
	}
	t.Status = StatusTodo
	if status != nil {
		t.Status = Status(*status)
		if !t.Status.Valid() {
			return t, fmt.Errorf("%w: unknown status %q", constants.ErrInvalidDocument, *status)
		}
	}
	if t.Completed, err = d.boolean(FieldCompleted); err != nil {
		return t, err
	}
	if t.UserID, err = d.str(FieldUserID); err != nil {
		return t, err
	}
	if t.ListID, err = d.str(FieldListID); err != nil {
		return t, err
	}
	if t.StartDate, err = d.optTimestamp(FieldStartDate); err != nil {
		return t, err
	}
	if t.DueDate, err = d.optTimestamp(FieldDueDate); err != nil {
		return t, err
	}
	if t.Assignee, err = d.optStr(FieldAssignee); err != nil {
		return t, err
	}
	if t.Tags, err = d.strings(FieldTags); err != nil {
		return t, err
	}
	if t.Order, err = d.integer(FieldOrder); err != nil {
		return t, err
	}
	if t.CreatedAt, err = d.timestamp(FieldCreatedAt); err != nil {
		return t, err
	}
	if t.UpdatedAt, err = d.timestamp(FieldUpdatedAt); err != nil {
		return t, err
	}
	return t, nil
}

// TaskDraft creates a task. An empty Status defaults to TODO.
type TaskDraft struct {
	Title       string
	ListID      string
	Description *string
	Status      Status
	Completed   bool
	StartDate   *time.Time
	DueDate     *time.Time
	Assignee    *string
	Tags        []string
	Order       int
}

func (dr TaskDraft) Build(id, ownerID string, now time.Time) Task {
	status := dr.Status
	if status == "" {
		status = StatusTodo
	}
	var tags []string
	if dr.Tags != nil {
		tags = append([]string{}, dr.Tags...)
	}
	return Task{
		ID:          id,
		Title:       dr.Title,
		Description: cloneString(dr.Description),
		Status:      status,
		Completed:   dr.Completed,
		UserID:      ownerID,
		ListID:      dr.ListID,
		StartDate:   cloneTime(dr.StartDate),
		DueDate:     cloneTime(dr.DueDate),
		Assignee:    cloneString(dr.Assignee),
		Tags:        tags,
		Order:       dr.Order,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// TaskPatch updates the non-nil fields. Tags replaces the whole set when
// non-nil; list FieldTags in Unset to clear it.
type TaskPatch struct {
	Title       *string
	ListID      *string
	Description *string
	Status      *Status
	Completed   *bool
	StartDate   *time.Time
	DueDate     *time.Time
	Assignee    *string
	Tags        []string
	Order       *int
	Unset       []Field
}

func (p TaskPatch) Apply(t Task, now time.Time) Task {
	u := unset(p.Unset)
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.ListID != nil {
		t.ListID = *p.ListID
	}
	t.Description = patchString(t.Description, p.Description, u.has(FieldDescription))
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	t.StartDate = patchTime(t.StartDate, p.StartDate, u.has(FieldStartDate))
	t.DueDate = patchTime(t.DueDate, p.DueDate, u.has(FieldDueDate))
	t.Assignee = patchString(t.Assignee, p.Assignee, u.has(FieldAssignee))
	switch {
	case u.has(FieldTags):
		t.Tags = nil
	case p.Tags != nil:
		t.Tags = append([]string{}, p.Tags...)
	}
	if p.Order != nil {
		t.Order = *p.Order
	}
	t.UpdatedAt = now
	return t
}

func (p TaskPatch) Fields(now time.Time) Document {
	u := unset(p.Unset)
	d := Document{}
	if p.Title != nil {
		d[FieldTitle] = *p.Title
	}
	if p.ListID != nil {
		d[FieldListID] = *p.ListID
	}
	putString(d, FieldDescription, p.Description, u.has(FieldDescription))
	if p.Status != nil {
		d[FieldStatus] = string(*p.Status)
	}
	if p.Completed != nil {
		d[FieldCompleted] = *p.Completed
	}
	putTime(d, FieldStartDate, p.StartDate, u.has(FieldStartDate))
	putTime(d, FieldDueDate, p.DueDate, u.has(FieldDueDate))
	putString(d, FieldAssignee, p.Assignee, u.has(FieldAssignee))
	switch {
	case u.has(FieldTags):
		d[FieldTags] = nil
	case p.Tags != nil:
		d[FieldTags] = append([]string{}, p.Tags...)
	}
	if p.Order != nil {
		d[FieldOrder] = *p.Order
	}
	return stamp(d, now)
}
