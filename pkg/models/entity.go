package models

import (
	"sort"
	"time"
)

// Field is a document field name as stored remotely.
type Field = string

const (
	FieldID          Field = "id"
	FieldName        Field = "name"
	FieldTitle       Field = "title"
	FieldUserID      Field = "userId"
	FieldWorkspaceID Field = "workspaceId"
	FieldProjectID   Field = "projectId"
	FieldListID      Field = "listId"
	FieldIcon        Field = "icon"
	FieldColor       Field = "color"
	FieldOrder       Field = "order"
	FieldViewMode    Field = "viewMode"
	FieldDescription Field = "description"
	FieldStatus      Field = "status"
	FieldCompleted   Field = "completed"
	FieldStartDate   Field = "startDate"
	FieldDueDate     Field = "dueDate"
	FieldAssignee    Field = "assignee"
	FieldTags        Field = "tags"
	FieldCreatedAt   Field = "createdAt"
	FieldUpdatedAt   Field = "updatedAt"
)

// Record is implemented by every synchronized entity.
type Record interface {
	GetID() string
	GetOrder() int
	GetOwnerID() string
	// Document encodes the record for the store. Absent optional fields
	// are present with a nil value.
	Document() Document
}

// Child is a record nested under a parent entity.
type Child interface {
	Record
	GetParentID() string
}

// Draft is the payload of a create call: everything but the id, the owner
// and the timestamps.
type Draft[T Record] interface {
	Build(id, ownerID string, now time.Time) T
}

// Patch is a partial update. Apply returns a new record and never writes
// through pointers held by rec. Fields returns only the changed fields
// plus updatedAt.
type Patch[T Record] interface {
	Apply(rec T, now time.Time) T
	Fields(now time.Time) Document
}

// Decoder turns a store document back into a record.
type Decoder[T Record] func(Document) (T, error)

// Less orders records by order, then by id.
func Less[T Record](a, b T) bool {
	if a.GetOrder() != b.GetOrder() {
		return a.GetOrder() < b.GetOrder()
	}
	return a.GetID() < b.GetID()
}

// SortByOrder sorts recs in place by order with an id tie-break.
func SortByOrder[T Record](recs []T) {
	sort.SliceStable(recs, func(i, j int) bool {
		return Less(recs[i], recs[j])
	})
}

// First returns the lowest record by (order, id).
func First[T Record](recs []T) (T, bool) {
	var best T
	if len(recs) == 0 {
		return best, false
	}
	best = recs[0]
	for _, r := range recs[1:] {
		if Less(r, best) {
			best = r
		}
	}
	return best, true
}

// unset tracks optional fields a patch clears to absent.
type unset []Field

func (u unset) has(f Field) bool {
	for _, v := range u {
		if v == f {
			return true
		}
	}
	return false
}

func stamp(d Document, now time.Time) Document {
	d[FieldUpdatedAt] = now
	return d
}

func base(id, owner string, order int, createdAt, updatedAt time.Time) Document {
	return Document{
		FieldID:        id,
		FieldUserID:    owner,
		FieldOrder:     order,
		FieldCreatedAt: createdAt,
		FieldUpdatedAt: updatedAt,
	}
}
