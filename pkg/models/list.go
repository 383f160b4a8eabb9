package models

import "time"

// ViewMode selects how a list is displayed.
type ViewMode string

const (
	ViewModeList  ViewMode = "list"
	ViewModeBoard ViewMode = "board"
)

// List belongs to a project and holds tasks.
type List struct {
	ID        string
	Name      string
	UserID    string
	ProjectID string
	Icon      *string
	Color     *string
	Order     int
	ViewMode  *ViewMode
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (l List) GetID() string       { return l.ID }
func (l List) GetOrder() int       { return l.Order }
func (l List) GetOwnerID() string  { return l.UserID }
func (l List) GetParentID() string { return l.ProjectID }

func (l List) Document() Document {
	d := base(l.ID, l.UserID, l.Order, l.CreatedAt, l.UpdatedAt)
	d[FieldName] = l.Name
	d[FieldProjectID] = l.ProjectID
	d[FieldIcon] = optString(l.Icon)
	d[FieldColor] = optString(l.Color)
	if l.ViewMode != nil {
		d[FieldViewMode] = string(*l.ViewMode)
	} else {
		d[FieldViewMode] = nil
	}
	return d
}

func DecodeList(d Document) (List, error) {
	var (
		l   List
		err error
	)
	if l.ID, err = d.str(FieldID); err != nil {
		return l, err
	}
	if l.Name, err = d.str(FieldName); err != nil {
		return l, err
	}
	if l.UserID, err = d.str(FieldUserID); err != nil {
		return l, err
	}
	if l.ProjectID, err = d.str(FieldProjectID); err != nil {
		return l, err
	}
	if l.Icon, err = d.optStr(FieldIcon); err != nil {
		return l, err
	}
	if l.Color, err = d.optStr(FieldColor); err != nil {
		return l, err
	}
	if l.Order, err = d.integer(FieldOrder); err != nil {
		return l, err
	}
	mode, err := d.optStr(FieldViewMode)
	if err != nil {
		return l, err
	}
	if mode != nil {
		vm := ViewMode(*mode)
		l.ViewMode = &vm
	}
	if l.CreatedAt, err = d.timestamp(FieldCreatedAt); err != nil {
		return l, err
	}
	if l.UpdatedAt, err = d.timestamp(FieldUpdatedAt); err != nil {
		return l, err
	}
	return l, nil
}

type ListDraft struct {
	Name      string
	ProjectID string
	Icon      *string
	Color     *string
	Order     int
	ViewMode  *ViewMode
}

func (dr ListDraft) Build(id, ownerID string, now time.Time) List {
	l := List{
		ID:        id,
		Name:      dr.Name,
		UserID:    ownerID,
		ProjectID: dr.ProjectID,
		Icon:      cloneString(dr.Icon),
		Color:     cloneString(dr.Color),
		Order:     dr.Order,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if dr.ViewMode != nil {
		vm := *dr.ViewMode
		l.ViewMode = &vm
	}
	return l
}

type ListPatch struct {
	Name      *string
	ProjectID *string
	Icon      *string
	Color     *string
	Order     *int
	ViewMode  *ViewMode
	Unset     []Field
}

func (p ListPatch) Apply(l List, now time.Time) List {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.ProjectID != nil {
		l.ProjectID = *p.ProjectID
	}
	l.Icon = patchString(l.Icon, p.Icon, unset(p.Unset).has(FieldIcon))
	l.Color = patchString(l.Color, p.Color, unset(p.Unset).has(FieldColor))
	if p.Order != nil {
		l.Order = *p.Order
	}
	switch {
	case unset(p.Unset).has(FieldViewMode):
		l.ViewMode = nil
	case p.ViewMode != nil:
		vm := *p.ViewMode
		l.ViewMode = &vm
	}
	l.UpdatedAt = now
	return l
}

func (p ListPatch) Fields(now time.Time) Document {
	d := Document{}
	if p.Name != nil {
		d[FieldName] = *p.Name
	}
	if p.ProjectID != nil {
		d[FieldProjectID] = *p.ProjectID
	}
	putString(d, FieldIcon, p.Icon, unset(p.Unset).has(FieldIcon))
	putString(d, FieldColor, p.Color, unset(p.Unset).has(FieldColor))
	if p.Order != nil {
		d[FieldOrder] = *p.Order
	}
	switch {
	case unset(p.Unset).has(FieldViewMode):
		d[FieldViewMode] = nil
	case p.ViewMode != nil:
		d[FieldViewMode] = string(*p.ViewMode)
	}
	return stamp(d, now)
}
