package models

import "time"

// Project belongs to a workspace.
type Project struct {
	ID          string
	Name        string
	UserID      string
	WorkspaceID string
	Icon        *string
	Color       *string
	Order       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p Project) GetID() string       { return p.ID }
func (p Project) GetOrder() int       { return p.Order }
func (p Project) GetOwnerID() string  { return p.UserID }
func (p Project) GetParentID() string { return p.WorkspaceID }

func (p Project) Document() Document {
	d := base(p.ID, p.UserID, p.Order, p.CreatedAt, p.UpdatedAt)
	d[FieldName] = p.Name
	d[FieldWorkspaceID] = p.WorkspaceID
	d[FieldIcon] = optString(p.Icon)
	d[FieldColor] = optString(p.Color)
	return d
}

func DecodeProject(d Document) (Project, error) {
	var (
		p   Project
		err error
	)
	if p.ID, err = d.str(FieldID); err != nil {
		return p, err
	}
	if p.Name, err = d.str(FieldName); err != nil {
		return p, err
	}
	if p.UserID, err = d.str(FieldUserID); err != nil {
		return p, err
	}
	if p.WorkspaceID, err = d.str(FieldWorkspaceID); err != nil {
		return p, err
	}
	if p.Icon, err = d.optStr(FieldIcon); err != nil {
		return p, err
	}
	if p.Color, err = d.optStr(FieldColor); err != nil {
		return p, err
	}
	if p.Order, err = d.integer(FieldOrder); err != nil {
		return p, err
	}
	if p.CreatedAt, err = d.timestamp(FieldCreatedAt); err != nil {
		return p, err
	}
	if p.UpdatedAt, err = d.timestamp(FieldUpdatedAt); err != nil {
		return p, err
	}
	return p, nil
}

type ProjectDraft struct {
	Name        string
	WorkspaceID string
	Icon        *string
	Color       *string
	Order       int
}

func (dr ProjectDraft) Build(id, ownerID string, now time.Time) Project {
	return Project{
		ID:          id,
		Name:        dr.Name,
		UserID:      ownerID,
		WorkspaceID: dr.WorkspaceID,
		Icon:        cloneString(dr.Icon),
		Color:       cloneString(dr.Color),
		Order:       dr.Order,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

type ProjectPatch struct {
	Name        *string
	WorkspaceID *string
	Icon        *string
	Color       *string
	Order       *int
	Unset       []Field
}

func (pt ProjectPatch) Apply(p Project, now time.Time) Project {
	if pt.Name != nil {
		p.Name = *pt.Name
	}
	if pt.WorkspaceID != nil {
		p.WorkspaceID = *pt.WorkspaceID
	}
	p.Icon = patchString(p.Icon, pt.Icon, unset(pt.Unset).has(FieldIcon))
	p.Color = patchString(p.Color, pt.Color, unset(pt.Unset).has(FieldColor))
	if pt.Order != nil {
		p.Order = *pt.Order
	}
	p.UpdatedAt = now
	return p
}

func (pt ProjectPatch) Fields(now time.Time) Document {
	d := Document{}
	if pt.Name != nil {
		d[FieldName] = *pt.Name
	}
	if pt.WorkspaceID != nil {
		d[FieldWorkspaceID] = *pt.WorkspaceID
	}
	putString(d, FieldIcon, pt.Icon, unset(pt.Unset).has(FieldIcon))
	putString(d, FieldColor, pt.Color, unset(pt.Unset).has(FieldColor))
	if pt.Order != nil {
		d[FieldOrder] = *pt.Order
	}
	return stamp(d, now)
}
