package models

import "time"

// Workspace is the root of the hierarchy.
type Workspace struct {
	ID        string
	Name      string
	UserID    string
	Icon      *string
	Color     *string
	Order     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (w Workspace) GetID() string      { return w.ID }
func (w Workspace) GetOrder() int      { return w.Order }
func (w Workspace) GetOwnerID() string { return w.UserID }

func (w Workspace) Document() Document {
	d := base(w.ID, w.UserID, w.Order, w.CreatedAt, w.UpdatedAt)
	d[FieldName] = w.Name
	d[FieldIcon] = optString(w.Icon)
	d[FieldColor] = optString(w.Color)
	return d
}

// DecodeWorkspace reads a workspace document.
func DecodeWorkspace(d Document) (Workspace, error) {
	var (
		w   Workspace
		err error
	)
	if w.ID, err = d.str(FieldID); err != nil {
		return w, err
	}
	if w.Name, err = d.str(FieldName); err != nil {
		return w, err
	}
	if w.UserID, err = d.str(FieldUserID); err != nil {
		return w, err
	}
	if w.Icon, err = d.optStr(FieldIcon); err != nil {
		return w, err
	}
	if w.Color, err = d.optStr(FieldColor); err != nil {
		return w, err
	}
	if w.Order, err = d.integer(FieldOrder); err != nil {
		return w, err
	}
	if w.CreatedAt, err = d.timestamp(FieldCreatedAt); err != nil {
		return w, err
	}
	if w.UpdatedAt, err = d.timestamp(FieldUpdatedAt); err != nil {
		return w, err
	}
	return w, nil
}

type WorkspaceDraft struct {
	Name  string
	Icon  *string
	Color *string
	Order int
}

func (dr WorkspaceDraft) Build(id, ownerID string, now time.Time) Workspace {
	return Workspace{
		ID:        id,
		Name:      dr.Name,
		UserID:    ownerID,
		Icon:      cloneString(dr.Icon),
		Color:     cloneString(dr.Color),
		Order:     dr.Order,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// WorkspacePatch updates the non-nil fields. Fields listed in Unset are
// cleared to absent; only FieldIcon and FieldColor are optional.
type WorkspacePatch struct {
	Name  *string
	Icon  *string
	Color *string
	Order *int
	Unset []Field
}

func (p WorkspacePatch) Apply(w Workspace, now time.Time) Workspace {
	if p.Name != nil {
		w.Name = *p.Name
	}
	w.Icon = patchString(w.Icon, p.Icon, unset(p.Unset).has(FieldIcon))
	w.Color = patchString(w.Color, p.Color, unset(p.Unset).has(FieldColor))
	if p.Order != nil {
		w.Order = *p.Order
	}
	w.UpdatedAt = now
	return w
}

func (p WorkspacePatch) Fields(now time.Time) Document {
	d := Document{}
	if p.Name != nil {
		d[FieldName] = *p.Name
	}
	putString(d, FieldIcon, p.Icon, unset(p.Unset).has(FieldIcon))
	putString(d, FieldColor, p.Color, unset(p.Unset).has(FieldColor))
	if p.Order != nil {
		d[FieldOrder] = *p.Order
	}
	return stamp(d, now)
}
