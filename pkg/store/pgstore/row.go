package pgstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tonehq/tonesync/pkg/models"
)

// JSONMap is a document body stored as JSONB.
type JSONMap map[string]any

func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONMap) Scan(value any) error {
	if value == nil {
		*j = make(map[string]any)
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("pgstore: cannot scan %T into JSONMap", value)
	}
	return json.Unmarshal(raw, j)
}

// Row is one document. Revision is rewritten on every write and, with the
// row count, makes up the fingerprint pollers compare.
type Row struct {
	Collection string    `gorm:"primaryKey;size:64"`
	ID         string    `gorm:"primaryKey;size:128"`
	OwnerID    string    `gorm:"index:idx_documents_owner;size:128;not null"`
	Data       JSONMap   `gorm:"type:jsonb;not null"`
	Revision   int64     `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (Row) TableName() string {
	return "tonesync_documents"
}

func newRow(collection, id string, doc models.Document, revision int64, now time.Time) Row {
	data := make(JSONMap, len(doc))
	for k, v := range doc {
		data[k] = v
	}
	data[models.FieldID] = id
	owner, _ := doc[models.FieldUserID].(string)
	return Row{
		Collection: collection,
		ID:         id,
		OwnerID:    owner,
		Data:       data,
		Revision:   revision,
		UpdatedAt:  now,
	}
}

func (r Row) document() models.Document {
	doc := make(models.Document, len(r.Data)+1)
	for k, v := range r.Data {
		doc[k] = v
	}
	doc[models.FieldID] = r.ID
	return doc
}
