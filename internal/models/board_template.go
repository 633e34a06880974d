package models

import (
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BoardTemplate defines a project's status vocabulary as an ordered list of
// column names, serialized into a JSON column.
type BoardTemplate struct {
	gorm.Model

	Name    string         `gorm:"uniqueIndex;not null"`
	Columns datatypes.JSON `gorm:"type:jsonb"`
}

func (t *BoardTemplate) ColumnNames() ([]string, error) {
	var columns []string
	if err := json.Unmarshal(t.Columns, &columns); err != nil {
		return nil, err
	}
	return columns, nil
}
