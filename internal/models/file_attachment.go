package models

import "gorm.io/gorm"

// Metadata row only; the blob lives on disk under the upload directory.
// TaskID deliberately carries no foreign key constraint: attachment rows are
// ownership pointers, and rows whose file has disappeared are pruned lazily
// when the task's attachments are listed.
type FileAttachment struct {
	gorm.Model

	TaskID      uint   `gorm:"not null;index"`
	Filename    string `gorm:"not null"`
	Path        string `gorm:"not null"`
	ContentType string
	Size        int64
}
