package models

import (
	"fmt"
	"time"
)

// Assignment represents a collection of question blocks answered by students.
type Assignment struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	Title         string           `gorm:"size:255;not null" json:"title"`
	Description   string           `gorm:"type:text" json:"description"`
	StoragePath   string           `gorm:"size:255" json:"storage_path"`
	GradingScheme string           `gorm:"type:text" json:"grading_scheme"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Files         []AssignmentFile `json:"files"`
	Blocks        []Block          `json:"blocks"`
}

// AssignmentFile references a staff-uploaded file attached to an assignment,
// e.g. a database fixture consumed by verification actions.
type AssignmentFile struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	AssignmentID uint   `gorm:"not null;index" json:"assignment_id"`
	Label        string `gorm:"size:255" json:"label"`
	Name         string `gorm:"size:255;not null" json:"name"`
	Extension    string `gorm:"size:16" json:"extension"`
}

// URL resolves the public storage location of the file inside the given bucket.
func (f AssignmentFile) URL(bucket, storagePath string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s/%d%s", bucket, storagePath, f.ID, f.Extension)
}

// FileByLabel returns the assignment file matching the label, if any.
func (a Assignment) FileByLabel(label string) (AssignmentFile, bool) {
	for _, file := range a.Files {
		if file.Label == label {
			return file, true
		}
	}
	return AssignmentFile{}, false
}
