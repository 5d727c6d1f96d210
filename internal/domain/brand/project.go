package brand

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Project is the brand identity card every batch execution runs against.
type Project struct {
	ID          uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string                      `gorm:"column:name;not null;index" json:"name"`
	Industry    string                      `gorm:"column:industry" json:"industry"`
	Market      string                      `gorm:"column:market" json:"market"`
	Website     string                      `gorm:"column:website" json:"website,omitempty"`
	Description string                      `gorm:"column:description" json:"description,omitempty"`
	Language    string                      `gorm:"column:language" json:"language,omitempty"`
	Competitors datatypes.JSONSlice[string] `gorm:"column:competitors" json:"competitors"`
	Attributes  datatypes.JSONSlice[string] `gorm:"column:attributes" json:"attributes"`
	Providers   datatypes.JSONSlice[string] `gorm:"column:providers" json:"providers,omitempty"`
	CreatedAt   time.Time                   `gorm:"not null;index" json:"createdAt"`
	UpdatedAt   time.Time                   `gorm:"not null" json:"updatedAt"`
	DeletedAt   gorm.DeletedAt              `gorm:"index" json:"-"`
}

func (Project) TableName() string { return "project" }

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// PromptSet holds the prompts for one pipeline of a project.
type PromptSet struct {
	ID           uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID    uuid.UUID                   `gorm:"type:uuid;not null;uniqueIndex:idx_prompt_set_project_pipeline" json:"projectId"`
	PipelineType string                      `gorm:"column:pipeline_type;not null;uniqueIndex:idx_prompt_set_project_pipeline" json:"pipelineType"`
	Prompts      datatypes.JSONSlice[string] `gorm:"column:prompts" json:"prompts"`
	Version      int                         `gorm:"column:version;not null;default:1" json:"version"`
	Source       string                      `gorm:"column:source;not null;default:manual" json:"source"`
	CreatedAt    time.Time                   `gorm:"not null" json:"createdAt"`
	UpdatedAt    time.Time                   `gorm:"not null" json:"updatedAt"`
}

func (PromptSet) TableName() string { return "prompt_set" }

func (p *PromptSet) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
