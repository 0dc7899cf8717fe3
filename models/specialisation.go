package models

import "time"

// Specialisation groups courses into a named study track with a credit requirement.
type Specialisation struct {
	ID              int64     `json:"id" db:"id"`
	Code            string    `json:"code" db:"code"`
	Name            string    `json:"name" db:"name"`
	Description     string    `json:"description" db:"description"`
	Year            int       `json:"year" db:"year"`
	CreditsRequired int       `json:"credits_required" db:"credits_required"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Specialisation model
func (Specialisation) TableName() string {
	return "specialisations"
}

// SpecialisationData carries the mutable fields of a specialisation.
type SpecialisationData struct {
	Code            string
	Name            string
	Description     string
	Year            int
	CreditsRequired int
}

// Apply copies data onto the specialisation.
func (s *Specialisation) Apply(data SpecialisationData) {
	s.Code = data.Code
	s.Name = data.Name
	s.Description = data.Description
	s.Year = data.Year
	s.CreditsRequired = data.CreditsRequired
}
