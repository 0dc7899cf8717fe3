package models

import "time"

// Course is a unit of study offered in a given year and term.
type Course struct {
	ID           int64     `json:"id" db:"id"`
	CourseNumber int       `json:"course_number" db:"course_number"`
	CourseCode   string    `json:"course_code" db:"course_code"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description" db:"description"`
	Year         int       `json:"year" db:"year"`
	Term         string    `json:"term" db:"term"`
	Faculty      string    `json:"faculty" db:"faculty"`
	Credits      int       `json:"credits" db:"credits"`
	Capacity     int       `json:"capacity" db:"capacity"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Course model
func (Course) TableName() string {
	return "courses"
}

// Used when a new course is created without credits or capacity.
const (
	DefaultCredits  = 3
	DefaultCapacity = 50
)

// CourseData carries the mutable fields of a course for create and update.
// Zero Credits or Capacity means the caller left them out.
type CourseData struct {
	CourseNumber int
	CourseCode   string
	Name         string
	Description  string
	Year         int
	Term         string
	Faculty      string
	Credits      int
	Capacity     int
}

// NewCourse builds an unsaved course from data.
func NewCourse(data CourseData) *Course {
	c := &Course{}
	c.Apply(data)
	return c
}

// Apply copies data onto the course. The course number is only set when the course is new.
// Credits and capacity left out keep their stored values, or the defaults on a new course.
func (c *Course) Apply(data CourseData) {
	if c.ID == 0 {
		c.CourseNumber = data.CourseNumber
	}
	c.CourseCode = data.CourseCode
	c.Name = data.Name
	c.Description = data.Description
	c.Year = data.Year
	c.Term = data.Term
	c.Faculty = data.Faculty
	c.Credits = pick(data.Credits, c.Credits, DefaultCredits)
	c.Capacity = pick(data.Capacity, c.Capacity, DefaultCapacity)
}

// pick returns given when set, else the stored value, else def.
func pick(given, stored, def int) int {
	switch {
	case given > 0:
		return given
	case stored > 0:
		return stored
	default:
		return def
	}
}
