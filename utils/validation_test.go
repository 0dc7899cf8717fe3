package utils

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type courseBody struct {
	CourseID   int    `json:"courseId" validate:"required,gte=1"`
	CourseCode string `json:"courseCode" validate:"required,notblank,max=32"`
	Credits    int    `json:"credits" validate:"gte=1,lte=6"`
	Term       string `json:"term" validate:"required"`
}

func validCourseBody() courseBody {
	return courseBody{CourseID: 101, CourseCode: "CS101", Credits: 3, Term: "Fall"}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*courseBody)
		field  string
		msg    string
	}{
		{"missing course id", func(b *courseBody) { b.CourseID = 0 }, "courseId", "courseId is required"},
		{"blank course code", func(b *courseBody) { b.CourseCode = "   " }, "courseCode", "courseCode must not be blank"},
		{"course code too long", func(b *courseBody) { b.CourseCode = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456" }, "courseCode", "courseCode must be at most 32"},
		{"too many credits", func(b *courseBody) { b.Credits = 7 }, "credits", "credits must be less than or equal to 6"},
		{"too few credits", func(b *courseBody) { b.Credits = 0 }, "credits", "credits must be greater than or equal to 1"},
		{"missing term", func(b *courseBody) { b.Term = "" }, "term", "term is required"},
	}

	t.Run("valid struct", func(t *testing.T) {
		b := validCourseBody()
		assert.NoError(t, ValidateStruct(&b))
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validCourseBody()
			tt.mutate(&b)

			err := ValidateStruct(&b)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))

			fields := GetValidationFields(err)
			require.Contains(t, fields, tt.field, "fields are reported by JSON name")
			assert.Equal(t, tt.msg, fields[tt.field])
		})
	}
}

func TestValidateStruct_NonStruct(t *testing.T) {
	err := ValidateStruct("not a struct")
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "Validation failed", Fields: map[string]string{"name": "name is required"}}
	assert.Equal(t, "Validation failed", err.Error())
}

func TestGetValidationFields(t *testing.T) {
	assert.Nil(t, GetValidationFields(assert.AnError))

	var verrs validator.ValidationErrors
	err := NewValidationError(verrs)
	assert.Empty(t, GetValidationFields(err))
}
