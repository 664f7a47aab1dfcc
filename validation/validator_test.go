package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/field-workshops/labkit/http"
)

type projectParams struct {
	Identifier string `json:"identifier" validate:"required,identifier"`
	Email      string `json:"email" validate:"omitempty,email"`
	Namespace  string `json:"namespace" validate:"omitempty,k8sname"`
	Method     string `json:"method" validate:"omitempty,oneof=get post"`
	Attempts   int    `validate:"min=1"`
}

func TestValidatorAcceptsValidParams(t *testing.T) {
	err := Struct(projectParams{
		Identifier: "lab_project$1",
		Email:      "student@example.com",
		Namespace:  "hce",
		Method:     "get",
		Attempts:   3,
	})
	assert.NoError(t, err)
}

func TestValidatorReportsEveryField(t *testing.T) {
	err := Struct(projectParams{
		Identifier: "1-bad",
		Email:      "not-an-email",
		Namespace:  "Bad_Name",
		Method:     "delete",
		Attempts:   0,
	})
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Errors, 5)

	fields := map[string]string{}
	for _, fe := range ve.Errors {
		fields[fe.Field] = fe.Message
	}
	assert.Contains(t, fields["identifier"], "must start with a letter")
	assert.Contains(t, fields["email"], "valid e-mail")
	assert.Contains(t, fields["namespace"], "RFC 1123")
	assert.Contains(t, fields["method"], "one of: get post")
	assert.Contains(t, fields["Attempts"], "at least 1")

	assert.True(t, http.IsErrorType(err, http.ValidationError))
	assert.False(t, http.IsRetryable(err))
}

func TestValidatorRequired(t *testing.T) {
	err := Struct(projectParams{Attempts: 1})
	require.Error(t, err)
	assert.Equal(t, "validation failed: identifier is required", err.Error())
}

func TestValidatorNonStruct(t *testing.T) {
	err := Struct("plain string")
	require.Error(t, err)
	assert.True(t, http.IsErrorType(err, http.ValidationError))
}

func TestK8sNameLength(t *testing.T) {
	type ns struct {
		Name string `validate:"k8sname"`
	}
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, Struct(ns{Name: string(long)}))
	assert.NoError(t, Struct(ns{Name: string(long[:63])}))
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}
