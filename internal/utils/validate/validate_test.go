package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcErr "github.com/oggyb/shaadimantra/internal/errors"
)

type signup struct {
	Email  string `json:"email" validate:"required,email"`
	Gender string `json:"gender" validate:"required,oneof=male female"`
	Height int    `json:"height_cm" validate:"omitempty,min=100,max=250"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(signup{Email: "a@b.in", Gender: "female"}))

	err := Struct(signup{Email: "nope", Height: 20})
	require.Error(t, err)
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))
	assert.Contains(t, err.Error(), "email: must be an email address")
	assert.Contains(t, err.Error(), "gender: is required")
	assert.Contains(t, err.Error(), "height_cm: must be at least 100")
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var("url", "https://cdn.example.com/a.jpg", "required,url"))
	assert.Error(t, Var("url", "not a url", "required,url"))
}
