package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name" validate:"required,max=4"`
	Color string `json:"color" validate:"required,hexcolor"`
}

func TestValidationMessage(t *testing.T) {
	err := Validate.Struct(sample{Name: "toolong", Color: "red"})
	require.Error(t, err)
	require.Equal(t, "name must be at most 4 characters; color must be a hex color", ValidationMessage(err))

	err = Validate.Struct(sample{})
	require.Equal(t, "name is required; color is required", ValidationMessage(err))

	require.Equal(t, "boom", ValidationMessage(errors.New("boom")))
	require.NoError(t, Validate.Struct(sample{Name: "bob", Color: "#abc"}))
}

func TestNewIDIsUnique(t *testing.T) {
	require.NotEqual(t, NewID(), NewID())
}
