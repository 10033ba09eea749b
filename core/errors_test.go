package core_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolisoft/makuta/core"
)

func TestValidationError_FieldMap(t *testing.T) {
	sentinel := errors.New("Le montant doit être supérieur à 0")

	err := core.NewValidationError(sentinel)
	vErr, ok := err.(*core.ValidationError)
	require.True(t, ok)
	assert.Nil(t, vErr.FieldMap())
	assert.Equal(t, sentinel.Error(), vErr.Error())
	assert.Equal(t, sentinel, vErr.Unwrap())

	err = core.NewValidationError(sentinel, core.FieldError{Field: "montant", Error: sentinel.Error()})
	vErr = err.(*core.ValidationError)
	assert.Equal(t, map[string]string{"montant": sentinel.Error()}, vErr.FieldMap())
}

func TestIsShutdown(t *testing.T) {
	err := core.NewShutdownError("integrity failure")
	assert.True(t, core.IsShutdown(err))
	assert.True(t, core.IsShutdown(errors.Wrap(err, "handling request")))
	assert.False(t, core.IsShutdown(errors.New("lol")))
}
