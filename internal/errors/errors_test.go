package errors

import (
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDefaults(t *testing.T) {
	err := Newf("something broke").Build()
	require.Error(t, err)
	assert.Equal(t, ComponentUnknown, err.Component)
	assert.Equal(t, CategoryGeneric, err.Category)
	assert.False(t, err.Timestamp.IsZero())
}

func TestBuilderCarriesContext(t *testing.T) {
	err := New(fs.ErrNotExist).
		Component("metadata").
		Category(CategoryNotFound).
		FileContext("/import/batch/a.tif").
		Context("row", 3).
		Build()

	assert.Equal(t, "metadata", err.Component)
	ctx := err.GetContext()
	assert.Equal(t, "/import/batch/a.tif", ctx["file_path"])
	assert.Equal(t, 3, ctx["row"])

	// mutating the copy must not touch the error
	ctx["row"] = 99
	assert.Equal(t, 3, err.GetContext()["row"])
}

func TestUnwrapChain(t *testing.T) {
	base := NewStd("digest mismatch")
	wrapped := New(fmt.Errorf("copy failed: %w", base)).
		Category(CategoryIntegrity).
		Build()

	assert.True(t, Is(wrapped, base))
	assert.True(t, HasCategory(wrapped, CategoryIntegrity))
	assert.False(t, HasCategory(wrapped, CategoryValidation))
}

func TestIsMatchesCategory(t *testing.T) {
	a := Newf("first").Category(CategoryPrivilege).Build()
	b := Newf("second").Category(CategoryPrivilege).Build()
	c := Newf("third").Category(CategoryFileIO).Build()

	assert.True(t, Is(a, b))
	assert.False(t, Is(a, c))
}
