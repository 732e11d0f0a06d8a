package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateString_StubIngest(t *testing.T) {
	valid := `{"items": [
		{"source_stock_id": "S-1", "year": 2019, "make": "Toyota", "model": "Hilux"},
		{"source_stock_id": "S-2", "raw_text": "2020 Ranger XLT"}
	]}`
	assert.NoError(t, ValidateString(StubIngest, valid))
}

func TestValidateString_FieldErrors(t *testing.T) {
	invalid := `{"items": [
		{"detail_url": "https://example.com/lot/1"},
		{"source_stock_id": "S-2", "year": 1800}
	]}`
	err := ValidateString(StubIngest, invalid)
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.NotEmpty(t, ve.Errors)
	assert.Contains(t, ve.Error(), "source_stock_id")
}

func TestValidateString_MissingItems(t *testing.T) {
	err := ValidateString(StubIngest, `{}`)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
}

func TestValidateString_BadSchema(t *testing.T) {
	err := ValidateString(`{"type": ["bogus"]}`, `{}`)
	var sle *SchemaLoadError
	require.True(t, errors.As(err, &sle))
}
