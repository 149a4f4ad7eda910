package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleSchema = `
name:
  required: true
  minLength: 2
  maxLength: 40
email:
  email: true
homepage:
  url: true
age:
  min: 0
  max: 130
code:
  pattern: '^[A-Z]{3}$'
  custom: upper
username:
  async: available
`

func testRegistry() *Registry {
	reg := NewRegistry()
	reg.RegisterCustom("upper", func(v any) (bool, error) { return true, nil })
	reg.RegisterAsync("available", func(context.Context, any) (bool, error) { return true, nil })
	return reg
}

func TestDecodeSchema(t *testing.T) {
	schema, err := DecodeSchema([]byte(sampleSchema), testRegistry())
	require.NoError(t, err)

	require.Equal(t, []string{"age", "code", "email", "homepage", "name", "username"}, schema.Fields())

	var nameKinds []RuleKind
	for _, r := range schema["name"] {
		nameKinds = append(nameKinds, r.Kind())
	}
	require.Equal(t, []RuleKind{KindRequired, KindMinLength, KindMaxLength}, nameKinds)
	require.Equal(t, MinLength{N: 2}, schema["name"][1])
	require.Equal(t, Min{N: 0}, schema["age"][0])
	require.True(t, schema.HasAsync())
}

func TestDecodeSchema_JSON(t *testing.T) {
	schema, err := DecodeSchema([]byte(`{"name": {"required": true}}`), nil)
	require.NoError(t, err)
	require.Equal(t, []Rule{Required{}}, schema["name"])
}

func TestDecodeSchema_ReportsAllProblems(t *testing.T) {
	doc := `
a:
  pattern: '('
b:
  custom: missing
c:
  minLength: 5
  maxLength: 2
`
	_, err := DecodeSchema([]byte(doc), NewRegistry())
	require.Error(t, err)
	require.Contains(t, err.Error(), "a: pattern")
	require.Contains(t, err.Error(), `unknown custom validator "missing"`)
	require.Contains(t, err.Error(), "minLength (5) exceeds maxLength (2)")
}

func TestDecodeSchema_Malformed(t *testing.T) {
	_, err := DecodeSchema([]byte("name: [unterminated"), nil)
	require.Error(t, err)
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCustom("x", nil)
	require.Panics(t, func() { reg.RegisterCustom("x", nil) })

	custom, async := testRegistry().Names()
	require.Equal(t, []string{"upper"}, custom)
	require.Equal(t, []string{"available"}, async)
}

func TestBuild_SkipsEmptySpecs(t *testing.T) {
	schema, err := Build(map[string]FieldSpec{"notes": {}}, nil)
	require.NoError(t, err)
	require.Empty(t, schema)
}
