package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carles-abarca/NEO6/internal/errors"
)

func TestCompileSimpleTemplate(t *testing.T) {
	prog, err := Compile("[XY1,1][BLUE]Welcome {user_id}[/BLUE]", map[string]string{"user_id": "ALICE"})
	require.NoError(t, err)
	require.NotEmpty(t, prog.Ops)
}

func TestCompileUnknownVariableLeftLiteral(t *testing.T) {
	prog, err := Compile("[XY1,1]Hello {missing}", nil)
	require.NoError(t, err)

	var joined string
	for _, op := range prog.Ops {
		joined += op.Text
	}
	assert.Contains(t, joined, "{missing}")
}

func TestCompileField(t *testing.T) {
	prog, err := Compile("[XY5,10][FIELD account_id,length=10,numeric][/FIELD]", nil)
	require.NoError(t, err)

	span, ok := prog.Fields["account_id"]
	require.True(t, ok)
	assert.Equal(t, 10, span.Length)
	assert.True(t, span.Attrs.Numeric)
	assert.Equal(t, 5, span.Row)
	assert.Equal(t, 11, span.Col) // field content starts one cell after the attribute byte
}

func TestCompileUnbalancedAttr(t *testing.T) {
	_, err := Compile("[BLUE]text[/RED]", nil)
	pe, ok := err.(*errors.ProxyError)
	require.True(t, ok)
	assert.Equal(t, errors.CodeTemplateUnbalancedTag, pe.Code)
}

func TestCompileUnclosedAttrAtEOF(t *testing.T) {
	_, err := Compile("[BLUE]text", nil)
	pe, ok := err.(*errors.ProxyError)
	require.True(t, ok)
	assert.Equal(t, errors.CodeTemplateUnbalancedTag, pe.Code)
}

func TestCompilePositionOutOfRange(t *testing.T) {
	_, err := Compile("[XY25,1]text", nil)
	pe, ok := err.(*errors.ProxyError)
	require.True(t, ok)
	assert.Equal(t, errors.CodeTemplatePositionOutOfRange, pe.Code)

	_, err = Compile("[XY1,81]text", nil)
	pe, ok = err.(*errors.ProxyError)
	require.True(t, ok)
	assert.Equal(t, errors.CodeTemplatePositionOutOfRange, pe.Code)
}

func TestCompileFieldsOverlap(t *testing.T) {
	_, err := Compile("[XY1,1][FIELD a,length=10][/FIELD][XY1,5][FIELD b,length=3][/FIELD]", nil)
	pe, ok := err.(*errors.ProxyError)
	require.True(t, ok)
	assert.Equal(t, errors.CodeTemplateFieldsOverlap, pe.Code)
}

func TestCompileNestedFieldRejected(t *testing.T) {
	_, err := Compile("[FIELD a,length=5][FIELD b,length=5][/FIELD][/FIELD]", nil)
	pe, ok := err.(*errors.ProxyError)
	require.True(t, ok)
	assert.Equal(t, errors.CodeTemplateUnbalancedTag, pe.Code)
}

func TestCompileLegacyDialect(t *testing.T) {
	prog, err := Compile("<pos:1,1><BLUE>Hello</BLUE>", nil)
	require.NoError(t, err)
	require.NotEmpty(t, prog.Ops)
}

func TestCompileMixedDialectRejected(t *testing.T) {
	_, err := Compile("<pos:1,1>Hello[BLUE]X[/BLUE]", nil)
	pe, ok := err.(*errors.ProxyError)
	require.True(t, ok)
	assert.Equal(t, errors.CodeTemplateMixedDialect, pe.Code)
}
