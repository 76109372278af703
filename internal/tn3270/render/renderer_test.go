package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carles-abarca/NEO6/internal/tn3270/compiler"
)

func TestRenderSimpleText(t *testing.T) {
	prog, err := compiler.Compile("[XY1,1]HELLO", nil)
	require.NoError(t, err)

	screen := Render(prog)
	assert.Equal(t, byte(0xC8), screen.Buffer[0].Char) // EBCDIC 'H'
	assert.Equal(t, 0, screen.Warnings)
}

func TestRenderWrapsAtColumn80(t *testing.T) {
	prog, err := compiler.Compile("[XY1,79]AB", nil)
	require.NoError(t, err)

	screen := Render(prog)
	assert.Equal(t, 2, screen.CursorRow) // wrapped to next row after col 80
	assert.Equal(t, 1, screen.CursorCol)
}

func TestRenderFieldWritesAttributeByte(t *testing.T) {
	prog, err := compiler.Compile("[XY1,1][FIELD acct,length=5,protected][/FIELD]", nil)
	require.NoError(t, err)

	screen := Render(prog)
	attrCell := screen.Buffer[linearIdx(1, 1)]
	assert.Equal(t, byte(0x20), attrCell.Attr)
}

func TestRenderDataStreamStartsWithWCC(t *testing.T) {
	prog, err := compiler.Compile("[XY1,1]X", nil)
	require.NoError(t, err)

	screen := Render(prog)
	require.NotEmpty(t, screen.DataStream)
	assert.Equal(t, byte(wcc), screen.DataStream[0])
}

func linearIdx(row, col int) int { return (row-1)*Cols + (col - 1) }
