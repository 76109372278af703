// Package tn3270 holds the types shared across the template compiler
// (internal/tn3270/compiler), the screen renderer
// (internal/tn3270/render), and the field manager
// (internal/tn3270/fields): the compiled program, its draw-op stream,
// and the field index (spec §4.7-§4.9).
package tn3270

// Attr is one of the bracket markup's attribute names (spec §4.7).
type Attr string

const (
	AttrBlue      Attr = "BLUE"
	AttrRed       Attr = "RED"
	AttrPink      Attr = "PINK"
	AttrGreen     Attr = "GREEN"
	AttrTurquoise Attr = "TURQUOISE"
	AttrYellow    Attr = "YELLOW"
	AttrWhite     Attr = "WHITE"
	AttrDefault   Attr = "DEFAULT"
	AttrBright    Attr = "BRIGHT"
	AttrBlink     Attr = "BLINK"
	AttrUnderline Attr = "UNDERLINE"
)

// colorAttrs and modifierAttrs distinguish the two ways an attribute
// may combine: at most one color is active at a time, while BRIGHT/
// BLINK/UNDERLINE stack independently of it and of each other.
var colorAttrs = map[Attr]bool{
	AttrBlue: true, AttrRed: true, AttrPink: true, AttrGreen: true,
	AttrTurquoise: true, AttrYellow: true, AttrWhite: true, AttrDefault: true,
}

func (a Attr) IsColor() bool { return colorAttrs[a] }

// OpKind distinguishes a CompiledProgram's draw-ops.
type OpKind int

const (
	OpMoveTo OpKind = iota
	OpMoveCol
	OpMoveRow
	OpPushAttr
	OpPopAttr
	OpText
	OpBeginField
	OpEndField
)

// Op is one emitted draw-op (spec §4.8). Only the fields relevant to
// Kind are populated.
type Op struct {
	Kind OpKind
	Row  int
	Col  int
	Attr Attr
	Text string

	FieldName  string
	FieldAttrs FieldAttrs
}

// FieldAttrs are the per-field flags declared in a field_decl (spec §4.7).
type FieldAttrs struct {
	Length    int
	Hidden    bool
	Numeric   bool
	Uppercase bool
	Protected bool
}

// FieldSpan is a field's resolved position in the compiled buffer:
// the cell immediately after BeginField's attribute byte, running for
// Length cells.
type FieldSpan struct {
	Name     string
	Start    int // 0-based linear cell index (row*80+col)
	Length   int
	Attrs    FieldAttrs
	Row, Col int // 1-based, the cell following the attribute byte
}

// CompiledProgram is the output of the Template Compiler: an ordered
// draw-op stream plus a field index keyed by field name (spec §3,
// "TN3270 Compiled Program").
type CompiledProgram struct {
	Ops    []Op
	Fields map[string]FieldSpan
}
