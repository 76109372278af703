// Package compiler implements the TN3270 Template Compiler (spec
// §4.7): a single-pass compiler from bracket-tagged markup to a
// tn3270.CompiledProgram, plus a legacy v1 `<tag>`/`<pos:r,c>` dialect
// pre-pass.
package compiler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/carles-abarca/NEO6/internal/errors"
	"github.com/carles-abarca/NEO6/internal/logger"
	"github.com/carles-abarca/NEO6/internal/tn3270"
)

const (
	rows = 24
	cols = 80
)

var validAttrs = map[string]bool{
	"BLUE": true, "RED": true, "PINK": true, "GREEN": true, "TURQUOISE": true,
	"YELLOW": true, "WHITE": true, "DEFAULT": true,
	"BRIGHT": true, "BLINK": true, "UNDERLINE": true,
}

// Compile runs the full §4.7 pipeline: variable substitution, legacy
// dialect pre-pass, lexing, and single-pass compilation with position
// and field-overlap validation.
func Compile(template string, vars map[string]string) (*tn3270.CompiledProgram, error) {
	substituted := substituteVariables(template, vars)

	normalized, err := normalizeDialect(substituted)
	if err != nil {
		return nil, err
	}

	toks, err := lex(normalized)
	if err != nil {
		return nil, err
	}

	return compile(toks)
}

// substituteVariables replaces `{ident}` occurrences from vars.
// Unknown variables are left as literal text and logged (spec §4.7
// step 1).
func substituteVariables(template string, vars map[string]string) string {
	var out strings.Builder
	log := logger.TN3270()

	i := 0
	for i < len(template) {
		if template[i] != '{' {
			out.WriteByte(template[i])
			i++
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			out.WriteByte(template[i])
			i++
			continue
		}
		name := template[i+1 : i+end]
		if val, ok := vars[name]; ok {
			out.WriteString(val)
		} else {
			log.Warn().Str("variable", name).Msg("unknown template variable left as literal text")
			out.WriteString(template[i : i+end+1])
		}
		i += end + 1
	}
	return out.String()
}

type attrFrame struct {
	attr Attr
}

type fieldFrame struct {
	name       string
	attrs      tn3270.FieldAttrs
	startRow   int
	startCol   int
	startLin   int
}

// Attr is a local alias kept for readability inside this package.
type Attr = tn3270.Attr

func compile(toks []token) (*tn3270.CompiledProgram, error) {
	prog := &tn3270.CompiledProgram{Fields: make(map[string]tn3270.FieldSpan)}

	var attrStack []attrFrame
	var fieldStack []fieldFrame
	row, col := 1, 1

	advance := func(n int) {
		total := linear(row, col) + n
		row, col = fromLinear(total)
	}

	for _, t := range toks {
		switch t.kind {
		case tokText:
			prog.Ops = append(prog.Ops, tn3270.Op{Kind: tn3270.OpText, Text: t.text})
			advance(len([]rune(t.text)))

		case tokPos:
			switch {
			case t.colOnly:
				if err := validateCol(t.col); err != nil {
					return nil, err
				}
				col = t.col
				prog.Ops = append(prog.Ops, tn3270.Op{Kind: tn3270.OpMoveCol, Col: t.col})
			case t.rowOnly:
				if err := validateRow(t.row); err != nil {
					return nil, err
				}
				row = t.row
				prog.Ops = append(prog.Ops, tn3270.Op{Kind: tn3270.OpMoveRow, Row: t.row})
			default:
				if err := validateRow(t.row); err != nil {
					return nil, err
				}
				if err := validateCol(t.col); err != nil {
					return nil, err
				}
				row, col = t.row, t.col
				prog.Ops = append(prog.Ops, tn3270.Op{Kind: tn3270.OpMoveTo, Row: t.row, Col: t.col})
			}

		case tokOpenAttr:
			if !validAttrs[t.attr] {
				return nil, errors.New(errors.CodeTemplateUnbalancedTag, fmt.Sprintf("unknown attribute tag %q", t.attr))
			}
			attrStack = append(attrStack, attrFrame{attr: Attr(t.attr)})
			prog.Ops = append(prog.Ops, tn3270.Op{Kind: tn3270.OpPushAttr, Attr: Attr(t.attr)})

		case tokCloseAttr:
			if len(attrStack) == 0 {
				return nil, errors.New(errors.CodeTemplateUnbalancedTag,
					fmt.Sprintf("closing tag [/%s] has no matching open tag", t.attr))
			}
			top := attrStack[len(attrStack)-1]
			if string(top.attr) != t.attr {
				return nil, errors.New(errors.CodeTemplateUnbalancedTag,
					fmt.Sprintf("closing tag [/%s] does not match open tag [%s]", t.attr, top.attr))
			}
			attrStack = attrStack[:len(attrStack)-1]
			prog.Ops = append(prog.Ops, tn3270.Op{Kind: tn3270.OpPopAttr, Attr: top.attr})

		case tokFieldOpen:
			if len(fieldStack) > 0 {
				return nil, errors.New(errors.CodeTemplateUnbalancedTag,
					fmt.Sprintf("field %q opened while field %q is still open: fields may not nest", t.fieldDecl, fieldStack[0].name))
			}
			name, attrs, err := parseFieldDecl(t.fieldDecl)
			if err != nil {
				return nil, err
			}

			// BeginField consumes the current cell as its attribute byte,
			// then field content starts on the next cell (spec §4.8).
			advance(1)
			ff := fieldFrame{name: name, attrs: attrs, startRow: row, startCol: col, startLin: linear(row, col)}
			fieldStack = append(fieldStack, ff)
			prog.Ops = append(prog.Ops, tn3270.Op{Kind: tn3270.OpBeginField, FieldName: name, FieldAttrs: attrs})

		case tokFieldClose:
			if len(fieldStack) == 0 {
				return nil, errors.New(errors.CodeTemplateUnbalancedTag, "[/FIELD] has no matching [FIELD ...]")
			}
			ff := fieldStack[len(fieldStack)-1]
			fieldStack = fieldStack[:len(fieldStack)-1]

			prog.Fields[ff.name] = tn3270.FieldSpan{
				Name:   ff.name,
				Start:  ff.startLin,
				Length: ff.attrs.Length,
				Attrs:  ff.attrs,
				Row:    ff.startRow,
				Col:    ff.startCol,
			}
			prog.Ops = append(prog.Ops, tn3270.Op{Kind: tn3270.OpEndField, FieldName: ff.name})

			// The field reserves exactly Length cells regardless of how far
			// nested content moved the cursor.
			row, col = fromLinear(ff.startLin + ff.attrs.Length)
		}
	}

	if len(attrStack) > 0 {
		return nil, errors.New(errors.CodeTemplateUnbalancedTag,
			fmt.Sprintf("unclosed attribute tag [%s] at end of template", attrStack[len(attrStack)-1].attr))
	}
	if len(fieldStack) > 0 {
		return nil, errors.New(errors.CodeTemplateUnbalancedTag,
			fmt.Sprintf("unclosed field %q at end of template", fieldStack[0].name))
	}

	if err := validateNoOverlap(prog.Fields); err != nil {
		return nil, err
	}

	return prog, nil
}

func parseFieldDecl(decl string) (string, tn3270.FieldAttrs, error) {
	parts := strings.Split(decl, ",")
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return "", tn3270.FieldAttrs{}, errors.New(errors.CodeTemplateUnbalancedTag, "field declaration missing a name: "+decl)
	}
	name := strings.TrimSpace(parts[0])

	var attrs tn3270.FieldAttrs
	for _, raw := range parts[1:] {
		attr := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(attr, "length="):
			n, err := strconv.Atoi(strings.TrimPrefix(attr, "length="))
			if err != nil {
				return "", tn3270.FieldAttrs{}, errors.New(errors.CodeTemplateUnbalancedTag, fmt.Sprintf("field %q: invalid length attribute %q", name, attr))
			}
			attrs.Length = n
		case attr == "hidden":
			attrs.Hidden = true
		case attr == "numeric":
			attrs.Numeric = true
		case attr == "uppercase":
			attrs.Uppercase = true
		case attr == "protected":
			attrs.Protected = true
		case attr == "":
			// tolerate a trailing comma
		default:
			return "", tn3270.FieldAttrs{}, errors.New(errors.CodeTemplateUnbalancedTag, fmt.Sprintf("field %q: unknown attribute %q", name, attr))
		}
	}
	return name, attrs, nil
}

func validateNoOverlap(fields map[string]tn3270.FieldSpan) error {
	spans := make([]tn3270.FieldSpan, 0, len(fields))
	for _, f := range fields {
		spans = append(spans, f)
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	for i := 1; i < len(spans); i++ {
		prev, cur := spans[i-1], spans[i]
		if cur.Start <= prev.Start+prev.Length-1 {
			return errors.New(errors.CodeTemplateFieldsOverlap,
				fmt.Sprintf("field %q overlaps field %q", prev.Name, cur.Name))
		}
	}
	return nil
}

func validateRow(row int) error {
	if row < 1 || row > rows {
		return errors.New(errors.CodeTemplatePositionOutOfRange, fmt.Sprintf("row %d out of range 1..%d", row, rows))
	}
	return nil
}

func validateCol(col int) error {
	if col < 1 || col > cols {
		return errors.New(errors.CodeTemplatePositionOutOfRange, fmt.Sprintf("col %d out of range 1..%d", col, cols))
	}
	return nil
}

func linear(row, col int) int { return (row-1)*cols + (col - 1) }

func fromLinear(n int) (row, col int) {
	total := rows * cols
	n = ((n % total) + total) % total // wrap past (24,80) back to (1,1)
	return n/cols + 1, n%cols + 1
}
