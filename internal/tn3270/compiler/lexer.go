package compiler

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/carles-abarca/NEO6/internal/errors"
)

type tokenKind int

const (
	tokText tokenKind = iota
	tokPos
	tokOpenAttr
	tokCloseAttr
	tokFieldOpen
	tokFieldClose
)

type token struct {
	kind tokenKind
	text string // TextToken payload

	row, col   int // tokPos; col == 0 means "row only" ([Y n])
	rowOnly    bool
	colOnly    bool
	attr       string // tokOpenAttr / tokCloseAttr
	fieldDecl  string // tokFieldOpen, unparsed decl string
}

// lex tokenizes src (already variable-substituted) per the §4.7
// grammar: a run of text, or a bracket tag delimited by '[' ... ']'.
func lex(src string) ([]token, error) {
	var toks []token
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			toks = append(toks, token{kind: tokText, text: text.String()})
			text.Reset()
		}
	}

	i := 0
	for i < len(src) {
		c := src[i]
		if c != '[' {
			text.WriteByte(c)
			i++
			continue
		}

		end := strings.IndexByte(src[i:], ']')
		if end < 0 {
			// unterminated tag: treat the rest as text, matching the
			// grammar's "any codepoint run not starting with '['" fallback
			text.WriteByte(c)
			i++
			continue
		}
		tagBody := src[i+1 : i+end]
		i += end + 1

		tok, err := parseTag(tagBody)
		if err != nil {
			return nil, err
		}
		flush()
		toks = append(toks, tok)
	}
	flush()

	return toks, nil
}

// Position tags are distinguished from same-lettered attribute names
// (e.g. YELLOW vs. a bare "Y" row tag) by requiring the prefix to be
// followed by nothing but digits (and, for XY, a comma).
var (
	xyPosPattern = regexp.MustCompile(`^XY(\d+),(\d+)$`)
	xPosPattern  = regexp.MustCompile(`^X(\d+)$`)
	yPosPattern  = regexp.MustCompile(`^Y(\d+)$`)
)

func parseTag(body string) (token, error) {
	switch {
	case strings.HasPrefix(body, "/FIELD"):
		return token{kind: tokFieldClose}, nil

	case strings.HasPrefix(body, "FIELD "):
		return token{kind: tokFieldOpen, fieldDecl: strings.TrimSpace(body[len("FIELD "):])}, nil

	case strings.HasPrefix(body, "/"):
		return token{kind: tokCloseAttr, attr: body[1:]}, nil

	case xyPosPattern.MatchString(body):
		m := xyPosPattern.FindStringSubmatch(body)
		row, _ := strconv.Atoi(m[1])
		col, _ := strconv.Atoi(m[2])
		return token{kind: tokPos, row: row, col: col}, nil

	case xPosPattern.MatchString(body):
		m := xPosPattern.FindStringSubmatch(body)
		n, _ := strconv.Atoi(m[1])
		return token{kind: tokPos, col: n, colOnly: true}, nil

	case yPosPattern.MatchString(body):
		m := yPosPattern.FindStringSubmatch(body)
		n, _ := strconv.Atoi(m[1])
		return token{kind: tokPos, row: n, rowOnly: true}, nil

	case strings.HasPrefix(body, "XY") || (len(body) > 0 && (body[0] == 'X' || body[0] == 'Y') && hasDigit(body)):
		return token{}, errors.New(errors.CodeTemplatePositionOutOfRange, "malformed position tag: "+body)

	default:
		return token{kind: tokOpenAttr, attr: strings.TrimSpace(body)}, nil
	}
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
