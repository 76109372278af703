package compiler

import (
	"regexp"
	"strings"

	"github.com/carles-abarca/NEO6/internal/errors"
)

// legacyTagPattern matches the v1 `<tag>`/`<pos:r,c>` dialect: an
// open or close angle-bracket tag, a positional `<pos:row,col>`, or a
// `<FIELD ...>` declaration.
var legacyTagPattern = regexp.MustCompile(`<(/?[A-Za-z][A-Za-z0-9]*|pos:\d+,\d+|/?FIELD[^>]*)>`)

// v2TagPattern matches the current bracket grammar's recognizable
// forms, used only to detect an accidental dialect mix.
var v2TagPattern = regexp.MustCompile(`\[(?:XY?\d|/?[A-Z]+\]|/?FIELD[ /])`)

// normalizeDialect detects which dialect template is written in and,
// if it's the legacy v1 dialect, rewrites it to v2 bracket markup
// (spec §4.7: "v1 and v2 syntax MUST NOT mix in a single file").
func normalizeDialect(template string) (string, error) {
	hasLegacy := legacyTagPattern.MatchString(template)
	hasV2 := v2TagPattern.MatchString(template)

	if hasLegacy && hasV2 {
		return "", errors.New(errors.CodeTemplateMixedDialect, "template mixes v1 <tag> markup with v2 [tag] markup")
	}
	if !hasLegacy {
		return template, nil
	}

	return legacyToV2(template), nil
}

var (
	legacyPos        = regexp.MustCompile(`<pos:(\d+),(\d+)>`)
	legacyFieldOpen  = regexp.MustCompile(`<FIELD\s+([^>]*)>`)
	legacyFieldClose = regexp.MustCompile(`</FIELD>`)
	legacyOpen       = regexp.MustCompile(`<([A-Za-z][A-Za-z0-9]*)>`)
	legacyClose      = regexp.MustCompile(`</([A-Za-z][A-Za-z0-9]*)>`)
)

// legacyToV2 rewrites recognized v1 tags into their v2 bracket
// equivalents via pure textual substitution, as spec §4.7 describes.
func legacyToV2(template string) string {
	out := legacyPos.ReplaceAllString(template, "[XY$1,$2]")
	out = legacyFieldClose.ReplaceAllString(out, "[/FIELD]")
	out = legacyFieldOpen.ReplaceAllStringFunc(out, func(m string) string {
		decl := legacyFieldOpen.FindStringSubmatch(m)[1]
		return "[FIELD " + strings.TrimSpace(decl) + "]"
	})
	out = legacyClose.ReplaceAllString(out, "[/$1]")
	out = legacyOpen.ReplaceAllStringFunc(out, func(m string) string {
		name := legacyOpen.FindStringSubmatch(m)[1]
		if !validAttrs[strings.ToUpper(name)] {
			return m // leave unrecognized angle-bracket text untouched
		}
		return "[" + strings.ToUpper(name) + "]"
	})
	return out
}
