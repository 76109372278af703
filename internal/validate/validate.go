// Package validate implements the Parameter Validator (spec §4.4): it
// checks a parameter tree against a transaction descriptor's declared
// contract — required-ness, type, and constraints — in declared
// order, injecting defaults and rejecting unknown parameters in
// strict mode.
//
// This is necessarily hand-rolled rather than built on
// go-playground/validator/v10 (used elsewhere in NEO6 for static
// struct-tag DTOs): the contract here is discovered at runtime from a
// Descriptor, not fixed at compile time in a Go struct, so there are
// no tags to attach a validator to.
package validate

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/carles-abarca/NEO6/internal/errors"
	"github.com/carles-abarca/NEO6/internal/txregistry"
)

// Params is the parameter tree carried by an invocation request —
// JSON-shaped, so values are the usual decode targets: string,
// float64, bool, map[string]interface{}, []interface{}, or nil.
type Params map[string]interface{}

var patternCache sync.Map // pattern string -> *regexp.Regexp

// Validate checks params against desc's declared parameters (spec
// §4.4, steps 1-5), returning a new Params with defaults injected. The
// input map is never mutated.
func Validate(desc *txregistry.Descriptor, params Params) (Params, error) {
	out := make(Params, len(params))
	for k, v := range params {
		out[k] = v
	}

	for _, spec := range desc.Parameters {
		val, present := out[spec.Name]

		if !present {
			if spec.Required {
				return nil, errors.ParamsInvalid(spec.Name, fmt.Sprintf("missing required parameter %q", spec.Name))
			}
			if spec.Default != nil {
				out[spec.Name] = spec.Default
			}
			continue
		}

		if err := checkType(spec, val); err != nil {
			return nil, err
		}
		if err := checkConstraints(spec, val); err != nil {
			return nil, err
		}
	}

	if !desc.AllowExtras {
		for name := range out {
			if _, ok := desc.Param(name); !ok {
				return nil, errors.ParamsInvalid(name, fmt.Sprintf("unexpected parameter %q", name))
			}
		}
	}

	return out, nil
}

// ValidateResponse checks a successful invocation's decoded response
// against desc's ExpectedResponse (spec §1, response-shape
// enforcement): every declared field must be present and of its
// declared type. Fields the response carries beyond those declared
// are left alone — ExpectedResponse documents the fields a caller may
// rely on, not a closed schema.
func ValidateResponse(desc *txregistry.Descriptor, data map[string]interface{}) error {
	for _, f := range desc.ExpectedResponse.Fields {
		val, present := data[f.Name]
		if !present {
			return errors.ResponseShapeInvalid(f.Name, fmt.Sprintf("response missing declared field %q", f.Name))
		}
		if err := checkResponseFieldType(f, val); err != nil {
			return err
		}
	}
	return nil
}

func checkResponseFieldType(f txregistry.ResponseField, val interface{}) error {
	ok := true
	switch f.Type {
	case txregistry.TypeString:
		_, ok = val.(string)
	case txregistry.TypeBool:
		_, ok = val.(bool)
	case txregistry.TypeInt:
		n, isFloat := val.(float64)
		ok = isFloat && n == float64(int64(n))
	case txregistry.TypeDecimal:
		_, ok = val.(float64)
	case txregistry.TypeObject:
		// any tree is accepted
	}
	if !ok {
		return errors.ResponseShapeInvalid(f.Name, fmt.Sprintf("response field %q must be of type %s", f.Name, f.Type))
	}
	return nil
}

func checkType(spec txregistry.ParamSpec, val interface{}) error {
	switch spec.Type {
	case txregistry.TypeString:
		if _, ok := val.(string); !ok {
			return typeMismatch(spec.Name, "string")
		}
	case txregistry.TypeBool:
		if _, ok := val.(bool); !ok {
			return typeMismatch(spec.Name, "bool")
		}
	case txregistry.TypeInt:
		f, ok := val.(float64)
		if !ok || f != float64(int64(f)) {
			return typeMismatch(spec.Name, "int")
		}
	case txregistry.TypeDecimal:
		if _, ok := val.(float64); !ok {
			return typeMismatch(spec.Name, "decimal")
		}
	case txregistry.TypeObject:
		// any tree is accepted
	default:
		return errors.ParamsInvalid(spec.Name, fmt.Sprintf("unknown declared type %q", spec.Type))
	}
	return nil
}

func typeMismatch(field, want string) error {
	return errors.New(errors.CodeParamsInvalid, fmt.Sprintf("parameter %q must be of type %s", field, want)).WithField(field)
}

func checkConstraints(spec txregistry.ParamSpec, val interface{}) error {
	if spec.MaxLength != nil {
		if s, ok := val.(string); ok && len(s) > *spec.MaxLength {
			return errors.ParamsInvalid(spec.Name, fmt.Sprintf("exceeds max_length %d", *spec.MaxLength))
		}
	}

	if spec.Pattern != "" {
		if s, ok := val.(string); ok {
			re, err := compiledPattern(spec.Pattern)
			if err != nil {
				return errors.ParamsInvalid(spec.Name, fmt.Sprintf("invalid pattern: %v", err))
			}
			if !re.MatchString(s) {
				return errors.ParamsInvalid(spec.Name, fmt.Sprintf("does not match pattern %q", spec.Pattern))
			}
		}
	}

	if spec.Min != nil || spec.Max != nil {
		if f, ok := val.(float64); ok {
			if spec.Min != nil && f < *spec.Min {
				return errors.ParamsInvalid(spec.Name, fmt.Sprintf("below min %v", *spec.Min))
			}
			if spec.Max != nil && f > *spec.Max {
				return errors.ParamsInvalid(spec.Name, fmt.Sprintf("above max %v", *spec.Max))
			}
		}
	}

	return nil
}

// compiledPattern anchors pattern at both ends (spec §4.4: "anchored
// implicitly at both ends") and caches the compiled regexp.
func compiledPattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}
