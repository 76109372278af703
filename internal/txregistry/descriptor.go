// Package txregistry implements the Transaction Registry (spec §4.3):
// a transaction-id-keyed map of descriptors parsed from
// transactions.yaml, with constant-time lookup and atomic reload.
package txregistry

// ParamType is one of the scalar or structural types a parameter may
// declare (spec §3).
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInt     ParamType = "int"
	TypeDecimal ParamType = "decimal" // alias "float" accepted at parse time
	TypeBool    ParamType = "bool"
	TypeObject  ParamType = "object"
)

// ParamSpec describes one parameter of a transaction's contract.
type ParamSpec struct {
	Name      string      `yaml:"name"`
	Type      ParamType   `yaml:"type"`
	Required  bool        `yaml:"required"`
	MaxLength *int        `yaml:"max_length,omitempty"`
	Pattern   string      `yaml:"pattern,omitempty"`
	Min       *float64    `yaml:"min,omitempty"`
	Max       *float64    `yaml:"max,omitempty"`
	Default   interface{} `yaml:"default,omitempty"`
}

// ResponseField is a named, typed field the caller may rely on in a
// successful response.
type ResponseField struct {
	Name string    `yaml:"name"`
	Type ParamType `yaml:"type"`
}

// ExpectedResponse is the nominal response shape advertised for a
// transaction, for documentation and response-shape enforcement.
type ExpectedResponse struct {
	Status string          `yaml:"status"`
	Fields []ResponseField `yaml:"fields"`
}

// Descriptor is the Transaction Descriptor of spec §3. The YAML key
// it's parsed under is the authoritative id (§9 Open Question); any
// inline `id` field inside the document is ignored.
type Descriptor struct {
	ID               string           `yaml:"-"`
	Protocol         string           `yaml:"protocol"`
	Endpoint         string           `yaml:"endpoint"`
	Parameters       []ParamSpec      `yaml:"parameters"`
	ExpectedResponse ExpectedResponse `yaml:"expected_response"`
	AllowExtras      bool             `yaml:"allow_extras"`
}

// Param returns the parameter spec named name, if the descriptor
// declares one.
func (d *Descriptor) Param(name string) (ParamSpec, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}
