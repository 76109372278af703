package txregistry

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/carles-abarca/NEO6/internal/errors"
)

// document is the top-level transactions.yaml shape: { transactions: { <id>: <descriptor>, ... } }.
type document struct {
	Transactions map[string]Descriptor `yaml:"transactions"`
}

// Registry answers constant-time lookups by transaction id. Reload
// swaps the entire map atomically; a Descriptor already handed to a
// caller is never mutated in place.
type Registry struct {
	table atomic.Pointer[map[string]*Descriptor]
}

// New builds an empty Registry; call Load to populate it.
func New() *Registry {
	r := &Registry{}
	empty := make(map[string]*Descriptor)
	r.table.Store(&empty)
	return r
}

// Load parses path as transactions.yaml and atomically installs the
// resulting descriptor map, normalizing `float` to `decimal` and
// fixing up each Descriptor's ID from its YAML key.
func (r *Registry) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("read transactions.yaml: %v", err))
	}
	return r.LoadBytes(raw)
}

// LoadBytes is Load without the filesystem dependency, used by tests
// and by the admin ReloadConfig command when the document is supplied
// inline.
func (r *Registry) LoadBytes(raw []byte) error {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("parse transactions.yaml: %v", err))
	}

	table := make(map[string]*Descriptor, len(doc.Transactions))
	for id, desc := range doc.Transactions {
		d := desc
		d.ID = id
		for i := range d.Parameters {
			if d.Parameters[i].Type == "float" {
				d.Parameters[i].Type = TypeDecimal
			}
		}
		table[id] = &d
	}

	r.table.Store(&table)
	return nil
}

// Get returns the descriptor for id, or TRANSACTION_UNKNOWN.
func (r *Registry) Get(id string) (*Descriptor, error) {
	table := *r.table.Load()
	d, ok := table[id]
	if !ok {
		return nil, errors.TransactionUnknown(id)
	}
	return d, nil
}

// Len reports how many transactions are currently registered.
func (r *Registry) Len() int {
	return len(*r.table.Load())
}

// IDs returns every registered transaction id.
func (r *Registry) IDs() []string {
	table := *r.table.Load()
	ids := make([]string, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	return ids
}

// EndpointsFor returns a transaction-id → endpoint map for every
// descriptor registered under protocol, the shape an outbound
// protoplugins.* plugin's create() configJSON expects (see
// internal/protoplugins DESIGN.md entry).
func (r *Registry) EndpointsFor(protocol string) map[string]string {
	table := *r.table.Load()
	out := make(map[string]string)
	for id, d := range table {
		if d.Protocol == protocol {
			out[id] = d.Endpoint
		}
	}
	return out
}
