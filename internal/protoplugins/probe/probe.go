// Package probe implements the built-in liveness plugin backing the
// admin TestProtocol command (spec §4.10, "TestProtocol {protocol}");
// nothing runs it on a schedule. It never touches a real
// backend: Invoke always returns OK, so registering a transaction
// against protocol "probe" exercises the Loader/Router/breaker plumbing
// itself rather than any mainframe-side system.
package probe

import (
	"context"
	"encoding/json"
	"time"

	"github.com/carles-abarca/NEO6/internal/abi"
)

const protocolName = "probe"

// Plugin is the built-in probe protocol plugin.
type Plugin struct {
	abi.BasePlugin
}

// New constructs a probe plugin. It takes no external dependencies.
func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string { return protocolName }

func (p *Plugin) Create(_ json.RawMessage) (abi.Handle, error) {
	return protocolName, nil
}

func (p *Plugin) Destroy(_ abi.Handle) error {
	return nil
}

// Invoke answers any transaction with a fixed liveness payload; it
// never returns anything but OK, since a failing probe is only
// meaningful for a real backend-facing plugin.
func (p *Plugin) Invoke(_ context.Context, _ abi.Handle, transactionID string, _ json.RawMessage) (json.RawMessage, abi.StatusCode) {
	body, _ := json.Marshal(map[string]interface{}{
		"alive":         true,
		"transaction_id": transactionID,
		"checked_at":    time.Now().UTC().Format(time.RFC3339),
	})
	return body, abi.OK
}
