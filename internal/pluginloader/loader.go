package pluginloader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	goplugin "plugin"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carles-abarca/NEO6/internal/abi"
	"github.com/carles-abarca/NEO6/internal/errors"
	"github.com/carles-abarca/NEO6/internal/logger"
)

// DefaultDrainTimeout is the bounded wait before Unload escalates to a
// forced teardown (spec §4.2).
const DefaultDrainTimeout = 30 * time.Second

// Builtin is a factory for a protocol plugin that ships compiled into
// the proxy binary rather than discovered as a .so file — the same
// "built-in vs. dynamic" split the teacher's plugin discovery makes
// between its global registry and filesystem scan.
type Builtin func() abi.ProtocolPlugin

// Loader scans pluginDirs for .so files exporting a NewPlugin symbol,
// plus any Builtin plugins registered with RegisterBuiltin, and keeps
// them indexed in a Registry keyed by protocol name.
type Loader struct {
	pluginDirs   []string
	drainTimeout time.Duration

	builtinMu sync.RWMutex
	builtins  map[string]Builtin

	configMu sync.RWMutex
	configs  map[string]json.RawMessage

	registry atomic.Pointer[Registry]
}

// New creates a Loader over pluginDirs. Per-protocol configuration
// slices are supplied via SetConfig before LoadAll.
func New(pluginDirs []string) *Loader {
	l := &Loader{
		pluginDirs:   pluginDirs,
		drainTimeout: DefaultDrainTimeout,
		builtins:     make(map[string]Builtin),
		configs:      make(map[string]json.RawMessage),
	}
	l.registry.Store(newRegistry())
	return l
}

// RegisterBuiltin registers a compiled-in plugin factory. Built-ins
// take priority over a same-named .so discovered on disk.
func (l *Loader) RegisterBuiltin(name string, factory Builtin) {
	l.builtinMu.Lock()
	defer l.builtinMu.Unlock()
	l.builtins[name] = factory
}

// SetConfig stores the configuration slice passed to a protocol's
// Create call.
func (l *Loader) SetConfig(protocol string, configJSON json.RawMessage) {
	l.configMu.Lock()
	defer l.configMu.Unlock()
	l.configs[protocol] = configJSON
}

func (l *Loader) configFor(protocol string) json.RawMessage {
	l.configMu.RLock()
	defer l.configMu.RUnlock()
	if c, ok := l.configs[protocol]; ok {
		return c
	}
	return json.RawMessage(`{}`)
}

// Active returns the currently active registry. Callers that intend
// to issue an Invoke against it should hold onto the returned pointer
// rather than re-querying, so a concurrent Reload doesn't change which
// world they observe mid-call (property P6).
func (l *Loader) Active() *Registry {
	return l.registry.Load()
}

// LoadAll discovers every plugin (built-in + .so scan) and brings
// each to the ready state by calling Create. One plugin failing to
// load is logged and skipped; it never aborts the others (spec §4.2).
func (l *Loader) LoadAll(ctx context.Context) (*Registry, error) {
	reg := newRegistry()
	log := logger.Loader()

	l.builtinMu.RLock()
	for name, factory := range l.builtins {
		l.loadOne(reg, name, factory())
	}
	l.builtinMu.RUnlock()

	for _, name := range l.scanDynamic() {
		if reg.has(name) {
			continue // built-in shadows a same-named .so
		}
		p, err := l.openDynamic(name)
		if err != nil {
			log.Warn().Str("protocol", name).Err(err).Msg("PLUGIN_INVALID: failed to open shared library")
			continue
		}
		l.loadOne(reg, name, p)
	}

	l.registry.Store(reg)
	log.Info().Strs("protocols", reg.Names()).Msg("plugin registry loaded")
	return reg, nil
}

func (l *Loader) loadOne(reg *Registry, name string, p abi.ProtocolPlugin) {
	log := logger.Loader()

	if p.ABIVersion() != abi.Version {
		log.Warn().Str("protocol", name).Uint32("version", p.ABIVersion()).Msg("PLUGIN_INVALID: ABI version mismatch")
		return
	}
	if p.Name() != name {
		// A plugin's own Name() is the registry key of record; a
		// mismatch with the requested name is logged but not fatal.
		log.Warn().Str("requested", name).Str("reported", p.Name()).Msg("plugin name mismatch, using reported name")
		name = p.Name()
	}

	handle, err := p.Create(l.configFor(name))
	if err != nil {
		log.Warn().Str("protocol", name).Err(err).Msg("PLUGIN_INVALID: create failed")
		return
	}

	reg.entries[name] = &entry{plugin: p, handle: handle, state: StateActive}
	log.Info().Str("protocol", name).Msg("plugin ready")
}

// scanDynamic walks pluginDirs for .so files and returns candidate
// protocol names (the filename stem), mirroring the teacher's
// discoverDynamicPlugins.
func (l *Loader) scanDynamic() []string {
	var names []string
	for _, dir := range l.pluginDirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil || info == nil || info.IsDir() {
				return nil
			}
			if strings.HasSuffix(info.Name(), ".so") {
				names = append(names, strings.TrimSuffix(info.Name(), ".so"))
			}
			return nil
		})
	}
	return names
}

func (l *Loader) openDynamic(name string) (abi.ProtocolPlugin, error) {
	path := l.findPluginFile(name)
	if path == "" {
		return nil, fmt.Errorf("plugin file not found: %s", name)
	}
	p, err := goplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	sym, err := p.Lookup("NewPlugin")
	if err != nil {
		return nil, fmt.Errorf("missing get_protocol_interface (NewPlugin) symbol: %w", err)
	}
	factory, ok := sym.(func() abi.ProtocolPlugin)
	if !ok {
		return nil, fmt.Errorf("NewPlugin has wrong signature, expected func() abi.ProtocolPlugin")
	}
	return factory(), nil
}

func (l *Loader) findPluginFile(name string) string {
	for _, dir := range l.pluginDirs {
		for _, candidate := range []string{name + ".so", "neo6-" + name + ".so"} {
			path := filepath.Join(dir, candidate)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// Unload drains name: refuses new invocations, waits for in-flight
// ones to finish (bounded by drainTimeout, then forces teardown), then
// calls Destroy and removes it from the active registry.
func (l *Loader) Unload(name string) error {
	reg := l.registry.Load()
	e, ok := reg.entries[name]
	if !ok {
		return errors.ProtocolUnavailable(name)
	}

	e.mu.Lock()
	e.state = StateDraining
	e.mu.Unlock()

	deadline := time.After(l.drainTimeout)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
drain:
	for {
		if e.inflightCount() == 0 {
			break
		}
		select {
		case <-tick.C:
		case <-deadline:
			logger.Loader().Warn().Str("protocol", name).Msg("drain timeout exceeded, forcing teardown")
			break drain
		}
	}

	e.mu.Lock()
	e.state = StateDestroyed
	e.mu.Unlock()

	next := newRegistry()
	for k, v := range reg.entries {
		if k != name {
			next.entries[k] = v
		}
	}
	l.registry.Store(next)

	return e.plugin.Destroy(e.handle)
}

// Reload performs the atomic registry swap described in spec §4.2 and
// §5: a new registry is built from scratch (re-running LoadAll) before
// the old one is torn down; invocations already in flight against the
// old registry keep their own Registry pointer and finish uninterrupted.
func (l *Loader) Reload(ctx context.Context) (*Registry, error) {
	old := l.registry.Load()
	next, err := l.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	go l.drainAndDestroy(old, next)
	return next, nil
}

func (l *Loader) drainAndDestroy(old, next *Registry) {
	for name, e := range old.entries {
		if ne, ok := next.entries[name]; ok && ne == e {
			continue // same instance carried over, still active
		}
		for e.inflightCount() > 0 {
			time.Sleep(10 * time.Millisecond)
		}
		_ = e.plugin.Destroy(e.handle)
	}
}

// Invoke dispatches a single transaction against reg's entry for
// protocol, tracking in-flight reference counts for drain coordination.
func (r *Registry) Invoke(ctx context.Context, protocol, transactionID string, paramsJSON json.RawMessage) (json.RawMessage, abi.StatusCode, error) {
	e, ok := r.entries[protocol]
	if !ok {
		return nil, abi.Internal, errors.ProtocolUnavailable(protocol)
	}
	if !e.beginCall() {
		return nil, abi.Internal, errors.ProtocolUnavailable(protocol)
	}
	defer e.endCall()

	resp, status := e.plugin.Invoke(ctx, e.handle, transactionID, paramsJSON)
	return resp, status, nil
}
