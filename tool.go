package depth

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"
)

// Tool defines a research capability with one or more tool functions.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// ToolProvider lists tools available to a role and invokes them by name.
// Registry is the in-process implementation; remote tool servers can plug in
// behind the same interface.
type ToolProvider interface {
	// ListTools returns the tool definitions visible to the given role.
	ListTools(ctx context.Context, role string) ([]ToolDefinition, error)

	// Invoke executes a named tool under the given timeout and returns its
	// textual result. Tool errors come back as the error value; callers in
	// the research loop convert them to observations rather than failing.
	Invoke(ctx context.Context, name string, args json.RawMessage, timeout time.Duration) (string, error)
}

// Roles recognized by the registry. Search-type tools are only exposed to the
// researcher role; planning and writing roles get the non-search remainder.
const (
	RoleResearcher = "researcher"
	RoleSupervisor = "supervisor"
	RoleWriter     = "writer"
)

// defaultToolCacheTTL bounds how long a role's tool listing is served from
// cache before definitions are rebuilt.
const defaultToolCacheTTL = 300 * time.Second

// IsSearchTool reports whether a tool name denotes a search-type tool for the
// purposes of per-iteration and per-unit search budgeting.
func IsSearchTool(name string) bool {
	return strings.Contains(strings.ToLower(name), "search")
}

// roleCacheEntry is one cached role listing. The cache is an explicit value
// owned by the Registry instance; configHash invalidates it when the
// registered tool set changes.
type roleCacheEntry struct {
	defs       []ToolDefinition
	fetchedAt  time.Time
	configHash uint64
}

// Registry holds registered tools and serves role-filtered listings with a
// TTL cache. Safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	tools []Tool
	cache map[string]roleCacheEntry
	ttl   time.Duration
	now   func() time.Time // test seam
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// RegistryCacheTTL overrides the tool-listing cache TTL (default 300s).
// Zero or negative disables caching.
func RegistryCacheTTL(d time.Duration) RegistryOption {
	return func(r *Registry) { r.ttl = d }
}

// NewRegistry creates a registry over the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{
		tools: tools,
		cache: make(map[string]roleCacheEntry),
		ttl:   defaultToolCacheTTL,
		now:   time.Now,
	}
	return r
}

// NewRegistryWith creates a registry with options applied.
func NewRegistryWith(opts []RegistryOption, tools ...Tool) *Registry {
	r := NewRegistry(tools...)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a tool. Invalidates cached listings.
func (r *Registry) Add(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = append(r.tools, t)
	r.cache = make(map[string]roleCacheEntry)
}

// ListTools returns the definitions visible to role, from cache when fresh.
func (r *Registry) ListTools(_ context.Context, role string) ([]ToolDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hash := r.configHashLocked()
	if e, ok := r.cache[role]; ok && r.ttl > 0 &&
		e.configHash == hash && r.now().Sub(e.fetchedAt) < r.ttl {
		return e.defs, nil
	}

	defs := r.buildDefsLocked(role)
	r.cache[role] = roleCacheEntry{defs: defs, fetchedAt: r.now(), configHash: hash}
	return defs, nil
}

// buildDefsLocked collects definitions from all tools, applying the role
// filter: search-type tools are researcher-only.
func (r *Registry) buildDefsLocked(role string) []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range r.tools {
		for _, d := range t.Definitions() {
			if role != RoleResearcher && IsSearchTool(d.Name) {
				continue
			}
			defs = append(defs, d)
		}
	}
	return defs
}

// configHashLocked hashes the sorted registered tool names so cache entries
// invalidate when the tool set changes.
func (r *Registry) configHashLocked() uint64 {
	names := make([]string, 0, len(r.tools))
	for _, t := range r.tools {
		for _, d := range t.Definitions() {
			names = append(names, d.Name)
		}
	}
	sort.Strings(names)
	h := fnv.New64a()
	for _, n := range names {
		h.Write([]byte(n))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Invoke executes a named tool under timeout. Unknown tools and tool-reported
// errors surface as error values; research callers fold them into
// observations.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage, timeout time.Duration) (string, error) {
	r.mu.Lock()
	var target Tool
	for _, t := range r.tools {
		for _, d := range t.Definitions() {
			if d.Name == name {
				target = t
				break
			}
		}
		if target != nil {
			break
		}
	}
	r.mu.Unlock()

	if target == nil {
		return "", &ErrToolNotFound{Name: name}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := target.Execute(ctx, name, args)
	if err != nil {
		return "", err
	}
	if result.Error != "" {
		return "", &ErrToolFailed{Name: name, Message: result.Error}
	}
	return result.Content, nil
}

// ErrToolNotFound reports an invoke of an unregistered tool name.
type ErrToolNotFound struct {
	Name string
}

func (e *ErrToolNotFound) Error() string { return "unknown tool: " + e.Name }

// ErrToolFailed reports a tool that executed but returned an error payload.
type ErrToolFailed struct {
	Name    string
	Message string
}

func (e *ErrToolFailed) Error() string { return "tool " + e.Name + ": " + e.Message }

var _ ToolProvider = (*Registry)(nil)
