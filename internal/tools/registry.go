package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/sync/errgroup"

	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/llm"
)

// ServerConfig describes one external MCP tool server reachable over a child
// process's stdio.
type ServerConfig struct {
	Name    string
	Command string
	Env     map[string]string
}

// dynamicTool is a tool imported from an external MCP server.
type dynamicTool struct {
	def        llm.ToolDefinition
	serverName string
	schema     *jsonschema.Schema
}

// Registry is the process-wide tool catalogue. It is shared across sessions;
// external server stdio is multiplexed by the SDK session.
//
// The zero value is not usable; create instances with New.
type Registry struct {
	mu      sync.RWMutex
	dynamic map[string]dynamicTool
	servers map[string]*mcpsdk.ClientSession

	builtins []llm.ToolDefinition
	client   *mcpsdk.Client
	remote   *remoteExecutor
	logger   *slog.Logger
}

// Option customises a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for discovery and execution diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithRemoteExecutor replaces the remote-API executor. Used by tests.
func WithRemoteExecutor(re *remoteExecutor) Option {
	return func(r *Registry) { r.remote = re }
}

// New creates a Registry preloaded with the built-in tool catalogue.
func New(opts ...Option) *Registry {
	r := &Registry{
		dynamic:  make(map[string]dynamicTool),
		servers:  make(map[string]*mcpsdk.ClientSession),
		builtins: builtinDefinitions(),
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "voco-engine", Version: "1.0.0"},
			nil,
		),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.remote == nil {
		r.remote = newRemoteExecutor()
	}
	return r
}

// RegisterServers connects every configured server in parallel, since slow
// subprocess startups should not compound. A server that fails to connect is
// logged and skipped; the rest of the catalogue stays usable.
func (r *Registry) RegisterServers(ctx context.Context, cfgs []ServerConfig) {
	var g errgroup.Group
	for _, cfg := range cfgs {
		g.Go(func() error {
			if err := r.RegisterServer(ctx, cfg); err != nil {
				r.logger.Warn("tool server unavailable, continuing without it",
					"server", cfg.Name, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// RegisterServer connects to one stdio MCP server and imports its tools.
// Dynamic tool names shadow neither built-ins nor earlier servers; collisions
// are skipped with a warning.
func (r *Registry) RegisterServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("tools: server config must have a non-empty name")
	}
	executable, args := splitCommand(cfg.Command)
	if executable == "" {
		return fmt.Errorf("tools: server %q requires a non-empty command", cfg.Name)
	}

	cmd := exec.CommandContext(ctx, executable, args...)
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	session, err := r.client.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return fmt.Errorf("tools: connect to server %q: %w", cfg.Name, err)
	}

	var discovered []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("tools: list tools of server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, *tool)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.servers[cfg.Name]; ok {
		_ = old.Close()
		for name, t := range r.dynamic {
			if t.serverName == cfg.Name {
				delete(r.dynamic, name)
			}
		}
	}
	r.servers[cfg.Name] = session

	for _, t := range discovered {
		if r.ownsLocked(t.Name) {
			r.logger.Warn("dynamic tool name collides with existing tool, skipping",
				"server", cfg.Name, "tool", t.Name)
			continue
		}
		params := schemaToMap(t.InputSchema)
		r.dynamic[t.Name] = dynamicTool{
			def: llm.ToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
			serverName: cfg.Name,
			schema:     compileSchema(t.Name, params, r.logger),
		}
		r.logger.Info("dynamic tool registered", "server", cfg.Name, "tool", t.Name)
	}
	return nil
}

func (r *Registry) ownsLocked(name string) bool {
	if _, ok := r.dynamic[name]; ok {
		return true
	}
	for _, b := range r.builtins {
		if b.Name == name {
			return true
		}
	}
	return false
}

// compileSchema turns a JSON-schema-shaped map into a validator. A schema
// that fails to compile disables validation for that tool only.
func compileSchema(name string, params map[string]any, logger *slog.Logger) *jsonschema.Schema {
	if params == nil {
		return nil
	}
	// Round-trip so the compiler sees plain decoded JSON.
	raw, err := json.Marshal(params)
	if err != nil {
		return nil
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name+".schema.json", doc); err != nil {
		logger.Warn("tool schema rejected, skipping validation", "tool", name, "error", err)
		return nil
	}
	sch, err := c.Compile(name + ".schema.json")
	if err != nil {
		logger.Warn("tool schema failed to compile, skipping validation", "tool", name, "error", err)
		return nil
	}
	return sch
}

// Definitions returns the full catalogue advertised to the model: built-ins
// first, then dynamic tools.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(r.builtins)+len(r.dynamic))
	defs = append(defs, r.builtins...)
	for _, t := range r.dynamic {
		defs = append(defs, t.def)
	}
	return defs
}

// Classify returns the execution class of a tool. Dynamic tools execute
// in-process via their MCP session; unknown names default to local-RPC so a
// stray call still produces a paired result instead of a dropped turn.
func (r *Registry) Classify(name string) Classification {
	if c, ok := staticClass[name]; ok {
		return c
	}
	r.mu.RLock()
	_, dynamic := r.dynamic[name]
	r.mu.RUnlock()
	if dynamic {
		return ClassRemoteAPI
	}
	return ClassLocalRPC
}

// Execute runs a remote-API tool and always returns a string, following the
// tool-result contract: protocol-level errors become "Tool returned an
// error: …" and transport failures become "Error executing tool <name>: …",
// so the caller can wrap any outcome in a tool result message.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) string {
	r.mu.RLock()
	dyn, isDynamic := r.dynamic[name]
	r.mu.RUnlock()

	if isDynamic {
		return r.executeDynamic(ctx, dyn, argsJSON)
	}

	switch name {
	case ToolWebSearch:
		return r.remote.webSearch(ctx, argsJSON)
	case ToolGitHubReadIssue:
		return r.remote.githubReadIssue(ctx, argsJSON)
	case ToolGitHubCreatePR:
		return r.remote.githubCreatePR(ctx, argsJSON)
	default:
		return fmt.Sprintf("Error executing tool %s: tool is not executable in-process", name)
	}
}

func (r *Registry) executeDynamic(ctx context.Context, dyn dynamicTool, argsJSON string) string {
	var args map[string]any
	if strings.TrimSpace(argsJSON) != "" && argsJSON != "{}" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return fmt.Sprintf("Error executing tool %s: invalid arguments JSON: %v", dyn.def.Name, err)
		}
	}
	if dyn.schema != nil {
		if err := dyn.schema.Validate(anyMap(args)); err != nil {
			return fmt.Sprintf("Error executing tool %s: arguments failed validation: %v", dyn.def.Name, err)
		}
	}

	r.mu.RLock()
	session, ok := r.servers[dyn.serverName]
	r.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("Error executing tool %s: server %s is not connected", dyn.def.Name, dyn.serverName)
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      dyn.def.Name,
		Arguments: args,
	})
	if err != nil {
		return fmt.Sprintf("Error executing tool %s: %v", dyn.def.Name, err)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if result.IsError {
		return "Tool returned an error: " + sb.String()
	}
	return sb.String()
}

// anyMap normalises a nil map to an empty object for schema validation.
func anyMap(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// CloseServer disconnects one external server and withdraws its tools from
// the catalogue. Unknown names are a no-op.
func (r *Registry) CloseServer(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.servers[name]
	if !ok {
		return nil
	}
	delete(r.servers, name)
	for toolName, t := range r.dynamic {
		if t.serverName == name {
			delete(r.dynamic, toolName)
		}
	}
	if err := session.Close(); err != nil {
		return fmt.Errorf("tools: close server %q: %w", name, err)
	}
	return nil
}

// Close shuts down all external server connections.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, session := range r.servers {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("tools: close server %q: %w", name, err)
		}
		delete(r.servers, name)
	}
	r.dynamic = make(map[string]dynamicTool)
	return firstErr
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits a command string into executable and arguments.
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
