// Package tools maintains the catalogue of tools the model can call: static
// built-ins plus dynamic tools discovered from external MCP servers at
// startup.
//
// Every tool carries a classification that decides how the session executes
// it: local-RPC calls go to the desktop client over JSON-RPC, remote-API
// tools run in-process, HITL classes suspend the graph for user approval, and
// the inline classes exchange one synchronous request/reply with the client.
package tools

import "github.com/Radix-Obsidian/Voco-ai/pkg/provider/llm"

// Classification decides the execution path for a tool call.
type Classification int

const (
	// ClassLocalRPC runs on the desktop client via JSON-RPC with the
	// Instant-ACK background pattern.
	ClassLocalRPC Classification = iota

	// ClassRemoteAPI executes in-process against an external service or a
	// dynamic MCP server.
	ClassRemoteAPI

	// ClassFileProposal suspends the graph for file-change approval.
	ClassFileProposal

	// ClassCommandProposal suspends the graph for command approval.
	ClassCommandProposal

	// ClassInlineScreen exchanges one screen_capture_request synchronously.
	ClassInlineScreen

	// ClassInlineScan exchanges one scan_security_request synchronously.
	ClassInlineScan

	// ClassSandboxPreview stores HTML in the session sandbox slot.
	ClassSandboxPreview
)

// Built-in tool names.
const (
	ToolSearchCodebase        = "search_codebase"
	ToolReadFile              = "read_file"
	ToolListDirectory         = "list_directory"
	ToolGlobFind              = "glob_find"
	ToolProposeFileChange     = "propose_file_change"
	ToolProposeCommand        = "propose_command"
	ToolAnalyzeScreen         = "analyze_screen"
	ToolScanSecurity          = "scan_security"
	ToolCreateSandboxPreview  = "create_sandbox_preview"
	ToolUpdateSandboxPreview  = "update_sandbox_preview"
	ToolWebSearch             = "web_search"
	ToolGitHubReadIssue       = "github_read_issue"
	ToolGitHubCreatePR        = "github_create_pr"
)

// staticClass maps built-in tool names to their classification.
var staticClass = map[string]Classification{
	ToolSearchCodebase:       ClassLocalRPC,
	ToolReadFile:             ClassLocalRPC,
	ToolListDirectory:        ClassLocalRPC,
	ToolGlobFind:             ClassLocalRPC,
	ToolProposeFileChange:    ClassFileProposal,
	ToolProposeCommand:       ClassCommandProposal,
	ToolAnalyzeScreen:        ClassInlineScreen,
	ToolScanSecurity:         ClassInlineScan,
	ToolCreateSandboxPreview: ClassSandboxPreview,
	ToolUpdateSandboxPreview: ClassSandboxPreview,
	ToolWebSearch:            ClassRemoteAPI,
	ToolGitHubReadIssue:      ClassRemoteAPI,
	ToolGitHubCreatePR:       ClassRemoteAPI,
}

// rpcMethods maps local-RPC tool names to the JSON-RPC method invoked on the
// client.
var rpcMethods = map[string]string{
	ToolSearchCodebase: "local/search_project",
	ToolReadFile:       "local/read_file",
	ToolListDirectory:  "local/list_directory",
	ToolGlobFind:       "local/glob_find",
}

// RPCMethod returns the client JSON-RPC method for a local-RPC tool.
func RPCMethod(name string) (string, bool) {
	m, ok := rpcMethods[name]
	return m, ok
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// builtinDefinitions returns the static tool catalogue advertised to the
// model, fastest and most common tools first.
func builtinDefinitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name: ToolSearchCodebase,
			Description: "Search for code patterns in the active project using ripgrep. " +
				"Use this when the user asks to find code, locate a function, or grep for text.",
			Parameters: objectSchema(map[string]any{
				"pattern":      stringProp("Regex or literal string to search for."),
				"project_path": stringProp("Absolute path to the project directory to search."),
			}, "pattern"),
		},
		{
			Name:        ToolReadFile,
			Description: "Read the contents of a file in the active project.",
			Parameters: objectSchema(map[string]any{
				"file_path": stringProp("Path to the file, absolute or relative to the project root."),
			}, "file_path"),
		},
		{
			Name:        ToolListDirectory,
			Description: "List the entries of a directory in the active project.",
			Parameters: objectSchema(map[string]any{
				"dir_path": stringProp("Path to the directory, absolute or relative to the project root."),
			}, "dir_path"),
		},
		{
			Name:        ToolGlobFind,
			Description: "Find files matching a glob pattern in the active project.",
			Parameters: objectSchema(map[string]any{
				"glob":         stringProp("Glob pattern, e.g. **/*.ts."),
				"project_path": stringProp("Absolute path to the project directory."),
			}, "glob"),
		},
		{
			Name: ToolProposeFileChange,
			Description: "Propose creating or editing a file. The user must approve the change " +
				"before anything is written. Use for every file modification.",
			Parameters: objectSchema(map[string]any{
				"action":      map[string]any{"type": "string", "enum": []any{"create_file", "edit_file"}},
				"file_path":   stringProp("Path of the file to create or edit."),
				"content":     stringProp("Full file content for create_file."),
				"diff":        stringProp("Unified diff for edit_file."),
				"description": stringProp("One spoken sentence describing the change."),
			}, "action", "file_path"),
		},
		{
			Name: ToolProposeCommand,
			Description: "Propose running a shell command in the project directory. The user must " +
				"approve the command before it executes.",
			Parameters: objectSchema(map[string]any{
				"command":     stringProp("The shell command to run."),
				"description": stringProp("One spoken sentence describing what the command does."),
			}, "command"),
		},
		{
			Name: ToolAnalyzeScreen,
			Description: "Look at the user's screen to diagnose visible bugs, errors, or UI issues. " +
				"Use when the user refers to something they can see.",
			Parameters: objectSchema(map[string]any{
				"user_description": stringProp("What the user says is on screen, if anything."),
			}),
		},
		{
			Name: ToolScanSecurity,
			Description: "Run a local dependency and secret scan over the active project and " +
				"summarize the findings.",
			Parameters: objectSchema(map[string]any{
				"project_path": stringProp("Absolute path of the project to scan."),
			}),
		},
		{
			Name: ToolCreateSandboxPreview,
			Description: "Render a self-contained HTML page in the live sandbox preview panel.",
			Parameters: objectSchema(map[string]any{
				"html_code": stringProp("Complete HTML document to display."),
			}, "html_code"),
		},
		{
			Name:        ToolUpdateSandboxPreview,
			Description: "Replace the HTML currently shown in the sandbox preview panel.",
			Parameters: objectSchema(map[string]any{
				"html_code": stringProp("Complete HTML document to display."),
			}, "html_code"),
		},
		{
			Name: ToolWebSearch,
			Description: "Search the web for current documentation, error solutions, or technical " +
				"knowledge.",
			Parameters: objectSchema(map[string]any{
				"query": stringProp("The search query."),
			}, "query"),
		},
		{
			Name:        ToolGitHubReadIssue,
			Description: "Fetch the title, body, and labels of a GitHub issue.",
			Parameters: objectSchema(map[string]any{
				"repo":         stringProp("Repository in owner/name form."),
				"issue_number": map[string]any{"type": "integer", "description": "Issue number."},
			}, "repo", "issue_number"),
		},
		{
			Name:        ToolGitHubCreatePR,
			Description: "Open a GitHub pull request from an existing branch.",
			Parameters: objectSchema(map[string]any{
				"repo":  stringProp("Repository in owner/name form."),
				"title": stringProp("Pull request title."),
				"body":  stringProp("Pull request description."),
				"head":  stringProp("Branch with the changes."),
				"base":  stringProp("Branch to merge into, usually main."),
			}, "repo", "title", "head"),
		},
	}
}
