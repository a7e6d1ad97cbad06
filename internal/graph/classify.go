package graph

import "strings"

// contextTags in priority order. When keyword scores tie, the earlier tag
// wins, which keeps classification deterministic.
var contextTags = []string{"ui", "database", "api", "devops", "git", "general"}

var tagKeywords = map[string][]string{
	"ui": {
		"ui", "button", "css", "layout", "style", "component", "render",
		"frontend", "react", "modal", "animation", "responsive", "tailwind",
	},
	"database": {
		"database", "sql", "query", "table", "schema", "migration",
		"postgres", "sqlite", "index", "transaction", "orm",
	},
	"api": {
		"api", "endpoint", "route", "request", "response", "http", "rest",
		"webhook", "graphql", "status code", "payload",
	},
	"devops": {
		"deploy", "docker", "kubernetes", "pipeline", "ci", "build",
		"release", "container", "terraform", "infra", "environment variable",
	},
	"git": {
		"git", "commit", "branch", "merge", "rebase", "pull request",
		"stash", "cherry-pick", "conflict",
	},
}

var tagHints = map[string]string{
	"ui":       "Focus area: frontend and UI. Reason at the component level and reference visible elements the user can see.",
	"database": "Focus area: data layer. Reason about schemas, queries, and migrations before touching application code.",
	"api":      "Focus area: HTTP APIs. Reason about routes, request/response shapes, and status codes.",
	"devops":   "Focus area: build and deployment. Reason about pipelines, containers, and environments.",
	"git":      "Focus area: version control. Reason about branches, commits, and history.",
}

// classifyContext tags the latest user utterance with a coarse domain so the
// orchestrator prompt can be focused. Purely lexical; no model call.
func classifyContext(text string) (tag, hint string) {
	lower := strings.ToLower(text)

	best := "general"
	bestScore := 0
	for _, t := range contextTags {
		score := 0
		for _, kw := range tagKeywords[t] {
			score += strings.Count(lower, kw)
		}
		if score > bestScore {
			best, bestScore = t, score
		}
	}
	return best, tagHints[best]
}
