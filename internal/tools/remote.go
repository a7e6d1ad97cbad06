package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	tavilyEndpoint = "https://api.tavily.com/search"
	githubAPIBase  = "https://api.github.com"

	tavilyMaxResults = 3
)

// remoteExecutor runs the remote-API built-ins in-process. API keys are read
// from the environment at call time so update_env and auth_sync changes take
// effect without re-wiring.
type remoteExecutor struct {
	client     *http.Client
	tavilyURL  string
	githubBase string
}

func newRemoteExecutor() *remoteExecutor {
	return &remoteExecutor{
		client:     &http.Client{Timeout: 20 * time.Second},
		tavilyURL:  tavilyEndpoint,
		githubBase: githubAPIBase,
	}
}

// newRemoteExecutorForTest points the executor at test servers.
func newRemoteExecutorForTest(client *http.Client, tavilyURL, githubBase string) *remoteExecutor {
	return &remoteExecutor{client: client, tavilyURL: tavilyURL, githubBase: githubBase}
}

// ─── web_search (Tavily) ───

func (re *remoteExecutor) webSearch(ctx context.Context, argsJSON string) string {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || strings.TrimSpace(args.Query) == "" {
		return "Error executing tool web_search: a non-empty query is required"
	}

	apiKey := os.Getenv("TAVILY_API_KEY")
	if apiKey == "" {
		return "Error executing tool web_search: TAVILY_API_KEY is not set. Add it in Voco Settings."
	}

	body, _ := json.Marshal(map[string]any{
		"api_key":     apiKey,
		"query":       args.Query,
		"max_results": tavilyMaxResults,
	})
	resp, err := re.postJSON(ctx, re.tavilyURL, nil, body)
	if err != nil {
		return fmt.Sprintf("Error executing tool web_search: %v", err)
	}

	var out struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return fmt.Sprintf("Error executing tool web_search: decode response: %v", err)
	}
	if len(out.Results) == 0 {
		return "Web search returned no results for: " + args.Query
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Top %d web results for %q:\n", len(out.Results), args.Query)
	for i, r := range out.Results {
		fmt.Fprintf(&sb, "%d. %s (%s)\n%s\n", i+1, r.Title, r.URL, r.Content)
	}
	return sb.String()
}

// ─── GitHub ───

func (re *remoteExecutor) githubReadIssue(ctx context.Context, argsJSON string) string {
	var args struct {
		Repo        string `json:"repo"`
		IssueNumber int    `json:"issue_number"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || args.Repo == "" || args.IssueNumber <= 0 {
		return "Error executing tool github_read_issue: repo and issue_number are required"
	}

	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return "Error: GITHUB_TOKEN is not set. Add it in the Voco Settings modal."
	}

	url := fmt.Sprintf("%s/repos/%s/issues/%d", re.githubBase, args.Repo, args.IssueNumber)
	resp, err := re.getJSON(ctx, url, token)
	if err != nil {
		return fmt.Sprintf("Error executing tool github_read_issue: %v", err)
	}

	var issue struct {
		Title  string `json:"title"`
		Body   string `json:"body"`
		State  string `json:"state"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	}
	if err := json.Unmarshal(resp, &issue); err != nil {
		return fmt.Sprintf("Error executing tool github_read_issue: decode response: %v", err)
	}

	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.Name)
	}
	return fmt.Sprintf("Issue #%d in %s (%s)\nTitle: %s\nLabels: %s\n\n%s",
		args.IssueNumber, args.Repo, issue.State, issue.Title, strings.Join(labels, ", "), issue.Body)
}

func (re *remoteExecutor) githubCreatePR(ctx context.Context, argsJSON string) string {
	var args struct {
		Repo  string `json:"repo"`
		Title string `json:"title"`
		Body  string `json:"body"`
		Head  string `json:"head"`
		Base  string `json:"base"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || args.Repo == "" || args.Title == "" || args.Head == "" {
		return "Error executing tool github_create_pr: repo, title, and head are required"
	}
	if args.Base == "" {
		args.Base = "main"
	}

	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return "Error: GITHUB_TOKEN is not set. Add it in the Voco Settings modal."
	}

	body, _ := json.Marshal(map[string]string{
		"title": args.Title,
		"body":  args.Body,
		"head":  args.Head,
		"base":  args.Base,
	})
	url := fmt.Sprintf("%s/repos/%s/pulls", re.githubBase, args.Repo)
	resp, err := re.postJSON(ctx, url, map[string]string{"Authorization": "Bearer " + token}, body)
	if err != nil {
		return fmt.Sprintf("Error executing tool github_create_pr: %v", err)
	}

	var pr struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
	}
	if err := json.Unmarshal(resp, &pr); err != nil {
		return fmt.Sprintf("Error executing tool github_create_pr: decode response: %v", err)
	}
	return fmt.Sprintf("Opened pull request #%d: %s", pr.Number, pr.HTMLURL)
}

// ─── HTTP helpers ───

func (re *remoteExecutor) postJSON(ctx context.Context, url string, headers map[string]string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return re.do(req)
}

func (re *remoteExecutor) getJSON(ctx context.Context, url, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	return re.do(req)
}

func (re *remoteExecutor) do(req *http.Request) ([]byte, error) {
	resp, err := re.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
