package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/builder6/builder6/pkg/config"
	apperrors "github.com/builder6/builder6/pkg/errors"
)

const (
	defaultShellTimeout = 30 * time.Second
	maxFetchBytes       = 1 << 20 // 1 MiB response cap for web_fetch
	searchEndpoint      = "https://www.googleapis.com/customsearch/v1"
)

// RegisterBuiltins adds the host-side primitives: shell execution, web
// fetch and web search.
func RegisterBuiltins(r *Registry, search config.SearchConfig, httpClient *http.Client) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	r.MustRegister(NewShellCommandTool())
	r.MustRegister(NewWebFetchTool(httpClient))
	r.MustRegister(NewWebSearchTool(search, httpClient))
}

// NewShellCommandTool runs a command on the host through sh -c with a
// bounded timeout.
func NewShellCommandTool() Tool {
	return Tool{
		Name:        "run_shell_command",
		Description: "Execute a shell command on the host and return its combined output",
		Parameters: ObjectSchema(map[string]any{
			"command":        StringProp("The shell command to execute"),
			"timeoutSeconds": IntProp("Optional timeout in seconds (default 30)"),
		}, "command"),
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			command, err := stringArg(args, "command")
			if err != nil {
				return nil, err
			}
			timeout := defaultShellTimeout
			if seconds, ok := optionalIntArg(args, "timeoutSeconds"); ok && seconds > 0 {
				timeout = time.Duration(seconds) * time.Second
			}
			cmdCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
			output, err := cmd.CombinedOutput()
			if err != nil {
				if cmdCtx.Err() == context.DeadlineExceeded {
					return nil, apperrors.New(apperrors.ErrCodeToolExecutionFailed,
						fmt.Sprintf("command timed out after %v", timeout), err)
				}
				// Non-zero exit still carries useful output for the model.
				return map[string]any{"output": string(output), "error": err.Error()}, nil
			}
			return string(output), nil
		},
	}
}

// NewWebFetchTool retrieves a URL over GET, capped at maxFetchBytes.
func NewWebFetchTool(client *http.Client) Tool {
	return Tool{
		Name:        "web_fetch",
		Description: "Fetch the contents of a URL over HTTP GET",
		Parameters: ObjectSchema(map[string]any{
			"url": StringProp("The http or https URL to fetch"),
		}, "url"),
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			rawURL, err := stringArg(args, "url")
			if err != nil {
				return nil, err
			}
			parsed, err := url.Parse(rawURL)
			if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
				return nil, apperrors.Newf(apperrors.ErrCodeToolArgumentInvalid,
					"url must be http or https: %s", rawURL)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return nil, apperrors.New(apperrors.ErrCodeToolExecutionFailed, "request build failed", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, apperrors.New(apperrors.ErrCodeToolExecutionFailed,
					fmt.Sprintf("fetch failed for %s", rawURL), err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
			if err != nil {
				return nil, apperrors.New(apperrors.ErrCodeToolExecutionFailed, "response read failed", err)
			}
			if resp.StatusCode >= 400 {
				return nil, apperrors.Newf(apperrors.ErrCodeToolExecutionFailed,
					"fetch failed for %s: status %d", rawURL, resp.StatusCode)
			}
			return string(body), nil
		},
	}
}

type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// NewWebSearchTool queries the Google Custom Search JSON API. Without an
// API key and engine id configured, invocations fail cleanly.
func NewWebSearchTool(cfg config.SearchConfig, client *http.Client) Tool {
	return Tool{
		Name:        "google_web_search",
		Description: "Search the web and return titles, links and snippets",
		Parameters: ObjectSchema(map[string]any{
			"query": StringProp("The search query"),
		}, "query"),
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			query, err := stringArg(args, "query")
			if err != nil {
				return nil, err
			}
			if cfg.APIKey == "" || cfg.SearchEngineID == "" {
				return nil, apperrors.Newf(apperrors.ErrCodeToolExecutionFailed,
					"google_web_search is not configured: searchApiKey and searchEngineId are required")
			}

			params := url.Values{}
			params.Set("key", cfg.APIKey)
			params.Set("cx", cfg.SearchEngineID)
			params.Set("q", query)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchEndpoint+"?"+params.Encode(), nil)
			if err != nil {
				return nil, apperrors.New(apperrors.ErrCodeToolExecutionFailed, "request build failed", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, apperrors.New(apperrors.ErrCodeToolExecutionFailed, "search request failed", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return nil, apperrors.Newf(apperrors.ErrCodeToolExecutionFailed,
					"search request failed: status %d", resp.StatusCode)
			}

			var parsed searchResponse
			if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
				return nil, apperrors.New(apperrors.ErrCodeToolExecutionFailed, "search response decode failed", err)
			}

			var sb strings.Builder
			for i, item := range parsed.Items {
				fmt.Fprintf(&sb, "%d. %s\n%s\n%s\n\n", i+1, item.Title, item.Link, item.Snippet)
			}
			if sb.Len() == 0 {
				return "No results found.", nil
			}
			return sb.String(), nil
		},
	}
}
