package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

var webClient = &http.Client{Timeout: 30 * time.Second}

// registerWebTools adds web_search and web_fetch.
func registerWebTools(r *Registry) {
	r.MustRegister(&Tool{
		Name:        "web_fetch",
		Description: "Fetch a URL and return its readable text",
		Params: []Param{
			{Name: "url", Description: "Absolute http(s) URL", Type: TypeString, Required: true},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			target, _ := args["url"].(string)
			u, err := url.Parse(target)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				return "", fmt.Errorf("invalid url %q", target)
			}
			text, err := fetchText(ctx, target)
			if err != nil {
				return "", err
			}
			return clip(text), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "web_search",
		Description: "Search the web and return result snippets",
		Params: []Param{
			{Name: "query", Description: "Search query", Type: TypeString, Required: true},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			target := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query)
			text, err := fetchText(ctx, target)
			if err != nil {
				return "", err
			}
			return clip(text), nil
		},
	})
}

func fetchText(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "codesmith/0.3")

	resp, err := webClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(ct, "html") {
		return string(body), nil
	}
	return htmlToText(string(body)), nil
}

// htmlToText strips tags, scripts, and styles from an HTML document.
func htmlToText(doc string) string {
	node, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return doc
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				b.WriteString(text)
				b.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return b.String()
}
