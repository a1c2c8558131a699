// Command enginectl is an operator CLI for the engine's control surface:
// status, pause, resume and config inspection over the HTTP API
// internal/server exposes. Grounded on the teacher's
// cmd/license-admin/main.go (a small standalone CLI tool reading
// os.Args/flags and printing formatted results), adapted from an
// interactive prompt loop to a one-shot subcommand tool since each
// invocation here targets a long-running remote process rather than a
// local generator.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	addr := flag.NewFlagSet("enginectl", flag.ExitOnError)
	baseURL := addr.String("addr", "http://localhost:8080", "engine control surface base URL")
	token := addr.String("token", os.Getenv("PERPCORE_TOKEN"), "bearer access token (or set PERPCORE_TOKEN)")

	cmd := os.Args[1]
	args := os.Args[2:]
	if err := addr.Parse(args); err != nil {
		os.Exit(1)
	}

	client := &httpClient{base: *baseURL, token: *token, hc: &http.Client{Timeout: 10 * time.Second}}

	var err error
	switch cmd {
	case "status":
		err = client.getAndPrint("/status")
	case "config":
		err = client.getAndPrint("/config")
	case "pause":
		err = client.postAndPrint("/pause", nil)
	case "resume":
		err = client.postAndPrint("/resume", nil)
	case "login":
		err = runLogin(client, addr.Args())
	case "healthz":
		err = client.getAndPrint("/healthz")
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "enginectl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: enginectl <status|config|pause|resume|login|healthz> [-addr url] [-token token]")
	fmt.Println()
	fmt.Println("  login requires two positional args: operator_id password")
}

func runLogin(c *httpClient, positional []string) error {
	if len(positional) != 2 {
		return fmt.Errorf("login requires operator_id and password")
	}
	body, _ := json.Marshal(map[string]string{"operator_id": positional[0], "password": positional[1]})
	return c.postAndPrint("/login", body)
}

type httpClient struct {
	base  string
	token string
	hc    *http.Client
}

func (c *httpClient) do(method, path string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return respBody, resp.StatusCode, nil
}

func (c *httpClient) getAndPrint(path string) error {
	body, status, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return printResponse(status, body)
}

func (c *httpClient) postAndPrint(path string, payload []byte) error {
	body, status, err := c.do(http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	return printResponse(status, body)
}

func printResponse(status int, body []byte) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(body))
	}
	if status >= 400 {
		return fmt.Errorf("server responded with status %d", status)
	}
	return nil
}
