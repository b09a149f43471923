package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/nocops/itsm-agent/internal/models"
)

const defaultServerURL = "http://127.0.0.1:8000/invoke"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "A client to request ticket summaries from the AIOps AI Agent.\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <ticket_id>\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	serverURL := flag.String("url", defaultServerURL, "Agent invoke endpoint")
	timeout := flag.Duration("timeout", 30*time.Second, "Request timeout")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	ticketID := flag.Arg(0)

	fmt.Printf("Requesting summary for ticket: %s...\n", ticketID)

	summary, err := summarizeTicket(&http.Client{Timeout: *timeout}, *serverURL, ticketID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\n[ERROR] Request to the agent server at %s failed\n", *serverURL)
		fmt.Fprintf(os.Stderr, "Please ensure the server is running and accessible.\n")
		fmt.Fprintf(os.Stderr, "Details: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n--- Agent Summary ---")
	fmt.Println(summary)
	fmt.Println("---------------------")
}

// summaryPrompt is the request sent for every ticket
func summaryPrompt(ticketID string) string {
	return fmt.Sprintf("Please summarize ticket %s. Find the user, the core problem, and any affected services.", ticketID)
}

func summarizeTicket(client *http.Client, serverURL, ticketID string) (string, error) {
	payload, err := json.Marshal(models.InvokeRequest{Prompt: summaryPrompt(ticketID)})
	if err != nil {
		return "", err
	}

	resp, err := client.Post(serverURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp models.ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, errResp.Error)
		}
		return "", fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var out struct {
		Response *string `json:"response"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Response == nil {
		return "", errors.New("no response field found in the server's reply")
	}
	return *out.Response, nil
}
