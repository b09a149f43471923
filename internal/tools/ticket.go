package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Tool names as the agent sees them
const (
	ProcedureSuggestionName = "get_procedure_suggestion"
	ESDBQueryName           = "query_esdb"
	StardustQueryName       = "query_stardust"
)

var errEmptyTicketID = errors.New("ticket id is required")

// ProcedureSuggestion asks the RAG server for resolution procedures
type ProcedureSuggestion struct {
	backend *backend
	url     string
}

func NewProcedureSuggestion(ragURL string, opts BackendOptions) *ProcedureSuggestion {
	return &ProcedureSuggestion{backend: newBackend("rag", opts), url: ragURL}
}

func (t *ProcedureSuggestion) Name() string { return ProcedureSuggestionName }

func (t *ProcedureSuggestion) Description() string {
	return "Queries the RAG (Retrieval-Augmented Generation) server to get a ranked list of " +
		"suggested procedures or knowledge base articles relevant to a given ticket ID. " +
		"This should be the primary tool for finding resolution steps. Input is the ticket ID."
}

func (t *ProcedureSuggestion) Call(ctx context.Context, input string) (string, error) {
	ticketID := cleanInput(input)
	if ticketID == "" {
		return "", errEmptyTicketID
	}
	t.backend.logger.Info("querying RAG server for ticket %s", ticketID)

	var out struct {
		Suggestion string `json:"suggestion"`
	}
	if err := t.backend.do(ctx, http.MethodPost, t.url, map[string]string{"ticket_id": ticketID}, &out); err != nil {
		return "", err
	}
	if out.Suggestion == "" {
		return fmt.Sprintf("No procedure suggestion found for ticket %s.", ticketID), nil
	}
	return out.Suggestion, nil
}

// ESDBQuery searches the Elasticsearch log index for records of a ticket
type ESDBQuery struct {
	backend *backend
	baseURL string
	index   string
	size    int
}

func NewESDBQuery(esdbURL, index string, opts BackendOptions) *ESDBQuery {
	return &ESDBQuery{
		backend: newBackend("esdb", opts),
		baseURL: strings.TrimRight(esdbURL, "/"),
		index:   index,
		size:    10,
	}
}

func (t *ESDBQuery) Name() string { return ESDBQueryName }

func (t *ESDBQuery) Description() string {
	return "Queries the ESDB (Elasticsearch Database) to retrieve raw logs, metrics, or historical " +
		"data related to a specific ticket ID. Use this to find error messages or past occurrences. " +
		"Input is the ticket ID."
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (t *ESDBQuery) Call(ctx context.Context, input string) (string, error) {
	ticketID := cleanInput(input)
	if ticketID == "" {
		return "", errEmptyTicketID
	}
	t.backend.logger.Info("querying ESDB for ticket %s", ticketID)

	query := map[string]any{
		"size": t.size,
		"query": map[string]any{
			"match": map[string]any{"ticket_id": ticketID},
		},
	}
	endpoint := fmt.Sprintf("%s/%s/_search", t.baseURL, url.PathEscape(t.index))

	var out searchResponse
	if err := t.backend.do(ctx, http.MethodPost, endpoint, query, &out); err != nil {
		return "", err
	}

	total := max(out.Hits.Total.Value, len(out.Hits.Hits))
	if total == 0 {
		return fmt.Sprintf("No related records found for ticket %s.", ticketID), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d related records for ticket %s:", total, ticketID)
	for _, hit := range out.Hits.Hits {
		var line bytes.Buffer
		if err := json.Compact(&line, hit.Source); err != nil {
			continue
		}
		b.WriteString("\n- ")
		b.Write(line.Bytes())
	}
	return b.String(), nil
}

// StardustQuery fetches structured ticket context from Stardust
type StardustQuery struct {
	backend *backend
	baseURL string
}

func NewStardustQuery(stardustURL string, opts BackendOptions) *StardustQuery {
	return &StardustQuery{backend: newBackend("stardust", opts), baseURL: strings.TrimRight(stardustURL, "/")}
}

func (t *StardustQuery) Name() string { return StardustQueryName }

func (t *StardustQuery) Description() string {
	return "Queries the 'Stardust' system to get structured information about the user, assets, " +
		"and services associated with a ticket ID. Input is the ticket ID."
}

func (t *StardustQuery) Call(ctx context.Context, input string) (string, error) {
	ticketID := cleanInput(input)
	if ticketID == "" {
		return "", errEmptyTicketID
	}
	t.backend.logger.Info("querying Stardust for ticket %s", ticketID)

	var raw json.RawMessage
	endpoint := fmt.Sprintf("%s/tickets/%s", t.baseURL, url.PathEscape(ticketID))
	if err := t.backend.do(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return "", err
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return "", fmt.Errorf("compact stardust reply: %w", err)
	}
	return compact.String(), nil
}

// NewTicketTools builds the standard tool set in the order the agent sees it
func NewTicketTools(ragURL, esdbURL, esdbIndex, stardustURL string, opts BackendOptions) (*Registry, error) {
	return NewRegistry(
		NewProcedureSuggestion(ragURL, opts),
		NewESDBQuery(esdbURL, esdbIndex, opts),
		NewStardustQuery(stardustURL, opts),
	)
}
