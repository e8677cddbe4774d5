// Package vector provides the optional semantic index capability. The hub
// talks to an external vector service over a narrow REST contract; when no
// service is configured the capability is absent and callers degrade to
// exact/graph search. The vector store is never authoritative: results are
// advisory and must be intersected with tenant-scoped rows by the caller.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/neuralhub/neuralhub/internal/common/config"
	"github.com/neuralhub/neuralhub/internal/common/logger"
)

// Match is one similarity hit. EntityID refers to a knowledge-graph entity;
// the caller re-checks tenant ownership before using it.
type Match struct {
	EntityID string  `json:"entityId"`
	Score    float64 `json:"score"`
}

// Store is the vector capability. A nil Store means semantic search is
// unavailable and every call site must handle that.
type Store interface {
	// Upsert indexes one observation under an entity.
	Upsert(ctx context.Context, tenantID, entityID, observationID, content string) error

	// QuerySimilar returns up to limit entity matches for a free-text query,
	// filtered to the tenant by metadata.
	QuerySimilar(ctx context.Context, tenantID, query string, limit int) ([]Match, error)

	// Healthy reports whether the service answered a recent probe.
	Healthy(ctx context.Context) bool
}

// HTTPStore talks to a vector service exposing point upsert and search
// endpoints (Qdrant-style REST, with server-side embedding).
type HTTPStore struct {
	baseURL    string
	collection string
	client     *http.Client
	logger     *logger.Logger
}

// NewFromConfig returns an HTTPStore when a URL is configured, nil otherwise.
func NewFromConfig(cfg config.VectorConfig, log *logger.Logger) Store {
	if cfg.URL == "" {
		return nil
	}
	return &HTTPStore{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		collection: cfg.Collection,
		client:     &http.Client{Timeout: cfg.Timeout()},
		logger:     log.WithFields(zap.String("component", "vector")),
	}
}

type upsertRequest struct {
	ID      string            `json:"id"`
	Text    string            `json:"text"`
	Payload map[string]string `json:"payload"`
}

// Upsert indexes the observation content with {tenantId, entityId} metadata
// so queries can be filtered server-side and re-checked client-side.
func (s *HTTPStore) Upsert(ctx context.Context, tenantID, entityID, observationID, content string) error {
	body := upsertRequest{
		ID:   observationID,
		Text: content,
		Payload: map[string]string{
			"tenantId": tenantID,
			"entityId": entityID,
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal upsert: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points", s.baseURL, s.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("vector upsert failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("vector upsert returned %d", resp.StatusCode)
	}
	return nil
}

type searchRequest struct {
	Text   string            `json:"text"`
	Limit  int               `json:"limit"`
	Filter map[string]string `json:"filter"`
}

type searchResponse struct {
	Results []struct {
		Score   float64           `json:"score"`
		Payload map[string]string `json:"payload"`
	} `json:"results"`
}

// QuerySimilar runs a similarity search filtered to the tenant. Hits whose
// payload does not carry the expected tenant are dropped here as well; the
// SQL layer applies the final tenant check.
func (s *HTTPStore) QuerySimilar(ctx context.Context, tenantID, query string, limit int) ([]Match, error) {
	body := searchRequest{
		Text:   query,
		Limit:  limit,
		Filter: map[string]string{"tenantId": tenantID},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", s.baseURL, s.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vector search returned %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode vector search response: %w", err)
	}

	matches := make([]Match, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Payload["tenantId"] != tenantID {
			continue
		}
		entityID := r.Payload["entityId"]
		if entityID == "" {
			continue
		}
		matches = append(matches, Match{EntityID: entityID, Score: r.Score})
	}
	return matches, nil
}

// Healthy probes the collection endpoint.
func (s *HTTPStore) Healthy(ctx context.Context) bool {
	url := fmt.Sprintf("%s/collections/%s", s.baseURL, s.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode < 300
}
