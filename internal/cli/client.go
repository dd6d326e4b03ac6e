package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// IssueResponse — проблема сборки из API.
type IssueResponse struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Pid      int    `json:"pid,omitempty"`
	Slot     string `json:"slot,omitempty"`
	Message  string `json:"message"`
}

// BuildResponse — сборка из API.
type BuildResponse struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Config     json.RawMessage `json:"config"`
	Status     string          `json:"status"`
	Issues     []IssueResponse `json:"issues,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  string          `json:"started_at,omitempty"`
	FinishedAt string          `json:"finished_at,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

// TemplateSummary — строка листинга шаблонов из API.
type TemplateSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BuildRequest — вход сборки для API.
type BuildRequest struct {
	Name     string                       `json:"name"`
	Pipeline string                       `json:"pipeline"`
	Sources  any                          `json:"sources,omitempty"`
	Params   map[string]map[string]string `json:"params,omitempty"`

	NoDependency bool `json:"no_dependency,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для pipewright-api.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SubmitBuild ставит сборку в очередь.
func (c *Client) SubmitBuild(ctx context.Context, req BuildRequest) (*BuildResponse, error) {
	var build BuildResponse
	err := c.doData(ctx, http.MethodPost, "/api/v1/builds", req, &build)
	return &build, err
}

// GetBuild возвращает сборку по ID.
func (c *Client) GetBuild(ctx context.Context, id string) (*BuildResponse, error) {
	var build BuildResponse
	err := c.doData(ctx, http.MethodGet, "/api/v1/builds/"+url.PathEscape(id), nil, &build)
	return &build, err
}

// ListBuilds возвращает сборки, опционально по статусу.
func (c *Client) ListBuilds(ctx context.Context, status string, limit int) ([]BuildResponse, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	path := "/api/v1/builds"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var builds []BuildResponse
	err := c.doData(ctx, http.MethodGet, path, nil, &builds)
	return builds, err
}

// GetScript возвращает отрендеренный скрипт сборки.
func (c *Client) GetScript(ctx context.Context, id string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/builds/"+url.PathEscape(id)+"/script", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return "", err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(data), nil
}

// ListTemplates возвращает шаблоны сервера.
func (c *Client) ListTemplates(ctx context.Context) ([]TemplateSummary, error) {
	var templates []TemplateSummary
	err := c.doData(ctx, http.MethodGet, "/api/v1/templates", nil, &templates)
	return templates, err
}

// PushTemplate сохраняет HCL шаблон на сервере.
func (c *Client) PushTemplate(ctx context.Context, name, source string) error {
	body := map[string]string{"name": name, "source": source}
	return c.doData(ctx, http.MethodPost, "/api/v1/templates", body, nil)
}

// --- HTTP helpers ---

// doData выполняет запрос и разбирает поле data ответа
// (DataResponse и ListResponse API имеют одинаковое поле data).
func (c *Client) doData(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent || result == nil {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(dr.Data, result)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
