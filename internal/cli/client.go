package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// WorkerResponse — состояние worker'а из API.
type WorkerResponse struct {
	Queue         string     `json:"queue"`
	Hostname      string     `json:"hostname"`
	Running       bool       `json:"running"`
	StopRequested bool       `json:"stop_requested"`
	StartedAt     string     `json:"started_at,omitempty"`
	Uptime        string     `json:"uptime,omitempty"`
	Processed     int64      `json:"processed"`
	Overloaded    bool       `json:"overloaded"`
	Load          float64    `json:"load"`
	Limits        LimitsInfo `json:"limits"`
	Current       *Current   `json:"current,omitempty"`
}

// LimitsInfo — пороги worker'а из API.
type LimitsInfo struct {
	MaxRunTimeSec float64 `json:"max_run_time_sec"`
	MaxTasks      int64   `json:"max_tasks"`
	MaxLoad       float64 `json:"max_load"`
}

// Current — выполняемый сейчас envelope.
type Current struct {
	EnvelopeID string `json:"envelope_id"`
	Task       string `json:"task"`
	StartedAt  string `json:"started_at"`
}

// ExecutionResponse — запись журнала из API.
type ExecutionResponse struct {
	ID         string         `json:"id"`
	EnvelopeID string         `json:"envelope_id"`
	Task       string         `json:"task"`
	Queue      string         `json:"queue"`
	Args       []any          `json:"args"`
	Kwargs     map[string]any `json:"kwargs"`
	Outcome    string         `json:"outcome"`
	Action     string         `json:"action"`
	Error      string         `json:"error,omitempty"`
	Worker     string         `json:"worker"`
	StartedAt  string         `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
}

// ListExecutionsOpts — параметры фильтрации журнала.
type ListExecutionsOpts struct {
	Task    string
	Outcome string
	Limit   int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для admin API worker'а.
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

// Worker возвращает состояние worker'а.
func (c *Client) Worker() (*WorkerResponse, error) {
	var w WorkerResponse
	err := c.get("/api/v1/worker", &w)
	return &w, err
}

// StopWorker просит worker остановиться.
func (c *Client) StopWorker() (*WorkerResponse, error) {
	var w WorkerResponse
	err := c.post("/api/v1/worker/stop", nil, &w)
	return &w, err
}

// ListExecutions возвращает последние записи журнала.
func (c *Client) ListExecutions(opts ListExecutionsOpts) ([]ExecutionResponse, error) {
	params := url.Values{}
	if opts.Task != "" {
		params.Set("task", opts.Task)
	}
	if opts.Outcome != "" {
		params.Set("outcome", opts.Outcome)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var executions []ExecutionResponse
	err := c.list("/api/v1/executions", params, &executions)
	return executions, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
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
