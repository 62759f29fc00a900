package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/Taskq/internal/task"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPRequest — task "http.request".
//
// Kwargs:
//   - method (string): HTTP-метод. Default: GET
//   - url (string): URL для запроса (обязательно)
//   - headers (map[string]any): HTTP-заголовки
//   - body (any): тело запроса (сериализуется в JSON)
//   - timeout_sec (number): таймаут запроса в секундах. Default: 30
//
// Результат:
//   - status_code (int): HTTP-код ответа
//   - headers (map[string]string): заголовки ответа
//   - body (any): тело ответа (JSON или строка)
//
// 429 и 503 — reject (сообщение вернётся в очередь), остальные 5xx —
// ошибка, прочие 4xx — discard.
type HTTPRequest struct {
	Client *http.Client
}

// Run выполняет HTTP-запрос.
func (h *HTTPRequest) Run(ctx context.Context, _ []any, kwargs map[string]any) (any, error) {
	method := getString(kwargs, "method", http.MethodGet)
	url := getString(kwargs, "url", "")
	if url == "" {
		return nil, task.Discard(fmt.Sprintf("%v: url is required", ErrBadArgument))
	}

	ctx, cancel := context.WithTimeout(ctx, getSeconds(kwargs, "timeout_sec", defaultHTTPTimeout))
	defer cancel()

	var bodyReader io.Reader
	if body, ok := kwargs["body"]; ok && body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal body: %v", ErrHTTPRequest, err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, task.Discard(fmt.Sprintf("%v: create request: %v", ErrHTTPRequest, err))
	}

	setHeaders(req, kwargs)

	// Content-Type по умолчанию для запросов с body
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}

	outputs := buildOutputs(resp, respBody)
	msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return outputs, task.Reject(msg)
	case resp.StatusCode >= 500:
		return outputs, fmt.Errorf("%w: %s", ErrHTTPStatus, msg)
	case resp.StatusCode >= 400:
		return outputs, task.Discard(msg)
	}

	return outputs, nil
}

// buildOutputs формирует результат из HTTP-ответа.
func buildOutputs(resp *http.Response, body []byte) map[string]any {
	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	// Парсим body: пробуем JSON, иначе строка
	var parsedBody any
	if err := json.Unmarshal(body, &parsedBody); err != nil {
		parsedBody = string(body)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        parsedBody,
	}
}

// setHeaders устанавливает заголовки из kwargs.
func setHeaders(req *http.Request, kwargs map[string]any) {
	headers, ok := kwargs["headers"]
	if !ok || headers == nil {
		return
	}

	switch h := headers.(type) {
	case map[string]any:
		for key, val := range h {
			if s, ok := val.(string); ok {
				req.Header.Set(key, s)
			}
		}
	case map[string]string:
		for key, val := range h {
			req.Header.Set(key, val)
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
