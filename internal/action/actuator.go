package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultActuatorTimeout = 30 * time.Second

// Actuator — внешний исполнитель действий на устройстве.
//
// Реализации: HTTPActuator. Вызов либо возвращает результат, либо ошибку;
// повторы выполняет Sequencer.
type Actuator interface {
	Invoke(ctx context.Context, deviceID string, payload map[string]any, timeout time.Duration) (map[string]any, error)
}

// HTTPActuator — актуатор, доступный по HTTP.
//
// Запрос: POST {BaseURL}/devices/{deviceID}/{Path}
//
//	{"deviceId": "...", "payload": {...}, "timeoutMs": 30000}
//
// Ответ: JSON-объект — результат вызова. HTTP >= 400 — ошибка.
type HTTPActuator struct {
	// BaseURL — адрес сервиса актуаторов (например, http://localhost:9000).
	BaseURL string

	// Path — суффикс пути ("scripts", "shell").
	Path string

	// Client — HTTP-клиент. По умолчанию http.DefaultClient.
	Client *http.Client
}

// NewHTTPActuator создаёт HTTPActuator.
func NewHTTPActuator(baseURL, path string) *HTTPActuator {
	return &HTTPActuator{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Path:    strings.Trim(path, "/"),
		Client:  &http.Client{},
	}
}

type invokeRequest struct {
	DeviceID  string         `json:"deviceId"`
	Payload   map[string]any `json:"payload"`
	TimeoutMs int64          `json:"timeoutMs"`
}

// Invoke выполняет вызов актуатора.
func (a *HTTPActuator) Invoke(ctx context.Context, deviceID string, payload map[string]any, timeout time.Duration) (map[string]any, error) {
	if timeout <= 0 {
		timeout = defaultActuatorTimeout
	}

	// Таймаут
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(invokeRequest{
		DeviceID:  deviceID,
		Payload:   payload,
		TimeoutMs: timeout.Milliseconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal body: %v", ErrActuator, err)
	}

	endpoint := fmt.Sprintf("%s/devices/%s/%s", a.BaseURL, url.PathEscape(deviceID), a.Path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrActuator, err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrActuator, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrActuator, err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrActuator, resp.StatusCode, truncate(string(respBody), 200))
	}

	result := make(map[string]any)
	if len(bytes.TrimSpace(respBody)) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		// Не JSON-объект: отдаём тело как есть
		return map[string]any{"output": string(respBody)}, nil
	}
	return result, nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
