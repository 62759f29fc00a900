package tasks

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shaiso/Taskq/internal/task"
	"github.com/shaiso/Taskq/internal/telemetry"
)

// Имена встроенных task.
const (
	NameEcho   = "echo"
	NameDelay  = "delay"
	NameHTTP   = "http.request"
	NameFail   = "fail"
	NameReject = "reject"
)

// Register добавляет встроенные task в реестр.
func Register(reg *task.Registry) {
	reg.Register(NameEcho, echo)
	reg.Register(NameDelay, delay)
	reg.Register(NameHTTP, (&HTTPRequest{Client: &http.Client{}}).Run, task.WithRetry(2))
	reg.Register(NameFail, fail)
	reg.Register(NameReject, reject)
}

// echo возвращает свои аргументы.
func echo(_ context.Context, args []any, kwargs map[string]any) (any, error) {
	return map[string]any{
		"args":   args,
		"kwargs": kwargs,
	}, nil
}

// delay ждёт kwargs["seconds"] (или args[0]) секунд. Default: 1.
func delay(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
	d := getSeconds(kwargs, "seconds", time.Second)
	if _, ok := kwargs["seconds"]; !ok && len(args) > 0 {
		if v, ok := toFloat(args[0]); ok && v > 0 {
			d = time.Duration(v * float64(time.Second))
		}
	}

	telemetry.FromContext(ctx).Debug("delaying", "seconds", d.Seconds())

	// Context-aware ожидание
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return map[string]any{"delayed_sec": d.Seconds()}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func fail(_ context.Context, _ []any, kwargs map[string]any) (any, error) {
	return nil, fmt.Errorf("%w: %s", ErrRequested, getString(kwargs, "message", "fail task"))
}

func reject(_ context.Context, _ []any, kwargs map[string]any) (any, error) {
	return nil, task.Reject(getString(kwargs, "reason", "reject task"))
}

// getString извлекает строку из map с default значением.
func getString(m map[string]any, key, defaultVal string) string {
	if val, ok := m[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return defaultVal
}

// getSeconds извлекает положительную длительность в секундах.
func getSeconds(m map[string]any, key string, defaultVal time.Duration) time.Duration {
	if v, ok := toFloat(m[key]); ok && v > 0 {
		return time.Duration(v * float64(time.Second))
	}
	return defaultVal
}

func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
