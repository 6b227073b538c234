package service

import (
	"context"
	"fmt"
	"strings"
)

type Mode string

const (
	ModeAuto Mode = "auto"
	ModeWS   Mode = "ws"   // gateway websocket, основной путь
	ModeREST Mode = "rest" // http fallback
)

// Query — запрос к /query, ключ "type" обязателен.
type Query map[string]any

func (q Query) params() map[string]string {
	out := make(map[string]string, len(q))
	for k, v := range q {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// Transport — единая логика для обоих режимов: query и execute.
// Режим выбирается один раз при старте (см. Dial) и дальше не меняется.
type Transport interface {
	Mode() Mode
	Query(ctx context.Context, q Query, out any) error
	Execute(ctx context.Context, payload any, out any) error
	Close() error
}

// RejectError — биржа ответила status=failure; текст идёт в классификатор.
type RejectError struct {
	Text string
	Code int
}

func (e *RejectError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d)", e.Text, e.Code)
	}
	return e.Text
}

func checkEnvelope(env envelope, out any) error {
	if !env.ok() {
		text := strings.TrimSpace(env.Error)
		if text == "" {
			text = "request failed with status " + env.Status
		}
		return &RejectError{Text: text, Code: env.ErrorCode}
	}
	return env.decode(out)
}
