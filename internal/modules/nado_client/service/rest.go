package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// restTransport держит два клиента: query с ретраями, execute без них,
// чтобы подписанный ордер не уходил повторно мимо автомата submitter.
type restTransport struct {
	query *resty.Client
	exec  *resty.Client
}

func newRESTClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept-Encoding", "gzip").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
}

func newRESTTransport(baseURL string, timeout time.Duration, retries int) *restTransport {
	query := newRESTClient(baseURL, timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode() >= http.StatusInternalServerError)
		})
	return &restTransport{
		query: query,
		exec:  newRESTClient(baseURL, timeout),
	}
}

func (t *restTransport) Mode() Mode { return ModeREST }

func (t *restTransport) Query(ctx context.Context, q Query, out any) error {
	resp, err := t.query.R().
		SetContext(ctx).
		SetQueryParams(q.params()).
		Get("/query")
	if err != nil {
		return errors.Wrapf(err, "query %v", q["type"])
	}
	return t.handle(resp, out)
}

func (t *restTransport) Execute(ctx context.Context, payload any, out any) error {
	resp, err := t.exec.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post("/execute")
	if err != nil {
		return errors.Wrap(err, "execute")
	}
	return t.handle(resp, out)
}

func (t *restTransport) handle(resp *resty.Response, out any) error {
	var env envelope
	if err := sonic.Unmarshal(resp.Body(), &env); err != nil {
		if resp.IsError() {
			return errors.Errorf("http %d: %s", resp.StatusCode(), resp.String())
		}
		return errors.Wrap(err, "decode envelope")
	}
	return checkEnvelope(env, out)
}

func (t *restTransport) Close() error { return nil }
