package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var _ Store = (*PostgREST)(nil)

// APIError is the error body PostgREST returns on failed requests.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("postgrest %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("postgrest %d: %s", e.Status, e.Message)
}

// Unwrap maps HTTP and Postgres codes onto the store sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusConflict || e.Code == "23505":
		return ErrConflict
	case e.Status == http.StatusNotFound || e.Code == "PGRST116" || e.Code == "42P01" || e.Code == "22P02":
		return ErrNotFound
	}
	return nil
}

// PostgRESTOptions tunes the REST client.
type PostgRESTOptions struct {
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// PostgREST talks to a Supabase/PostgREST endpoint over HTTP.
type PostgREST struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewPostgREST creates a client for the project at baseURL authenticated by apiKey.
// The /rest/v1 suffix is appended when missing.
func NewPostgREST(baseURL, apiKey string, opts PostgRESTOptions, logger *zap.Logger) *PostgREST {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 200 * time.Millisecond
	}
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(base, "/rest/v1") {
		base += "/rest/v1"
	}

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(4*opts.RetryWait).
		AddRetryCondition(retryTransient).
		SetHeader("apikey", apiKey).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &PostgREST{http: client, logger: logger.With(zap.String("component", "postgrest"))}
}

// retryTransient retries network failures and 5xx answers, never inserts.
func retryTransient(r *resty.Response, err error) bool {
	if r != nil && r.Request != nil && r.Request.Method == http.MethodPost {
		return false
	}
	if err != nil {
		return true
	}
	return r != nil && r.StatusCode() >= http.StatusInternalServerError
}

func (p *PostgREST) FetchAll(ctx context.Context, table string) ([]Row, error) {
	return p.FetchWhere(ctx, table)
}

func (p *PostgREST) FetchByID(ctx context.Context, table, id string) (Row, error) {
	rows, err := p.FetchWhere(ctx, table, Eq("id", id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return rows[0], nil
}

func (p *PostgREST) FetchWhere(ctx context.Context, table string, filters ...Filter) ([]Row, error) {
	if err := p.check(table, filterColumns(filters)...); err != nil {
		return nil, err
	}
	var rows []Row
	req := p.request(ctx).
		SetQueryParam("select", "*").
		SetQueryParam("order", "name.asc").
		SetResult(&rows)
	applyFilters(req, filters)

	resp, err := req.Get("/" + table)
	if err := p.result(resp, err, "select", table); err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *PostgREST) Update(ctx context.Context, table, id string, patch Row) (Row, error) {
	if err := p.check(table, rowColumns(patch)...); err != nil {
		return nil, err
	}
	var rows []Row
	resp, err := p.request(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParam("id", "eq."+id).
		SetBody(patch).
		SetResult(&rows).
		Patch("/" + table)
	if err := p.result(resp, err, "update", table); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return rows[0], nil
}

func (p *PostgREST) InsertBatch(ctx context.Context, table string, rows []Row) error {
	if err := p.check(table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	resp, err := p.request(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody(rows).
		Post("/" + table)
	return p.result(resp, err, "insert", table)
}

func (p *PostgREST) DeleteWhere(ctx context.Context, table string, filters ...Filter) (int64, error) {
	if err := p.check(table, filterColumns(filters)...); err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		// PostgREST refuses unfiltered deletes; callers pass a neq guard instead.
		return 0, errors.New("delete requires at least one filter")
	}
	req := p.request(ctx).SetHeader("Prefer", "return=minimal,count=exact")
	applyFilters(req, filters)

	resp, err := req.Delete("/" + table)
	if err := p.result(resp, err, "delete", table); err != nil {
		return 0, err
	}
	n, _ := contentRangeTotal(resp.Header().Get("Content-Range"))
	return int64(n), nil
}

func (p *PostgREST) Search(ctx context.Context, table, query string, columns []string) ([]Row, error) {
	if err := p.check(table, columns...); err != nil {
		return nil, err
	}
	var rows []Row
	resp, err := p.request(ctx).
		SetQueryParam("select", "*").
		SetQueryParam("or", orILike(columns, query)).
		SetQueryParam("order", "name.asc").
		SetResult(&rows).
		Get("/" + table)
	if err := p.result(resp, err, "search", table); err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *PostgREST) Count(ctx context.Context, table string) (int, error) {
	if err := p.check(table); err != nil {
		return 0, err
	}
	resp, err := p.request(ctx).
		SetHeader("Prefer", "count=exact").
		SetQueryParam("select", "id").
		Head("/" + table)
	if err := p.result(resp, err, "count", table); err != nil {
		return 0, err
	}
	return contentRangeTotal(resp.Header().Get("Content-Range"))
}

func (p *PostgREST) AppendLog(ctx context.Context, entry LogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	resp, err := p.request(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody(entry).
		Post("/" + TableCheckinLog)
	return p.result(resp, err, "insert", TableCheckinLog)
}

func (p *PostgREST) Close() error { return nil }

func (p *PostgREST) check(table string, columns ...string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	return checkColumns(columns...)
}

func (p *PostgREST) request(ctx context.Context) *resty.Request {
	return p.http.R().SetContext(ctx).SetError(&APIError{})
}

func (p *PostgREST) result(resp *resty.Response, err error, op, table string) error {
	if err != nil {
		p.logger.Warn("request failed", zap.String("op", op), zap.String("table", table), zap.Error(err))
		return fmt.Errorf("%s %s: %w", op, table, err)
	}
	if resp.IsError() {
		apiErr, _ := resp.Error().(*APIError)
		if apiErr == nil {
			apiErr = &APIError{}
		}
		apiErr.Status = resp.StatusCode()
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(resp.String())
		}
		p.logger.Warn("request rejected",
			zap.String("op", op),
			zap.String("table", table),
			zap.Int("status_code", apiErr.Status),
			zap.String("code", apiErr.Code),
		)
		return fmt.Errorf("%s %s: %w", op, table, apiErr)
	}
	p.logger.Debug("request ok",
		zap.String("op", op),
		zap.String("table", table),
		zap.Duration("latency", resp.Time()),
	)
	return nil
}

func applyFilters(req *resty.Request, filters []Filter) {
	for _, f := range filters {
		req.QueryParam.Add(f.Column, string(f.Op)+"."+fmt.Sprint(f.Value))
	}
}

// orILike builds the PostgREST or=(...) expression matching query anywhere in any column.
func orILike(columns []string, query string) string {
	quoted := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(query)
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		parts = append(parts, fmt.Sprintf(`%s.ilike."*%s*"`, c, quoted))
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// contentRangeTotal parses the total from "0-24/87" or "*/87".
func contentRangeTotal(header string) (int, error) {
	i := strings.LastIndexByte(header, '/')
	if i < 0 || header[i+1:] == "*" {
		return 0, fmt.Errorf("content-range without total: %q", header)
	}
	return strconv.Atoi(header[i+1:])
}
