package remoteconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Scope is the OAuth scope granting read/write access to Remote Config templates.
	Scope = "https://www.googleapis.com/auth/firebase.remoteconfig"

	// DefaultBaseURL is the production Remote Config API host.
	DefaultBaseURL = "https://firebaseremoteconfig.googleapis.com"

	// DefaultTimeout bounds each call unless overridden with WithTimeout.
	DefaultTimeout = 30 * time.Second

	// ProjectIDEnv is consulted by New when no project ID is passed explicitly.
	ProjectIDEnv = "FIREBASE_PROJECT_ID"

	// WildcardVersion matches any server version in If-Match.
	WildcardVersion = "*"

	contentTypeJSON = "application/json; charset=utf-8"
	tracerName      = "github.com/florianilch/rconf/internal/remoteconfig"
)

var scopes = []string{Scope}

// Document is a Remote Config template. The store does not interpret it.
type Document map[string]any

// FetchResult is the outcome of a read.
type FetchResult struct {
	Version  string   `json:"etag" yaml:"etag"`
	Document Document `json:"data" yaml:"data"`
}

// UpdateResult is the outcome of a successful write.
type UpdateResult struct {
	Success  bool     `json:"success" yaml:"success"`
	Version  string   `json:"etag" yaml:"etag"`
	Document Document `json:"data" yaml:"data"`
}

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	baseURL   string
	timeout   time.Duration
	lookupEnv func(string) (string, bool)
}

// WithBaseURL points the store at another host, e.g. a local emulator.
func WithBaseURL(baseURL string) Option {
	return func(c *storeConfig) {
		c.baseURL = baseURL
	}
}

// WithTimeout bounds every call, token acquisition included. Zero disables the bound and
// leaves cancellation to the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *storeConfig) {
		c.timeout = d
	}
}

// WithLookupEnv replaces os.LookupEnv for resolving ProjectIDEnv.
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(c *storeConfig) {
		c.lookupEnv = lookup
	}
}

// Store reads and writes one project's Remote Config template using ETag/If-Match optimistic
// concurrency. It is immutable after New and safe for concurrent use.
type Store struct {
	endpoint  string
	transport Transport
	tokens    TokenProvider
	timeout   time.Duration
	tracer    trace.Tracer
}

// New creates a Store bound to the template endpoint of projectID. An empty projectID is
// resolved from FIREBASE_PROJECT_ID; ErrMissingProjectID is returned if that is empty as well.
func New(projectID string, transport Transport, tokens TokenProvider, opts ...Option) (*Store, error) {
	cfg := &storeConfig{
		baseURL:   DefaultBaseURL,
		timeout:   DefaultTimeout,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if transport == nil {
		return nil, errors.New("remoteconfig: missing transport")
	}
	if tokens == nil {
		return nil, errors.New("remoteconfig: missing token provider")
	}

	if projectID == "" {
		projectID, _ = cfg.lookupEnv(ProjectIDEnv)
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, ErrMissingProjectID
	}

	base, err := url.Parse(strings.TrimRight(cfg.baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("remoteconfig: invalid base URL %q", cfg.baseURL)
	}

	return &Store{
		endpoint:  base.String() + "/v1/projects/" + url.PathEscape(projectID) + "/remoteConfig",
		transport: transport,
		tokens:    tokens,
		timeout:   cfg.timeout,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// Endpoint returns the template URL the store is bound to.
func (s *Store) Endpoint() string {
	return s.endpoint
}

// Token returns a bearer credential for Scope.
func (s *Store) Token(ctx context.Context) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.token(ctx)
}

// Read fetches the current template and its version. A successful response without an ETag
// yields an empty Version.
func (s *Store) Read(ctx context.Context) (_ *FetchResult, err error) {
	ctx, end := s.startSpan(ctx, "Read")
	defer func() { end(err) }()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.do(ctx, http.MethodGet, http.Header{"Accept-Encoding": {"gzip"}}, nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(http.MethodGet, resp, false); err != nil {
		return nil, err
	}

	doc, err := decodeDocument(resp.Body)
	if err != nil {
		return nil, err
	}

	version := s.version(ctx, resp)
	slog.DebugContext(ctx, "remote config read", "endpoint", s.endpoint, "version", version)

	return &FetchResult{Version: version, Document: doc}, nil
}

// CurrentVersion performs a fresh Read and returns only its version.
func (s *Store) CurrentVersion(ctx context.Context) (string, error) {
	res, err := s.Read(ctx)
	if err != nil {
		return "", err
	}
	return res.Version, nil
}

// CurrentDocument performs a fresh Read and returns only its template.
func (s *Store) CurrentDocument(ctx context.Context) (Document, error) {
	res, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}
	return res.Document, nil
}

// Update writes doc if the server's template is still at expectedVersion. A stale version
// fails with ErrVersionConflict; callers are expected to Read again and reapply their change.
func (s *Store) Update(ctx context.Context, doc Document, expectedVersion string) (_ *UpdateResult, err error) {
	if expectedVersion == "" {
		return nil, ErrPreconditionMissing
	}

	ctx, end := s.startSpan(ctx, "Update")
	defer func() { end(err) }()

	return s.put(ctx, doc, expectedVersion)
}

// ForceUpdate writes doc with If-Match: *, regardless of the server's current version.
//
// This is unsafe with concurrent writers: a change made by someone else after your last read is
// silently discarded. Prefer Update.
func (s *Store) ForceUpdate(ctx context.Context, doc Document) (_ *UpdateResult, err error) {
	ctx, end := s.startSpan(ctx, "ForceUpdate")
	defer func() { end(err) }()

	slog.WarnContext(ctx, "forcing remote config write, concurrent changes will be overwritten", "endpoint", s.endpoint)

	return s.put(ctx, doc, WildcardVersion)
}

func (s *Store) put(ctx context.Context, doc Document, ifMatch string) (*UpdateResult, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("remoteconfig: encoding document: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	header := http.Header{}
	header.Set("If-Match", ifMatch)
	header.Set("Content-Type", contentTypeJSON)

	resp, err := s.do(ctx, http.MethodPut, header, body)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(http.MethodPut, resp, ifMatch != WildcardVersion); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			slog.InfoContext(ctx, "remote config write rejected, version is stale", "endpoint", s.endpoint, "version", ifMatch)
		}
		return nil, err
	}

	result, err := decodeDocument(resp.Body)
	if err != nil {
		return nil, err
	}

	version := s.version(ctx, resp)
	slog.DebugContext(ctx, "remote config written", "endpoint", s.endpoint, "version", version)

	return &UpdateResult{Success: true, Version: version, Document: result}, nil
}

// do attaches a fresh bearer credential and sends the request.
func (s *Store) do(ctx context.Context, method string, header http.Header, body []byte) (*Response, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	header.Set("Authorization", "Bearer "+token)

	resp, err := s.transport.Do(ctx, &Request{
		Method: method,
		URL:    s.endpoint,
		Header: header,
		Body:   body,
	})
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: %w: %s %s: %w", ErrTransport, ErrTimeout, method, s.endpoint, err)
		}
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, s.endpoint, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: %s %s: no response", ErrTransport, method, s.endpoint)
	}

	return resp, nil
}

func (s *Store) token(ctx context.Context) (string, error) {
	token, err := s.tokens.Token(ctx, scopes)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", fmt.Errorf("%w: %w: acquiring access token: %w", ErrTransport, ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if token == "" {
		return "", fmt.Errorf("%w: empty access token", ErrAuth)
	}
	return token, nil
}

func (s *Store) version(ctx context.Context, resp *Response) string {
	version := headerValue(resp.Header, "ETag")
	if version == "" {
		slog.WarnContext(ctx, "remote config response carried no ETag", "endpoint", s.endpoint)
	}
	return version
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) startSpan(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "remoteconfig."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("url.full", s.endpoint)),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// checkStatus maps non-2xx responses to ErrVersionConflict or ErrTransport. Only conditional
// writes can conflict.
func checkStatus(method string, resp *Response, conditional bool) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	statusErr := &StatusError{Method: method, StatusCode: resp.StatusCode, Body: resp.Body}
	if conditional && (resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusPreconditionFailed) {
		return fmt.Errorf("%w: %w", ErrVersionConflict, statusErr)
	}
	return fmt.Errorf("%w: %w", ErrTransport, statusErr)
}

// decodeDocument parses a JSON object. An empty body decodes to a nil Document.
func decodeDocument(body []byte) (Document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return doc, nil
}

// headerValue looks name up through http.Header's canonical form first, then falls back to a
// case-insensitive scan for transports that hand back non-canonical keys such as "etag".
func headerValue(h http.Header, name string) string {
	if v := strings.TrimSpace(h.Get(name)); v != "" {
		return v
	}
	for key, values := range h {
		if strings.EqualFold(key, name) && len(values) > 0 {
			if v := strings.TrimSpace(values[0]); v != "" {
				return v
			}
		}
	}
	return ""
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
