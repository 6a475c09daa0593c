package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// BackendRemote names the externally managed backend: sessions live in a
// workspace service and this process only holds handles.
const BackendRemote = "remote"

// Remote implements FS against the workspace service HTTP API (wsserver).
// Isolation and commit semantics are the service's overlay; this client maps
// transport and status codes back onto the shared error set.
type Remote struct {
	base   string
	client *http.Client
}

// NewRemote creates a client for the workspace service at baseURL.
// A nil httpClient uses http.DefaultClient.
func NewRemote(baseURL string, httpClient *http.Client) *Remote {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Remote{base: strings.TrimRight(baseURL, "/"), client: httpClient}
}

// CreateBase uploads a new base snapshot and returns its reference.
func (r *Remote) CreateBase(ctx context.Context, files map[string][]byte) (string, error) {
	var resp struct {
		Ref string `json:"ref"`
	}
	err := r.do(ctx, http.MethodPost, "/v1/bases", map[string]any{"files": files}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Ref, nil
}

// CreateSession opens a service-side session over base.
func (r *Remote) CreateSession(ctx context.Context, base string) (*Session, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := r.do(ctx, http.MethodPost, "/v1/sessions", map[string]any{"base": base}, &resp)
	if err != nil {
		return nil, err
	}
	return NewSession(resp.ID, base, BackendRemote), nil
}

// Read fetches the session view of path.
func (r *Remote) Read(ctx context.Context, s *Session, path string) ([]byte, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	var resp struct {
		Data []byte `json:"data"`
	}
	err := r.do(ctx, http.MethodGet, r.filePath(s, path), nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Write stores data at path in the session delta.
func (r *Remote) Write(ctx context.Context, s *Session, path string, data []byte) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return r.do(ctx, http.MethodPut, r.filePath(s, path), map[string]any{"data": data}, nil)
}

// Remove marks path deleted in the session delta.
func (r *Remote) Remove(ctx context.Context, s *Session, path string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return r.do(ctx, http.MethodDelete, r.filePath(s, path), nil, nil)
}

// List returns the entries at path in the session view.
func (r *Remote) List(ctx context.Context, s *Session, path string) ([]Entry, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	var resp struct {
		Entries []Entry `json:"entries"`
	}
	p := "/v1/sessions/" + url.PathEscape(s.ID) + "/list?path=" + url.QueryEscape(path)
	if err := r.do(ctx, http.MethodGet, p, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Diff returns the session delta relative to its base.
func (r *Remote) Diff(ctx context.Context, s *Session) ([]Change, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	var resp struct {
		Changes []Change `json:"changes"`
	}
	p := "/v1/sessions/" + url.PathEscape(s.ID) + "/diff"
	if err := r.do(ctx, http.MethodGet, p, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Changes, nil
}

// Commit folds the session delta into a new base on the service.
func (r *Remote) Commit(ctx context.Context, s *Session) (string, error) {
	if err := s.ensureOpen(); err != nil {
		return "", err
	}
	var resp struct {
		Ref string `json:"ref"`
	}
	p := "/v1/sessions/" + url.PathEscape(s.ID) + "/commit"
	if err := r.do(ctx, http.MethodPost, p, nil, &resp); err != nil {
		return "", err
	}
	if err := s.close(StatusCommitted); err != nil {
		return "", err
	}
	return resp.Ref, nil
}

// Discard drops the session delta on the service.
func (r *Remote) Discard(ctx context.Context, s *Session) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	p := "/v1/sessions/" + url.PathEscape(s.ID) + "/discard"
	if err := r.do(ctx, http.MethodPost, p, nil, nil); err != nil {
		return err
	}
	return s.close(StatusDiscarded)
}

func (r *Remote) filePath(s *Session, path string) string {
	return "/v1/sessions/" + url.PathEscape(s.ID) + "/file?path=" + url.QueryEscape(path)
}

// do performs one request and maps transport failures and error statuses to
// the shared workspace error set.
func (r *Remote) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrBackendUnavailable, err)
		}
	}
	return nil
}

// statusError maps an error response onto the shared sentinel set, carrying
// the service's message.
func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(raw))
	}

	var base error
	switch resp.StatusCode {
	case http.StatusNotFound:
		base = ErrNotFound
	case http.StatusForbidden:
		base = ErrPathDenied
	case http.StatusRequestEntityTooLarge:
		base = ErrQuotaExceeded
	case http.StatusConflict:
		base = ErrConflictingBase
	case http.StatusGone:
		base = ErrSessionClosed
	case http.StatusBadRequest:
		base = ErrUnknownBase
	default:
		base = ErrBackendUnavailable
	}
	if payload.Error == "" {
		return fmt.Errorf("%w: status %d", base, resp.StatusCode)
	}
	return fmt.Errorf("%w: %s", base, payload.Error)
}
