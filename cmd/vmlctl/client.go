package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// clientConfig is read from ~/.vmlctl.yaml unless --config points elsewhere.
type clientConfig struct {
	APIBase string        `yaml:"api_base"`
	Timeout time.Duration `yaml:"timeout"`
}

func loadClientConfig(path string) (clientConfig, error) {
	cfg := clientConfig{Timeout: 30 * time.Second}

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(home, ".vmlctl.yaml")
		if _, err := os.Stat(path); err != nil {
			return cfg, nil
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return clientConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return clientConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return cfg, nil
}

type apiClient struct {
	base string
	http *http.Client
}

func (c *apiClient) configure(cfg clientConfig) {
	c.base = strings.TrimRight(cfg.APIBase, "/")
	c.http = &http.Client{Timeout: cfg.Timeout}
}

func (c *apiClient) startSync(ctx context.Context, platform, resource string) error {
	body := map[string]string{"platform": platform, "resource_type": resource}
	return c.call(ctx, http.MethodPost, "/v1/sync", nil, body)
}

func (c *apiClient) syncStatus(ctx context.Context, platform string) error {
	q := url.Values{"platform": []string{platform}}
	return c.call(ctx, http.MethodGet, "/v1/sync/status", q, nil)
}

func (c *apiClient) listRuns(ctx context.Context, platform, resource, status string, page, perPage int) error {
	q := url.Values{}
	setIf(q, "platform", platform)
	setIf(q, "resource_type", resource)
	setIf(q, "status", status)
	setPage(q, page, perPage)
	return c.call(ctx, http.MethodGet, "/v1/sync/runs", q, nil)
}

type objectListOptions struct {
	Platform string
	Kind     string
	Name     string
	Missing  bool
	Page     int
	PerPage  int
}

func (c *apiClient) listObjects(ctx context.Context, opts objectListOptions) error {
	q := url.Values{}
	setIf(q, "platform", opts.Platform)
	setIf(q, "kind", opts.Kind)
	setIf(q, "name", opts.Name)
	if opts.Missing {
		q.Set("missing", "true")
	}
	setPage(q, opts.Page, opts.PerPage)
	return c.call(ctx, http.MethodGet, "/v1/objects", q, nil)
}

func (c *apiClient) getObject(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodGet, "/v1/objects/"+url.PathEscape(id), nil, nil)
}

type changeListOptions struct {
	ChangeType string
	Platform   string
	ObjectID   string
	Since      string
	Until      string
	Page       int
	PerPage    int
}

func (c *apiClient) listChanges(ctx context.Context, opts changeListOptions) error {
	q := url.Values{}
	setIf(q, "change_type", opts.ChangeType)
	setIf(q, "platform", opts.Platform)
	setIf(q, "object_id", opts.ObjectID)
	setIf(q, "since", opts.Since)
	setIf(q, "until", opts.Until)
	setPage(q, opts.Page, opts.PerPage)
	return c.call(ctx, http.MethodGet, "/v1/changes", q, nil)
}

func (c *apiClient) setOverride(ctx context.Context, id, field string, value *string, updatedBy string) error {
	// Override fields can contain slashes; escape each segment separately.
	segments := strings.Split(field, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	path := "/v1/objects/" + url.PathEscape(id) + "/overrides/" + strings.Join(segments, "/")

	if value == nil {
		return c.call(ctx, http.MethodDelete, path, nil, nil)
	}
	body := map[string]any{"value": *value, "updated_by": updatedBy}
	return c.call(ctx, http.MethodPut, path, nil, body)
}

// call performs the request and pretty-prints the JSON response to stdout.
func (c *apiClient) call(ctx context.Context, method, path string, query url.Values, body any) error {
	endpoint := c.base + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, envelope.Error)
		}
		return errors.New(resp.Status)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		_, _ = os.Stdout.Write(raw)
		return nil
	}
	pretty.WriteByte('\n')
	_, _ = os.Stdout.Write(pretty.Bytes())
	return nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func setPage(q url.Values, page, perPage int) {
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
}
