package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNotFound        = errors.New("no matching object")
	ErrNotUnique       = errors.New("more than one matching object")
	ErrExecutionFailed = errors.New("execution did not finish successfully")
	ErrNoToken         = errors.New("no API token configured")
)

// Client is the subset of the DNAnexus API used by the build and launch
// commands.
type Client interface {
	DescribeProject(ctx context.Context, id string) (Project, error)
	NewFolder(ctx context.Context, project, folder string, parents bool) error
	FindDataObjects(ctx context.Context, q Query) ([]DataObject, error)
	DescribeApplet(ctx context.Context, id string) (Applet, error)
	SetProperties(ctx context.Context, id, project string, props map[string]string) error

	NewWorkflow(ctx context.Context, opts WorkflowOptions) (string, error)
	AddStage(ctx context.Context, workflowID string, opts StageOptions) (string, error)
	DescribeWorkflow(ctx context.Context, id string) (Workflow, error)
	RunWorkflow(ctx context.Context, id string, opts RunOptions) (string, error)
	RunApplet(ctx context.Context, id string, opts RunOptions) (string, error)

	DescribeExecution(ctx context.Context, id string) (Execution, error)
	FindExecutions(ctx context.Context, project, state string) ([]string, error)

	NewRecord(ctx context.Context, project, folder, name string) (string, error)
	SetDetails(ctx context.Context, id string, details any) error
	CloseRecord(ctx context.Context, id string) error
	GetDetails(ctx context.Context, id string, out any) error

	Download(ctx context.Context, fileID string, w io.Writer) error
}

// Settings locate the API server and carry the token.
type Settings struct {
	Protocol string
	Host     string
	Port     string
	Token    string
}

// SettingsFromEnv reads the variables the dx command line client exports.
func SettingsFromEnv() Settings {
	s := Settings{
		Protocol: os.Getenv("DX_APISERVER_PROTOCOL"),
		Host:     os.Getenv("DX_APISERVER_HOST"),
		Port:     os.Getenv("DX_APISERVER_PORT"),
	}
	if raw := os.Getenv("DX_SECURITY_CONTEXT"); raw != "" {
		var sc struct {
			AuthToken string `json:"auth_token"`
		}
		if err := json.Unmarshal([]byte(raw), &sc); err == nil {
			s.Token = sc.AuthToken
		}
	}
	return s
}

// Merge fills empty fields of s from o.
func (s Settings) Merge(o Settings) Settings {
	if s.Protocol == "" {
		s.Protocol = o.Protocol
	}
	if s.Host == "" {
		s.Host = o.Host
	}
	if s.Port == "" {
		s.Port = o.Port
	}
	if s.Token == "" {
		s.Token = o.Token
	}
	return s
}

func (s Settings) baseURL() string {
	protocol, host, port := s.Protocol, s.Host, s.Port
	if protocol == "" {
		protocol = "https"
	}
	if host == "" {
		host = "api.dnanexus.com"
	}
	if port == "" {
		port = "443"
	}
	return fmt.Sprintf("%s://%s:%s", protocol, host, port)
}

// HTTPClient talks to the API server over HTTP. Calls are not retried.
type HTTPClient struct {
	base  string
	token string
	http  *http.Client
}

func NewHTTPClient(s Settings) (*HTTPClient, error) {
	if s.Token == "" {
		return nil, ErrNoToken
	}
	return &HTTPClient{
		base:  strings.TrimSuffix(s.baseURL(), "/"),
		token: s.Token,
		http:  &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// WithHTTPClient replaces the underlying transport client.
func (c *HTTPClient) WithHTTPClient(hc *http.Client) *HTTPClient {
	c.http = hc
	return c
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) call(ctx context.Context, resource, method string, in, out any) error {
	if in == nil {
		in = map[string]any{}
	}
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrapf(err, "encoding /%s/%s request", resource, method)
	}
	url := fmt.Sprintf("%s/%s/%s", c.base, resource, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "building /%s/%s request", resource, method)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "calling /%s/%s", resource, method)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "reading /%s/%s response", resource, method)
	}
	if resp.StatusCode != http.StatusOK {
		var ae apiError
		if json.Unmarshal(data, &ae) == nil && ae.Error.Type != "" {
			if ae.Error.Type == "ResourceNotFound" {
				return errors.Wrapf(ErrNotFound, "/%s/%s: %s", resource, method, ae.Error.Message)
			}
			return errors.Errorf("/%s/%s: %s: %s", resource, method, ae.Error.Type, ae.Error.Message)
		}
		return errors.Errorf("/%s/%s: HTTP %d", resource, method, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return errors.Wrapf(err, "decoding /%s/%s response", resource, method)
	}
	return nil
}

func (c *HTTPClient) DescribeProject(ctx context.Context, id string) (Project, error) {
	var p Project
	err := c.call(ctx, id, "describe", map[string]any{"fields": map[string]bool{"id": true, "name": true}}, &p)
	return p, err
}

func (c *HTTPClient) NewFolder(ctx context.Context, project, folder string, parents bool) error {
	return c.call(ctx, project, "newFolder", map[string]any{"folder": folder, "parents": parents}, nil)
}

type findDataObjectsResponse struct {
	Results []struct {
		Project  string          `json:"project"`
		ID       string          `json:"id"`
		Describe json.RawMessage `json:"describe"`
	} `json:"results"`
	Next json.RawMessage `json:"next"`
}

func (c *HTTPClient) FindDataObjects(ctx context.Context, q Query) ([]DataObject, error) {
	req := q.request()
	var objects []DataObject
	for {
		var resp findDataObjectsResponse
		if err := c.call(ctx, "system", "findDataObjects", req, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Results {
			obj := DataObject{ID: r.ID, Project: r.Project}
			if len(r.Describe) > 0 {
				var d struct {
					Name   string `json:"name"`
					Folder string `json:"folder"`
				}
				if err := json.Unmarshal(r.Describe, &d); err == nil {
					obj.Name, obj.Folder = d.Name, d.Folder
				}
			}
			objects = append(objects, obj)
		}
		if len(resp.Next) == 0 || string(resp.Next) == "null" {
			break
		}
		req["starting"] = resp.Next
	}
	return objects, nil
}

func (c *HTTPClient) DescribeApplet(ctx context.Context, id string) (Applet, error) {
	var a Applet
	err := c.call(ctx, id, "describe", nil, &a)
	return a, err
}

func (c *HTTPClient) SetProperties(ctx context.Context, id, project string, props map[string]string) error {
	return c.call(ctx, id, "setProperties", map[string]any{"project": project, "properties": props}, nil)
}

func (c *HTTPClient) NewWorkflow(ctx context.Context, opts WorkflowOptions) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, "workflow", "new", opts, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *HTTPClient) AddStage(ctx context.Context, workflowID string, opts StageOptions) (string, error) {
	wf, err := c.DescribeWorkflow(ctx, workflowID)
	if err != nil {
		return "", err
	}
	req := map[string]any{
		"editVersion": wf.EditVersion,
		"executable":  opts.Executable,
		"name":        opts.Name,
		"input":       opts.Input,
	}
	if opts.Folder != "" {
		req["folder"] = opts.Folder
	}
	if opts.InstanceType != "" {
		req["systemRequirements"] = map[string]any{"*": map[string]string{"instanceType": opts.InstanceType}}
	}
	var resp struct {
		Stage string `json:"stage"`
	}
	if err := c.call(ctx, workflowID, "addStage", req, &resp); err != nil {
		return "", err
	}
	return resp.Stage, nil
}

func (c *HTTPClient) DescribeWorkflow(ctx context.Context, id string) (Workflow, error) {
	var w Workflow
	err := c.call(ctx, id, "describe", nil, &w)
	return w, err
}

func (c *HTTPClient) run(ctx context.Context, id string, opts RunOptions) (string, error) {
	req := map[string]any{
		"project": opts.Project,
		"folder":  opts.Folder,
		"name":    opts.Name,
		"input":   opts.Input,
	}
	if opts.InstanceType != "" {
		req["systemRequirements"] = map[string]any{"*": map[string]string{"instanceType": opts.InstanceType}}
	}
	if opts.Priority != "" {
		req["priority"] = opts.Priority
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, id, "run", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *HTTPClient) RunWorkflow(ctx context.Context, id string, opts RunOptions) (string, error) {
	return c.run(ctx, id, opts)
}

func (c *HTTPClient) RunApplet(ctx context.Context, id string, opts RunOptions) (string, error) {
	return c.run(ctx, id, opts)
}

func (c *HTTPClient) DescribeExecution(ctx context.Context, id string) (Execution, error) {
	var e Execution
	err := c.call(ctx, id, "describe", nil, &e)
	return e, err
}

func (c *HTTPClient) FindExecutions(ctx context.Context, project, state string) ([]string, error) {
	req := map[string]any{"project": project, "describe": false}
	if state != "" {
		req["state"] = state
	}
	var ids []string
	for {
		var resp struct {
			Results []struct {
				ID string `json:"id"`
			} `json:"results"`
			Next json.RawMessage `json:"next"`
		}
		if err := c.call(ctx, "system", "findExecutions", req, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Results {
			ids = append(ids, r.ID)
		}
		if len(resp.Next) == 0 || string(resp.Next) == "null" {
			break
		}
		req["starting"] = resp.Next
	}
	return ids, nil
}

func (c *HTTPClient) NewRecord(ctx context.Context, project, folder, name string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	req := map[string]any{"project": project, "folder": folder, "name": name}
	if err := c.call(ctx, "record", "new", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *HTTPClient) SetDetails(ctx context.Context, id string, details any) error {
	return c.call(ctx, id, "setDetails", details, nil)
}

func (c *HTTPClient) CloseRecord(ctx context.Context, id string) error {
	return c.call(ctx, id, "close", nil, nil)
}

func (c *HTTPClient) GetDetails(ctx context.Context, id string, out any) error {
	return c.call(ctx, id, "getDetails", nil, out)
}

func (c *HTTPClient) Download(ctx context.Context, fileID string, w io.Writer) error {
	var resp struct {
		URL     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	}
	if err := c.call(ctx, fileID, "download", map[string]any{"duration": 3600}, &resp); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resp.URL, nil)
	if err != nil {
		return errors.Wrapf(err, "building download request for %s", fileID)
	}
	for k, v := range resp.Headers {
		req.Header.Set(k, v)
	}
	dl, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "downloading %s", fileID)
	}
	defer dl.Body.Close()
	if dl.StatusCode != http.StatusOK {
		return errors.Errorf("downloading %s: HTTP %d", fileID, dl.StatusCode)
	}
	if _, err := io.Copy(w, dl.Body); err != nil {
		return errors.Wrapf(err, "downloading %s", fileID)
	}
	return nil
}
