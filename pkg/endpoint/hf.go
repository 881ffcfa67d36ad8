package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAPIURL            = "https://api.endpoints.huggingface.cloud"
	defaultManagementTimeout = 60 * time.Second
	maxErrorBody             = 4096
)

// HFConfig captures the settings needed to drive a HuggingFace-style
// inference endpoint.
type HFConfig struct {
	APIURL       string
	Namespace    string
	Name         string
	Token        string
	MaxNewTokens int
	Temperature  float64
}

// HFRemote implements Remote against the inference endpoints management API
// (status, resume, pause) and the text-generation inference route.
//
// Management calls are bounded by their own timeout. Inference is bounded
// only by the caller's context.
type HFRemote struct {
	cfg               HFConfig
	httpClient        *http.Client
	managementTimeout time.Duration
}

var _ Remote = (*HFRemote)(nil)

// HFOption customizes the remote.
type HFOption func(*HFRemote)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) HFOption {
	return func(r *HFRemote) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// WithManagementTimeout bounds each status, resume and pause call.
// 0 leaves them bounded only by the caller's context.
func WithManagementTimeout(d time.Duration) HFOption {
	return func(r *HFRemote) { r.managementTimeout = d }
}

// NewHFRemote constructs a remote for the configured endpoint.
func NewHFRemote(cfg HFConfig, opts ...HFOption) *HFRemote {
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	cfg.Namespace = strings.TrimSpace(cfg.Namespace)
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Token = strings.TrimSpace(cfg.Token)
	r := &HFRemote{
		cfg:               cfg,
		httpClient:        &http.Client{},
		managementTimeout: defaultManagementTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type endpointInfo struct {
	Name   string `json:"name"`
	Status struct {
		State   string `json:"state"`
		Message string `json:"message"`
		URL     string `json:"url"`
	} `json:"status"`
}

type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
}

type generateParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	ReturnFullText bool    `json:"return_full_text"`
}

type generation struct {
	GeneratedText string `json:"generated_text"`
}

func (r *HFRemote) id() string {
	return r.cfg.Namespace + "/" + r.cfg.Name
}

func (r *HFRemote) managementURL(suffix string) string {
	return fmt.Sprintf("%s/v2/endpoint/%s/%s%s",
		r.cfg.APIURL, url.PathEscape(r.cfg.Namespace), url.PathEscape(r.cfg.Name), suffix)
}

// Boot resumes the endpoint unless it already reports running.
func (r *HFRemote) Boot(ctx context.Context) (Handle, error) {
	if r.cfg.Name == "" || r.cfg.Namespace == "" {
		return Handle{}, errors.New("hf boot: endpoint name and namespace required")
	}
	info, err := r.describe(ctx)
	if err != nil {
		return Handle{}, err
	}
	h := Handle{ID: r.id()}
	if mapState(info.Status.State) == RemoteRunning {
		h.URL = info.Status.URL
		return h, nil
	}
	if _, err := r.manage(ctx, "hf resume", http.MethodPost, r.managementURL("/resume")); err != nil {
		return Handle{}, err
	}
	return h, nil
}

// Status reports the endpoint state.
func (r *HFRemote) Status(ctx context.Context, _ Handle) (Probe, error) {
	info, err := r.describe(ctx)
	if err != nil {
		return Probe{}, err
	}
	return Probe{
		Status: mapState(info.Status.State),
		URL:    info.Status.URL,
		Detail: info.Status.Message,
	}, nil
}

// Infer posts a text-generation request to the endpoint URL.
func (r *HFRemote) Infer(ctx context.Context, h Handle, prompt string) (string, error) {
	if strings.TrimSpace(h.URL) == "" {
		return "", errors.New("hf infer: endpoint url unknown")
	}
	payload, err := json.Marshal(generateRequest{
		Inputs: prompt,
		Parameters: generateParameters{
			MaxNewTokens: r.cfg.MaxNewTokens,
			Temperature:  r.cfg.Temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("hf infer: encode request: %w", err)
	}
	body, err := r.do(ctx, "hf infer", http.MethodPost, h.URL, payload)
	if err != nil {
		return "", err
	}
	return decodeGeneration(body)
}

// Pause stops the endpoint.
func (r *HFRemote) Pause(ctx context.Context, _ Handle) error {
	_, err := r.manage(ctx, "hf pause", http.MethodPost, r.managementURL("/pause"))
	return err
}

func (r *HFRemote) describe(ctx context.Context) (endpointInfo, error) {
	var info endpointInfo
	body, err := r.manage(ctx, "hf status", http.MethodGet, r.managementURL(""))
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return info, fmt.Errorf("hf status: decode response: %w", err)
	}
	return info, nil
}

func (r *HFRemote) manage(ctx context.Context, op, method, target string) ([]byte, error) {
	if r.managementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.managementTimeout)
		defer cancel()
	}
	return r.do(ctx, op, method, target, nil)
}

func (r *HFRemote) do(ctx context.Context, op, method, target string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &HTTPError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// decodeGeneration accepts both the list and the object response shapes.
func decodeGeneration(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", nil
	}
	if trimmed[0] == '[' {
		var list []generation
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return "", fmt.Errorf("hf infer: decode response: %w", err)
		}
		if len(list) == 0 {
			return "", nil
		}
		return list[0].GeneratedText, nil
	}
	var single generation
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return "", fmt.Errorf("hf infer: decode response: %w", err)
	}
	return single.GeneratedText, nil
}

func mapState(state string) RemoteStatus {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "running":
		return RemoteRunning
	case "paused", "scaledtozero":
		return RemotePaused
	case "failed":
		return RemoteError
	default:
		return RemoteStarting
	}
}
