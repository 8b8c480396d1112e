package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/orrn/printflow/internal/config"
	"github.com/orrn/printflow/internal/core"
)

// AgentClient talks to the local print agent, the process that owns the
// OS-level printer connections. One POST per dispatch; the agent answers
// 2xx once the payload is handed to the driver.
type AgentClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewAgentClient(cfg config.AgentConfig) *AgentClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AgentClient{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type dispatchRequest struct {
	Printer     string `json:"printer"`
	Format      string `json:"format"`
	Data        string `json:"data"`
	Copies      int    `json:"copies"`
	PaperSize   string `json:"paper_size,omitempty"`
	Orientation string `json:"orientation,omitempty"`
	Quality     string `json:"quality,omitempty"`
}

type dispatchResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Dispatch sends one payload to the agent. Connectivity failures are
// reported with a "connection" prefix so downstream classification treats
// them as retryable; an explicit agent rejection is reported verbatim.
func (c *AgentClient) Dispatch(ctx context.Context, systemID string, payload []byte, format core.Format, opts core.DispatchOptions) error {
	body, err := json.Marshal(dispatchRequest{
		Printer:     systemID,
		Format:      string(format),
		Data:        base64.StdEncoding.EncodeToString(payload),
		Copies:      opts.Copies,
		PaperSize:   opts.PaperSize,
		Orientation: opts.Orientation,
		Quality:     opts.Quality,
	})
	if err != nil {
		return fmt.Errorf("marshal dispatch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/print", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection to print agent failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var dr dispatchResponse
		if json.Unmarshal(respBody, &dr) == nil && dr.Error != "" {
			return fmt.Errorf("agent rejected job: %s", dr.Error)
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusServiceUnavailable {
			return fmt.Errorf("print agent unavailable: http %d", resp.StatusCode)
		}
		return fmt.Errorf("agent rejected job: http %d", resp.StatusCode)
	}

	return nil
}

// ListPrinters asks the agent for the system printer names it can see.
// Feeds discovery sync.
func (c *AgentClient) ListPrinters(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/printers", nil)
	if err != nil {
		return nil, fmt.Errorf("create discovery request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection to print agent failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery failed: http %d", resp.StatusCode)
	}

	var result struct {
		Printers []string `json:"printers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode discovery response: %w", err)
	}
	return result.Printers, nil
}
