package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient is a NetworkClient backed by a node agent's HTTP RPC surface
// (spec.md §6). No transport library is wired for this beyond net/http:
// the node-agent protocol is plain request/response JSON over HTTP, which
// needs nothing more than an http.Client and a base URL.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPClient creates an HTTPClient against baseURL (e.g.
// config.Config.NodeAgentBaseURL).
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("calling node agent %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("node agent %s returned %d: %s", path, resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// DiscoverEnvironment lists every node in environment.
func (c *HTTPClient) DiscoverEnvironment(ctx context.Context, environment string) ([]Node, error) {
	var nodes []Node
	path := "/discover_environment?environment=" + url.QueryEscape(environment)
	if err := c.do(ctx, http.MethodGet, path, nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// RequestComponentBackup asks nodeID to produce an ISO for componentType.
func (c *HTTPClient) RequestComponentBackup(ctx context.Context, nodeID, componentType string, config map[string]any) (ComponentBackupResult, error) {
	var result ComponentBackupResult
	body := map[string]any{"node_id": nodeID, "component_type": componentType, "config": config}
	err := c.do(ctx, http.MethodPost, "/request_component_backup", body, &result)
	return result, err
}

// CopyFileFromNode streams a file from nodeID's srcPath into dstPath. The
// node agent is assumed to perform the copy server-side and respond once
// dstPath holds the data, consistent with a node-local agent that already
// has access to both paths.
func (c *HTTPClient) CopyFileFromNode(ctx context.Context, nodeID, srcPath, dstPath string) error {
	body := map[string]any{"node_id": nodeID, "src_path": srcPath, "dst_path": dstPath}
	return c.do(ctx, http.MethodPost, "/copy_file_from_node", body, nil)
}

// GetNodeVolumes lists the storage volumes nodeID reports.
func (c *HTTPClient) GetNodeVolumes(ctx context.Context, nodeID string) ([]Volume, error) {
	var result struct {
		Volumes []Volume `json:"volumes"`
	}
	path := "/get_node_volumes?node_id=" + url.QueryEscape(nodeID)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Volumes, nil
}
