package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/docq-ai/docq/internal/config"
)

type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:      cfg.Auth.Token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/v1"+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable — is docq running? (%w)", err)
	}
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, "GET", path, nil)
}

func (c *apiClient) delete(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, "DELETE", path, nil)
}

// documentView is the wire shape of a document as the server returns it.
type documentView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	PageCount int    `json:"page_count"`
	Error     string `json:"error"`
	CreatedAt string `json:"created_at"`
}

func (c *apiClient) listDocuments(ctx context.Context, limit int) ([]documentView, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/documents?limit=%d", limit))
	if err != nil {
		return nil, err
	}
	var result struct {
		Documents []documentView `json:"documents"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	return result.Documents, nil
}

func (c *apiClient) getDocument(ctx context.Context, id string) (documentView, error) {
	resp, err := c.get(ctx, "/documents/"+id)
	if err != nil {
		return documentView{}, err
	}
	var doc documentView
	if err := decodeJSON(resp, &doc); err != nil {
		return documentView{}, err
	}
	return doc, nil
}

// uploadDocument streams a local PDF to the server as multipart form data.
func (c *apiClient) uploadDocument(ctx context.Context, path string) (documentView, error) {
	f, err := os.Open(path)
	if err != nil {
		return documentView{}, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return documentView{}, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return documentView{}, fmt.Errorf("reading file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return documentView{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/documents", &buf)
	if err != nil {
		return documentView{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return documentView{}, fmt.Errorf("server not reachable — is docq running? (%w)", err)
	}
	var doc documentView
	if err := decodeJSON(resp, &doc); err != nil {
		return documentView{}, err
	}
	return doc, nil
}

// chat asks a question and copies the token stream to w as it arrives. The
// request deliberately bypasses the client timeout: answers stream for as
// long as generation runs.
func (c *apiClient) chat(ctx context.Context, documentID, question string, w io.Writer) error {
	body, err := json.Marshal(map[string]string{"message": question})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/documents/"+documentID+"/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("server not reachable — is docq running? (%w)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(data))
	}

	_, err = io.Copy(w, resp.Body)
	return err
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
