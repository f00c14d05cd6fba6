package testing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status int
	Code   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d (%s): %s", e.Status, e.Code, e.Body)
}

type TestClient struct {
	baseURL string
	client  *http.Client
}

func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (tc *TestClient) Get(path string) (*http.Response, error) {
	return tc.client.Get(tc.baseURL + path)
}

func (tc *TestClient) Do(method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(jsonBody)
	}
	req, err := http.NewRequest(method, tc.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return tc.client.Do(req)
}

func (tc *TestClient) GetJSON(path string, target any) error {
	return tc.DoJSON(http.MethodGet, path, nil, target)
}

func (tc *TestClient) PostJSON(path string, body, target any) error {
	return tc.DoJSON(http.MethodPost, path, body, target)
}

func (tc *TestClient) PatchJSON(path string, body, target any) error {
	return tc.DoJSON(http.MethodPatch, path, body, target)
}

// DoJSON sends body and decodes the response into target. Error responses
// come back as *APIError.
func (tc *TestClient) DoJSON(method, path string, body, target any) error {
	resp, err := tc.Do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Body: string(respBody)}
		var e ErrorResponse
		if json.Unmarshal(respBody, &e) == nil {
			apiErr.Code = e.Code
		}
		return apiErr
	}

	if target != nil {
		return json.Unmarshal(respBody, target)
	}
	return nil
}
