package dlibsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"face-gate-go/config"
)

// APIClient implementiert die Kommunikation mit dem Encoder-Dienst
type APIClient struct {
	config     config.ExtractorConfig
	httpClient *http.Client
}

// apiInfoResponse enthält Informationen über den Encoder-Dienst
type apiInfoResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

// apiBox ist der Begrenzungsrahmen, wie ihn der Dienst liefert (top/right/bottom/left)
type apiBox struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// apiEncodeResponse enthält die Antwort auf eine Kodierungsanfrage
type apiEncodeResponse struct {
	Status     string `json:"status"`
	FacesCount int    `json:"faces_count"`
	Faces      []struct {
		Box        apiBox    `json:"box"`
		Confidence float64   `json:"confidence"`
		Embedding  []float32 `json:"embedding,omitempty"`
	} `json:"faces"`
	ProcessTime float64 `json:"process_time"`
}

// NewAPIClient erstellt einen neuen Encoder-APIClient
func NewAPIClient(cfg config.ExtractorConfig) *APIClient {
	return &APIClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Ping prüft, ob der Encoder-Dienst verfügbar ist
func (c *APIClient) Ping(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/info", c.config.URL), nil)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to reach encoder service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("encoder service unavailable, status: %d", resp.StatusCode)
	}

	var info apiInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}

	return info.Status == "ok", nil
}

// Encode sendet Bildbytes an den Encoder-Dienst und liefert die rohe Antwort.
// Mit encode=false werden nur Begrenzungsrahmen angefordert.
func (c *APIClient) Encode(ctx context.Context, imageBytes []byte, encode bool) (*apiEncodeResponse, error) {
	// Multipart-Form vorbereiten
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(imageBytes)); err != nil {
		return nil, fmt.Errorf("failed to copy image data: %w", err)
	}

	// Parameter zum Formular hinzufügen
	if err := writer.WriteField("encode", fmt.Sprintf("%t", encode)); err != nil {
		return nil, fmt.Errorf("failed to write encode field: %w", err)
	}
	if c.config.MinConfidence > 0 {
		if err := writer.WriteField("min_confidence", fmt.Sprintf("%f", c.config.MinConfidence)); err != nil {
			return nil, fmt.Errorf("failed to write min_confidence field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/encode", c.config.URL), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("encoder request failed: %w", err)
	}
	defer resp.Body.Close()

	// 422 bedeutet: Bytes waren kein dekodierbares Bild
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, fmt.Errorf("encoder rejected image data")
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status: %d, response: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp apiEncodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if apiResp.Status != "ok" {
		return nil, fmt.Errorf("encoder error: %s", apiResp.Status)
	}

	return &apiResp, nil
}
