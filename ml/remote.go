package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sagemakerruntime"
	"github.com/aws/aws-sdk-go/service/sagemakerruntime/sagemakerruntimeiface"
)

// Remote models speak the TensorFlow Serving JSON contract: one instance per
// request, one score vector per instance.
type inferenceRequest struct {
	Instances []Window `json:"instances"`
}

type inferenceResponse struct {
	Predictions [][]float64 `json:"predictions"`
}

func encodeInstance(tensor Window) ([]byte, error) {
	return json.Marshal(inferenceRequest{Instances: []Window{tensor}})
}

func decodeScores(body []byte) (int, []float64, error) {
	var response inferenceResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(response.Predictions) != 1 {
		return 0, nil, fmt.Errorf("expected 1 prediction, got %d", len(response.Predictions))
	}
	scores := response.Predictions[0]
	idx, err := Argmax(scores)
	if err != nil {
		return 0, nil, err
	}
	return idx, scores, nil
}

// SageMakerClassifier invokes a hosted SageMaker endpoint.
type SageMakerClassifier struct {
	client   sagemakerruntimeiface.SageMakerRuntimeAPI
	endpoint string
}

func NewSageMakerClassifier(client sagemakerruntimeiface.SageMakerRuntimeAPI, endpoint string) *SageMakerClassifier {
	return &SageMakerClassifier{client: client, endpoint: endpoint}
}

func (c *SageMakerClassifier) Classify(ctx context.Context, tensor Window) (int, []float64, error) {
	payload, err := encodeInstance(tensor)
	if err != nil {
		return 0, nil, err
	}
	output, err := c.client.InvokeEndpointWithContext(ctx, &sagemakerruntime.InvokeEndpointInput{
		EndpointName: aws.String(c.endpoint),
		Body:         payload,
		ContentType:  aws.String("application/json"),
		Accept:       aws.String("application/json"),
	})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to invoke endpoint %s: %w", c.endpoint, err)
	}
	return decodeScores(output.Body)
}

// HTTPClassifier posts windows to a model server.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		url:    url,
		client: newHTTPClient(timeout),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (c *HTTPClassifier) Classify(ctx context.Context, tensor Window) (int, []float64, error) {
	payload, err := encodeInstance(tensor)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, nil, errors.New("unexpected status code: " + resp.Status)
	}
	return decodeScores(body)
}
