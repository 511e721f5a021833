// Package pkg holds the JSON wire types of the HTTP API.
package pkg

// ChatRequest is the inbound chat message. UserID defaults to "default".
type ChatRequest struct {
	UserID  string `json:"userId,omitempty"`
	Message string `json:"message"`
}

// ChatResponse is returned by the chat endpoints. Intent and confidence are omitted for
// knowledge answers.
type ChatResponse struct {
	From        string   `json:"from"` // knowledge | ml | memory
	Intent      string   `json:"intent,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Tier        string   `json:"tier,omitempty"`
	Response    string   `json:"response"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ErrorResponse carries a machine-readable error and a reply the chat UI can show.
type ErrorResponse struct {
	Error    string `json:"error"`
	Response string `json:"response,omitempty"`
}

type BatchRequest struct {
	Messages []string `json:"messages"`
}

type BatchPrediction struct {
	Input            string  `json:"input"`
	Normalized       string  `json:"normalized"`
	Intent           string  `json:"intent"`
	Confidence       float64 `json:"confidence"`
	Tier             string  `json:"tier"`
	SecondIntent     string  `json:"secondIntent,omitempty"`
	SecondConfidence float64 `json:"secondConfidence,omitempty"`
}

type BatchResponse struct {
	Results []BatchPrediction `json:"results"`
}

// ThresholdConfig uses pointers so an update may change a subset.
type ThresholdConfig struct {
	High       *float64 `json:"highConfidenceThreshold,omitempty"`
	Medium     *float64 `json:"mediumConfidenceThreshold,omitempty"`
	Memory     *float64 `json:"memoryThreshold,omitempty"`
	SecondBest *float64 `json:"secondBestThreshold,omitempty"`
}

type ModelInfo struct {
	Stamp    string `json:"stamp"`
	Labels   int    `json:"labels"`
	Strategy string `json:"strategy"`
}

type HealthResponse struct {
	Status   string    `json:"status"`
	Model    ModelInfo `json:"model"`
	Sessions int       `json:"sessions"`
}
