package domain

import "time"

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ExecutionResult records one prompt dispatch. Response is nil when Error is set.
type ExecutionResult struct {
	ID           string    `json:"id"`
	DefinitionID string    `json:"definitionId"`
	Prompt       string    `json:"prompt"`
	Category     string    `json:"category,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Model        string    `json:"model,omitempty"`
	Response     *string   `json:"response,omitempty"`
	Error        *string   `json:"error,omitempty"`
	Usage        *Usage    `json:"usage,omitempty"`
	DurationMS   int64     `json:"durationMs"`
	ExecutedAt   time.Time `json:"executedAt"`
}

type WeatherSnapshot struct {
	ID           string    `json:"id"`
	DefinitionID string    `json:"definitionId"`
	Location     string    `json:"location"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	TemperatureC float64   `json:"temperatureC"`
	WindSpeedKmh float64   `json:"windSpeedKmh"`
	WeatherCode  int       `json:"weatherCode"`
	ObservedAt   time.Time `json:"observedAt"`
	FetchedAt    time.Time `json:"fetchedAt"`
}
