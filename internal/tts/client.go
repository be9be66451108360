package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// VoiceOptions tunes one synthesis request.
type VoiceOptions struct {
	VoiceID         string
	Stability       float64
	SimilarityBoost float64
}

// Synthesizer turns text into phone-quality audio. The stream handler depends
// on this interface so tests can swap in canned audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts VoiceOptions) (io.ReadCloser, string, error)
}

// ElevenLabsClient streams synthesized speech from the ElevenLabs API.
type ElevenLabsClient struct {
	BaseURL    string
	APIKey     string
	ModelID    string
	HTTPClient *http.Client
}

// NewElevenLabsClientFromEnv builds a synthesis client from environment
// configuration. Returns nil when no API key is set; callers then fall back
// to the carrier's built-in voice.
func NewElevenLabsClientFromEnv() *ElevenLabsClient {
	apiKey := os.Getenv("ELEVENLABS_API_KEY")
	if apiKey == "" {
		return nil
	}
	baseURL := os.Getenv("ELEVENLABS_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io"
	}
	modelID := os.Getenv("ELEVENLABS_MODEL_ID")
	if modelID == "" {
		modelID = "eleven_turbo_v2"
	}
	return &ElevenLabsClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		ModelID: modelID,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type synthesisRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize streams MP3 audio for the given text. The caller owns the
// returned reader and must close it.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string, opts VoiceOptions) (io.ReadCloser, string, error) {
	if opts.VoiceID == "" {
		return nil, "", fmt.Errorf("voice ID is required")
	}

	body := synthesisRequest{
		Text:    text,
		ModelID: c.ModelID,
	}
	if opts.Stability > 0 || opts.SimilarityBoost > 0 {
		body.VoiceSettings = &voiceSettings{
			Stability:       opts.Stability,
			SimilarityBoost: opts.SimilarityBoost,
		}
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request: %v", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?output_format=mp3_22050_32", c.BaseURL, opts.VoiceID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.APIKey)
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to send request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, "", fmt.Errorf("synthesis returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return resp.Body, contentType, nil
}
