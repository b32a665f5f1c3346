// Package speech turns learner audio into text before it enters a thread.
package speech

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"lingua/pkg/models"
)

// MaxAudioBytes bounds uploaded audio clips.
const MaxAudioBytes = 10 << 20

const transcribePrompt = "Transcribe this audio exactly as spoken, in the " +
	"speaker's language. Return only the transcription text."

// Transcriber converts an audio clip to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Gemini transcribes audio with a multimodal Gemini model.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini builds a transcriber sharing the generation API key.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 || len(audio) > MaxAudioBytes {
		return "", models.ErrValidationFailed
	}
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(audio, mimeType),
			genai.NewPartFromText(transcribePrompt),
		}, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("%w: transcription: %v", models.ErrUpstreamFailure, err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty transcription", models.ErrUpstreamFailure)
	}
	return text, nil
}

// Static is a fixed-output transcriber for tests.
type Static struct {
	Text string
	Err  error
}

func (s Static) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Text, nil
}
