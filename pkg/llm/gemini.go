package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"lingua/pkg/models"
)

// Gemini is the production Provider backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini provider. model defaults to a flash-tier
// model when empty.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Generate runs one streaming model step, mapping text parts and function
// calls onto Events in arrival order.
func (g *Gemini) Generate(ctx context.Context, req Request, emit func(Event) error) error {
	contents := buildContents(req.Turns)
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: buildDeclarations(req.Tools)}}
	}

	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrUpstreamFailure, err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				if err := emit(Event{Text: part.Text}); err != nil {
					return err
				}
			}
			if part.FunctionCall != nil {
				call := &ToolCall{
					ID:   part.FunctionCall.ID,
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				}
				if call.ID == "" {
					// some models omit ids; synthesize a stable one from
					// name and argument content so dedup still holds
					call.ID = fmt.Sprintf("%s-%v", call.Name, call.Args)
				}
				if err := emit(Event{Call: call}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func buildContents(turns []Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case models.RoleAssistant:
			parts := []*genai.Part{}
			if t.Text != "" {
				parts = append(parts, &genai.Part{Text: t.Text})
			}
			for _, c := range t.Calls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: c.ID, Name: c.Name, Args: c.Args}})
			}
			if len(parts) == 0 {
				continue
			}
			out = append(out, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case models.RoleToolResult:
			parts := make([]*genai.Part, 0, len(t.Results))
			for _, r := range t.Results {
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       r.ID,
					Name:     r.Name,
					Response: map[string]any{"output": r.Output},
				}})
			}
			if len(parts) == 0 {
				continue
			}
			out = append(out, &genai.Content{Role: genai.RoleUser, Parts: parts})
		default:
			out = append(out, genai.NewContentFromText(t.Text, genai.RoleUser))
		}
	}
	return out
}

func buildDeclarations(tools []ToolDef) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		props := map[string]*genai.Schema{}
		required := make([]string, 0, len(t.Params))
		for name, desc := range t.Params {
			props[name] = &genai.Schema{Type: genai.TypeString, Description: desc}
			required = append(required, name)
		}
		out = append(out, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   required,
			},
		})
	}
	return out
}
