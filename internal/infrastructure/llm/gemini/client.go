package gemini

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
)

const DefaultModel = "gemini-1.5-flash"

// Client sends single-turn prompts to one Gemini model.
type Client struct {
	client    *genai.Client
	modelName string
}

func New(ctx context.Context, apiKey, modelName string) (*Client, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, describeError("connect", err)
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = DefaultModel
	}
	return &Client{client: cl, modelName: modelName}, nil
}

// Connector returns a ports.ProviderConnector bound to modelName.
func Connector(modelName string) ports.ProviderConnector {
	return func(ctx context.Context, credential string) (ports.TextGenerator, error) {
		return New(ctx, credential, modelName)
	}
}

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	m := c.client.GenerativeModel(c.modelName)
	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", describeError("generate", err)
	}
	return responseText(resp), nil
}

// responseText concatenates the text parts of the first candidate. A
// response without candidates yields "".
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

var _ ports.TextGenerator = (*Client)(nil)
