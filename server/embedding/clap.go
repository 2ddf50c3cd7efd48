package embedding

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// ClapProvider generates a learned audio embedding for a sample on disk.
// The contract is: returns a vector or an error; it is the caller's job to
// keep errors from propagating further. Availability is resolved at call
// time so fingerprint mode stays viable without the ML stack.
type ClapProvider interface {
	Available() bool
	Embed(ctx context.Context, filePath string) ([]float32, error)
}

// SidecarConfig configures the CLAP inference sidecar client.
type SidecarConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// SidecarProvider talks to a local CLAP inference sidecar that exposes an
// OpenAI-compatible embeddings endpoint. The sidecar resolves the file path
// passed as input and returns the audio embedding.
type SidecarProvider struct {
	client *openai.Client
	model  string
}

// NewSidecarProvider creates a CLAP sidecar provider. Returns nil when no
// sidecar is configured; callers treat a nil provider as unavailable.
func NewSidecarProvider(cfg *SidecarConfig) *SidecarProvider {
	if cfg == nil || cfg.BaseURL == "" {
		return nil
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL

	return &SidecarProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}
}

// Available reports whether the sidecar is configured.
func (p *SidecarProvider) Available() bool {
	return p != nil && p.client != nil
}

// Embed requests an embedding for the audio file at filePath.
func (p *SidecarProvider) Embed(ctx context.Context, filePath string) ([]float32, error) {
	if !p.Available() {
		return nil, errors.New("clap sidecar not configured")
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{filePath},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create clap embedding")
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("empty clap embedding response")
	}

	return resp.Data[0].Embedding, nil
}
