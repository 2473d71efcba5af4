package encoder

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/reviewdb/internal/resource"
)

// DefaultOpenAIModel is the embedding model used when none is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// openAIMaxBatch is the number of inputs the embeddings API accepts per call.
const openAIMaxBatch = 2048

// OpenAIOptions configures an OpenAI encoder.
type OpenAIOptions struct {
	// Model is the embedding model name.
	Model string

	// BaseURL points the client at an OpenAI-compatible endpoint.
	// Empty uses the public API.
	BaseURL string

	// HTTPClient overrides the transport.
	HTTPClient *http.Client

	// Limits bounds outbound calls. The zero value allows one request at a
	// time with no rate limit.
	Limits resource.Config

	// MaxBatch caps inputs per request.
	MaxBatch int
}

// DefaultOpenAIOptions contains the default options.
var DefaultOpenAIOptions = OpenAIOptions{
	Model:    DefaultOpenAIModel,
	Limits:   resource.Config{MaxInFlight: 4},
	MaxBatch: openAIMaxBatch,
}

// OpenAI encodes text through an OpenAI-compatible embeddings API.
//
// Requests ask for exactly Dimension() components. The client does not retry;
// any transport or response shape error is ErrEncodingFailed. The empty text
// encodes locally to the zero vector because the API rejects empty inputs.
type OpenAI struct {
	client openai.Client
	model  string
	dim    int
	batch  int
	ctrl   *resource.Controller
}

var _ BatchEncoder = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI encoder with the given API key and dimension.
func NewOpenAI(apiKey string, dim int, optFns ...func(o *OpenAIOptions)) *OpenAI {
	opts := DefaultOpenAIOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Model == "" {
		opts.Model = DefaultOpenAIModel
	}
	if opts.MaxBatch <= 0 || opts.MaxBatch > openAIMaxBatch {
		opts.MaxBatch = openAIMaxBatch
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &OpenAI{
		client: openai.NewClient(clientOpts...),
		model:  opts.Model,
		dim:    dim,
		batch:  opts.MaxBatch,
		ctrl:   resource.NewController(opts.Limits),
	}
}

// Dimension returns the requested embedding dimension.
func (o *OpenAI) Dimension() int { return o.dim }

// Model returns the embedding model name.
func (o *OpenAI) Model() string { return o.model }

// Encode returns the embedding of a single text.
func (o *OpenAI) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EncodeBatch returns embeddings for texts, splitting large batches into
// several requests.
func (o *OpenAI) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	// Positions of non-empty texts; only those are sent.
	pos := make([]int, 0, len(texts))
	for i, t := range texts {
		if t == "" {
			out[i] = make([]float32, o.dim)
			continue
		}
		pos = append(pos, i)
	}

	for start := 0; start < len(pos); start += o.batch {
		end := min(start+o.batch, len(pos))
		chunk := make([]string, 0, end-start)
		for _, p := range pos[start:end] {
			chunk = append(chunk, texts[p])
		}

		vecs, err := o.call(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("%w: batch [%d:%d]: %w", ErrEncodingFailed, start, end, err)
		}
		for j, p := range pos[start:end] {
			out[p] = vecs[j]
		}
	}
	return out, nil
}

func (o *OpenAI) call(ctx context.Context, texts []string) ([][]float32, error) {
	release, err := o.ctrl.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          o.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions:     openai.Int(int64(o.dim)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		idx := item.Index
		if idx < 0 || idx >= int64(len(texts)) {
			return nil, fmt.Errorf("unexpected embedding index %d for batch size %d", idx, len(texts))
		}
		if len(item.Embedding) != o.dim {
			return nil, fmt.Errorf("embedding %d has %d components, want %d", idx, len(item.Embedding), o.dim)
		}
		v := make([]float32, len(item.Embedding))
		for i, x := range item.Embedding {
			v[i] = float32(x)
		}
		vecs[idx] = v
	}

	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}
	return vecs, nil
}
