// Package llm records interactions with external language models and
// vets the block payloads they produce. The engine never implements a
// model; the Client contract is the whole integration surface, and every
// exchange through it is persisted.
package llm

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jward/trellis/internal/extract"
	"github.com/jward/trellis/internal/fault"
	"github.com/jward/trellis/internal/lang"
	"github.com/jward/trellis/internal/store"
)

// Request is one completion request to an external model.
type Request struct {
	Provider    string
	Model       string
	PromptID    string
	Temperature float64
	Prompt      string
}

// Response is the model's reply.
type Response struct {
	Text       string
	TokensUsed int64
}

// Client is the external model contract. Implementations live outside
// the engine.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Recorder wraps a Client so every interaction is persisted alongside
// the version it produced.
type Recorder struct {
	client Client
	store  *store.Store
}

// NewRecorder wraps a client with persistence.
func NewRecorder(client Client, s *store.Store) *Recorder {
	return &Recorder{client: client, store: s}
}

// Complete forwards to the underlying client and records the full
// exchange. versionID may be nil when no version is attributed yet.
func (r *Recorder) Complete(ctx context.Context, req Request, versionID *int64) (Response, error) {
	start := time.Now()
	resp, err := r.client.Complete(ctx, req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return Response{}, fault.New(fault.KindExternal, "llm complete", err)
	}

	interaction := &store.LLMInteraction{
		ID:             uuid.NewString(),
		BlockVersionID: versionID,
		Provider:       req.Provider,
		Model:          req.Model,
		PromptID:       req.PromptID,
		Temperature:    req.Temperature,
		Request:        req.Prompt,
		Response:       resp.Text,
		TokensUsed:     resp.TokensUsed,
		LatencyMS:      latency,
	}
	if err := r.store.InsertLLMInteraction(interaction); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// VetOptions bounds acceptance of generated payloads.
type VetOptions struct {
	// MaxParseErrors is the number of damaged regions tolerated in the
	// generated source before rejection.
	MaxParseErrors int
}

// VetPayload treats an externally supplied block payload as untrusted:
// it is parsed and extracted like any ingested source, rejected when
// parsing produces more damage than allowed or the resulting block tree
// violates structural invariants. On success the extraction result is
// returned for the caller to version or commit.
func VetPayload(ctx context.Context, source []byte, language, path string, opts VetOptions) (*extract.Result, error) {
	parser := lang.NewParser()
	tree, parseErrs, err := parser.Parse(ctx, source, language)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	if len(parseErrs) > opts.MaxParseErrors {
		return nil, fault.Newf(fault.KindParse, "vet payload",
			"generated source has %d parse errors (max %d)", len(parseErrs), opts.MaxParseErrors)
	}

	result := extract.NewExtractor(extract.DefaultTestConfig()).Extract(tree, path)
	if err := validateResult(result); err != nil {
		return nil, err
	}
	return result, nil
}

// validateResult re-checks the structural invariants on an extraction
// before it is trusted.
func validateResult(res *extract.Result) error {
	for i, b := range res.Blocks {
		if b.ParentIndex >= i {
			return fault.Newf(fault.KindSemantic, "vet payload",
				"block %d: parent %d does not precede it", i, b.ParentIndex)
		}
		if b.ParentIndex >= 0 {
			parent := res.Blocks[b.ParentIndex]
			if b.Depth != parent.Depth+1 {
				return fault.Newf(fault.KindSemantic, "vet payload",
					"block %d: depth %d != parent depth %d + 1", i, b.Depth, parent.Depth)
			}
		} else if b.Depth != 0 {
			return fault.Newf(fault.KindSemantic, "vet payload",
				"root block %d has depth %d", i, b.Depth)
		}
	}
	return nil
}
