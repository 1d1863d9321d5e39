package classify

import (
	"context"
	"strings"
	"sync"

	"github.com/bobmatnyc/the-island-sub004/internal/util"
	"github.com/bobmatnyc/the-island-sub004/pkg/ai"
	"github.com/bobmatnyc/the-island-sub004/pkg/common"

	"golang.org/x/time/rate"
)

// DefaultMinConfidence is the model confidence below which an external
// answer is treated as an abstention.
const DefaultMinConfidence = 0.8

type modelLabel struct {
	Type       string  `json:"type" jsonschema:"enum=person,enum=organization,enum=location,enum=unknown"`
	Confidence float64 `json:"confidence"`
}

// External is the optional high-accuracy tier backed by a language model.
// Answers are memoized per name and context so a rebuild asks the model at
// most once per distinct question.
type External struct {
	client        ai.Client
	limiter       *rate.Limiter
	retries       int
	minConfidence float64

	mu    sync.Mutex
	cache map[string]Result
}

// ExternalParams configures NewExternal. RequestsPerSecond <= 0 disables
// rate limiting.
type ExternalParams struct {
	RequestsPerSecond float64
	Retries           int
	MinConfidence     float64
}

// NewExternal wraps client as a classification tier.
func NewExternal(client ai.Client, params ExternalParams) *External {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if params.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(params.RequestsPerSecond), 1)
	}
	if params.Retries <= 0 {
		params.Retries = 3
	}
	if params.MinConfidence <= 0 {
		params.MinConfidence = DefaultMinConfidence
	}
	return &External{
		client:        client,
		limiter:       limiter,
		retries:       params.Retries,
		minConfidence: params.MinConfidence,
		cache:         make(map[string]Result),
	}
}

func (e *External) Name() string { return "external" }

// Classify implements Classifier.
func (e *External) Classify(ctx context.Context, name string, mctx *common.MentionContext) (Result, error) {
	fields := map[string]string{}
	if mctx != nil {
		fields["role"] = mctx.Role
		fields["description"] = mctx.Description
		fields["route"] = mctx.Route
	}
	key := strings.ToLower(name) + "\x00" + fields["role"] + "\x00" + fields["description"] + "\x00" + fields["route"]

	e.mu.Lock()
	if res, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return res, nil
	}
	e.mu.Unlock()

	prompt := ai.FormatClassifyPrompt(name, fields, "role", "description", "route")
	var label modelLabel
	err := util.RetryErrWithContext(ctx, e.retries, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		return e.client.GenerateCompletionWithFormat(ctx, "entity_type", "Entity type label", prompt, &label)
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{Tier: e.Name(), Confidence: label.Confidence}
	if t, ok := common.ParseEntityType(label.Type); ok && label.Confidence >= e.minConfidence {
		res.Type = t
		res.Conclusive = true
	}

	e.mu.Lock()
	e.cache[key] = res
	e.mu.Unlock()
	return res, nil
}
