package guard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/RoyNativ-AI/pii-guard/internal/config"
	"github.com/RoyNativ-AI/pii-guard/internal/logger"
	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
)

const bedrockConfidence = 0.95

// GuardrailClient is the subset of the Bedrock runtime client the guard uses.
type GuardrailClient interface {
	ApplyGuardrail(ctx context.Context, params *bedrockruntime.ApplyGuardrailInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ApplyGuardrailOutput, error)
}

// BedrockGuard applies an AWS Bedrock guardrail with a sensitive information
// policy and locates the entities it matched.
type BedrockGuard struct {
	guardrailID      string
	guardrailVersion string
	region           string
	limiter          *rate.Limiter
	log              *logger.Logger

	// loadConfig is awsconfig.LoadDefaultConfig outside tests.
	loadConfig func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error)
	transport  lazyHTTPClient

	mu     sync.Mutex
	client GuardrailClient
}

// NewBedrock creates a Bedrock guard. Missing settings fall back to the
// BEDROCK_GUARDRAIL_ID and AWS_REGION environment variables.
func NewBedrock(cfg config.GuardConfig, log *logger.Logger) (*BedrockGuard, error) {
	id := cfg.Bedrock.GuardrailID
	if id == "" {
		id = os.Getenv("BEDROCK_GUARDRAIL_ID")
	}
	if id == "" {
		return nil, &privacy.ConfigurationError{
			Field: "guard.bedrock.guardrail_id",
			Err:   errors.New("a guardrail identifier is required"),
		}
	}
	version := cfg.Bedrock.GuardrailVersion
	if version == "" {
		version = "DRAFT"
	}
	region := cfg.Bedrock.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	return &BedrockGuard{
		guardrailID:      id,
		guardrailVersion: version,
		region:           region,
		limiter:          newLimiter(cfg.RateLimit),
		log:              log,
		loadConfig:       awsconfig.LoadDefaultConfig,
	}, nil
}

// NewBedrockWithClient creates a guard around an existing client.
func NewBedrockWithClient(client GuardrailClient, guardrailID, version string, log *logger.Logger) *BedrockGuard {
	if log == nil {
		log = logger.NewNop()
	}
	return &BedrockGuard{
		guardrailID:      guardrailID,
		guardrailVersion: version,
		limiter:          newLimiter(0),
		log:              log,
		client:           client,
	}
}

func (g *BedrockGuard) Name() string { return "bedrock" }

// getClient builds the runtime client on first success. A failed load is not
// cached, so the next call tries again. The caller's deadline does not apply to
// config loading.
func (g *BedrockGuard) getClient(ctx context.Context) (GuardrailClient, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	awsCfg, err := g.loadConfig(context.WithoutCancel(ctx),
		awsconfig.WithRegion(g.region),
		awsconfig.WithHTTPClient(g.transport.get()),
	)
	if err != nil {
		g.log.Warn("Failed to load AWS config", zap.String("region", g.region), zap.Error(err))
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	g.client = bedrockruntime.NewFromConfig(awsCfg)
	return g.client, nil
}

// Close releases idle connections to the Bedrock endpoint.
func (g *BedrockGuard) Close() error { return g.transport.Close() }

// IsAvailable reports whether AWS configuration could be loaded.
func (g *BedrockGuard) IsAvailable(ctx context.Context) bool {
	_, err := g.getClient(ctx)
	return err == nil
}

// Detect implements privacy.Guard.
func (g *BedrockGuard) Detect(ctx context.Context, text string) ([]privacy.Span, error) {
	client, err := g.getClient(ctx)
	if err != nil {
		return nil, privacy.NewGuardUnavailable(g.Name(), err)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, privacy.NewGuardUnavailable(g.Name(), err)
	}

	out, err := client.ApplyGuardrail(ctx, &bedrockruntime.ApplyGuardrailInput{
		GuardrailIdentifier: aws.String(g.guardrailID),
		GuardrailVersion:    aws.String(g.guardrailVersion),
		Source:              types.GuardrailContentSourceInput,
		Content: []types.GuardrailContentBlock{
			&types.GuardrailContentBlockMemberText{
				Value: types.GuardrailTextBlock{Text: aws.String(text)},
			},
		},
	})
	if err != nil {
		return nil, privacy.NewGuardUnavailable(g.Name(), fmt.Errorf("apply guardrail: %w", err))
	}

	var findings []finding
	for _, assessment := range out.Assessments {
		policy := assessment.SensitiveInformationPolicy
		if policy == nil {
			continue
		}
		for _, entity := range policy.PiiEntities {
			findings = append(findings, finding{
				Type:  mapBedrockType(string(entity.Type)),
				Value: aws.ToString(entity.Match),
			})
		}
		for _, re := range policy.Regexes {
			findings = append(findings, finding{
				Type:  privacy.TypeCustom,
				Value: aws.ToString(re.Match),
			})
		}
	}

	spans := locate(text, findings, "guard:"+g.Name(), bedrockConfidence)
	g.log.Debug("Bedrock guard finished",
		zap.String("guardrail_id", g.guardrailID),
		zap.String("action", string(out.Action)),
		zap.Int("reported", len(findings)),
		zap.Int("located", len(spans)),
	)
	return spans, nil
}
