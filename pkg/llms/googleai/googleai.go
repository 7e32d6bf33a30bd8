package googleai

import (
	"context"
	"time"

	"github.com/effective-security/supportagent/pkg/llms"
	"github.com/effective-security/supportagent/pkg/llms/googleai/internal/genaiutils"
	"github.com/effective-security/x/values"
	"google.golang.org/genai"
)

// GetName implements the Model interface.
func (g *GoogleAI) GetName() string {
	return g.opts.DefaultModel
}

// GetProviderType implements the Model interface.
func (g *GoogleAI) GetProviderType() llms.ProviderType {
	return llms.ProviderGoogleAI
}

// GenerateContent implements the [llms.Model] interface.
func (g *GoogleAI) GenerateContent(ctx context.Context, req *llms.Request) (resp *llms.Response, err error) {
	defer llms.Observe(ctx, g, time.Now(), &resp, &err)

	temperature := req.Temperature
	if temperature == 0 {
		temperature = g.opts.DefaultTemperature
	}

	callCfg := &genai.GenerateContentConfig{
		StopSequences:   req.StopWords,
		CandidateCount:  1,
		MaxOutputTokens: int32(values.NumbersCoalesce(req.MaxTokens, g.opts.DefaultMaxTokens)),
		Temperature:     genaiutils.Float32Ptr(float32(temperature)),
		SafetySettings:  g.safetySettings(),
	}
	if req.SystemPrompt != "" {
		callCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	if callCfg.Tools, err = genaiutils.ConvertTools(req.Tools); err != nil {
		return nil, llms.InvocationError(err, "googleai: invalid tools")
	}

	history, err := genaiutils.ConvertMessages(req.Messages)
	if err != nil {
		return nil, llms.InvocationError(err, "googleai: invalid history")
	}

	result, err := g.client.Models.GenerateContent(ctx, g.opts.DefaultModel, history, callCfg)
	if err != nil {
		return nil, llms.InvocationError(err, "googleai: failed to generate content")
	}

	resp, err = genaiutils.ConvertResponse(result)
	if err != nil {
		return nil, llms.InvocationError(err, "googleai: invalid response")
	}
	return resp, nil
}

func (g *GoogleAI) safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryDangerousContent,
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
	}
	settings := make([]*genai.SafetySetting, len(categories))
	for i, c := range categories {
		settings[i] = &genai.SafetySetting{
			Category:  c,
			Threshold: g.opts.HarmThreshold,
		}
	}
	return settings
}
