// Package gemini implements integration with Google's Gemini AI API.
// It provides the persona's text, vision, audio, and image generation
// capabilities for the bot.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/sheldonbot/internal/config"
	"github.com/edgard/sheldonbot/internal/database"
)

// Client defines the interface for AI operations used throughout the
// application.
type Client interface {
	// GenerateReply produces a persona chat reply from the chat history,
	// tuned by the chat's humor level and reply length. An optional trigger
	// line is appended after the history.
	GenerateReply(ctx context.Context, humorLevel, maxLines int, history []database.HistoryEntry, trigger string) (string, error)

	// GenerateImageComment produces a persona comment on a photo.
	GenerateImageComment(ctx context.Context, history []database.HistoryEntry, caption, mimeType string, imageData []byte) (string, error)

	// DetectEditIntent reports whether a photo caption asks for the image to
	// be modified. Errors and short captions count as no.
	DetectEditIntent(ctx context.Context, caption string) bool

	// BuildImagePrompt turns a source image plus an edit request into an
	// English generation prompt. Falls back to the raw request on failure.
	BuildImagePrompt(ctx context.Context, imageData []byte, mimeType, editRequest string) string

	// GenerateImage renders an image for the given prompt and returns its
	// bytes.
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)

	// TranscribeVoice converts a voice recording to text. Returns an empty
	// string when nothing intelligible comes back.
	TranscribeVoice(ctx context.Context, audioData []byte, mimeType string) string

	// GenerateMemberQuestion produces a personal question addressed to a
	// chat member by @username.
	GenerateMemberQuestion(ctx context.Context, username, bio string, history []database.HistoryEntry) (string, error)

	// GenerateSilenceBreaker produces a provocation for a quiet chat.
	GenerateSilenceBreaker(ctx context.Context, members []database.MemberProfile, history []database.HistoryEntry) (string, error)

	// GenerateDeployAnnouncement produces a restart announcement built from
	// member dossiers.
	GenerateDeployAnnouncement(ctx context.Context, members []database.MemberProfile) (string, error)
}

type sdkClient struct {
	genaiClient      *genai.Client
	log              *slog.Logger
	contentConfig    *genai.GenerateContentConfig
	defaultModelName string
	imageModelName   string
	maxRetries       int
	retryDelay       time.Duration
}

// NewClient creates a new Gemini AI client with the provided configuration.
// It initializes the connection to the Gemini API and sets up necessary
// parameters.
func NewClient(
	ctx context.Context,
	cfg config.GeminiConfig,
	log *slog.Logger,
) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	baseCfg := &genai.GenerateContentConfig{
		Temperature: &cfg.Temperature,

		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", cfg.ModelName, "image_model", cfg.ImageModelName)
	return &sdkClient{
		genaiClient:      gi,
		log:              logger,
		contentConfig:    baseCfg,
		defaultModelName: cfg.ModelName,
		imageModelName:   cfg.ImageModelName,
		maxRetries:       cfg.MaxRetries,
		retryDelay:       time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

// configWith copies the base generation config with a per-operation system
// instruction, temperature, and token limit.
func (c *sdkClient) configWith(system string, temperature float32, maxTokens int32) *genai.GenerateContentConfig {
	copyCfg := *c.contentConfig
	if system != "" {
		copyCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	copyCfg.Temperature = genai.Ptr(temperature)
	copyCfg.MaxOutputTokens = maxTokens
	return &copyCfg
}

// replyTemperature scales creativity with the chat's humor level.
func replyTemperature(humorLevel int) float32 {
	return 0.7 + float32(humorLevel)*0.03
}

// replyTokenLimit scales the output budget with the reply length setting.
func replyTokenLimit(maxLines int) int32 {
	tokens := int32(maxLines) * 80
	if tokens < 60 {
		return 60
	}
	return tokens
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, modelName string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, modelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry", "attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var genAiAPIError *genai.APIError
		// Use errors.As to check if the error (or an error it wraps) is a *genai.APIError
		if errors.As(err, &genAiAPIError) && (genAiAPIError.Code == 500 || genAiAPIError.Code == 503) { // Retriable HTTP codes
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call due to retriable APIError", "delay", c.retryDelay, "code", genAiAPIError.Code)
				time.Sleep(c.retryDelay)
				continue
			}
			// Max retries reached for a retriable genai.APIError
			c.log.ErrorContext(ctx, "Gemini API call failed after max retries with APIError", "error", err, "code", genAiAPIError.Code)
			return nil, fmt.Errorf("gemini API call failed after %d retries (APIError code %d): %w", c.maxRetries, genAiAPIError.Code, err)
		}

		// Not a retriable genai.APIError (either not genai.APIError, or not a 500/503 code)
		c.log.ErrorContext(ctx, "Gemini API call failed with non-retriable error", "error", err)
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	return nil, err
}

func (c *sdkClient) GenerateReply(ctx context.Context, humorLevel, maxLines int, history []database.HistoryEntry, trigger string) (string, error) {
	c.log.DebugContext(ctx, "Generating reply", "history_len", len(history), "humor_level", humorLevel, "max_lines", maxLines)

	var contents []*genai.Content
	for _, e := range history {
		contents = append(contents, genai.NewContentFromText(historyLineWithBio(e), genai.RoleUser))
	}
	if trigger != "" {
		contents = append(contents, genai.NewContentFromText(trigger, genai.RoleUser))
	}

	cfg := c.configWith(systemInstruction(humorLevel, maxLines), replyTemperature(humorLevel), replyTokenLimit(maxLines))

	resp, err := c.generateContentWithRetries(ctx, c.defaultModelName, contents, cfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini reply generation failed", "error", err)
		return "", fmt.Errorf("gemini reply generation failed: %w", err)
	}

	return c.extractTextFromResponse(ctx, resp)
}

func (c *sdkClient) GenerateImageComment(ctx context.Context, history []database.HistoryEntry, caption, mimeType string, imageData []byte) (string, error) {
	c.log.DebugContext(ctx, "Generating image comment", "image_size", len(imageData), "mime_type", mimeType, "history_len", len(history))
	if len(imageData) == 0 || mimeType == "" {
		return "", fmt.Errorf("image data and MIME type are required")
	}

	var contents []*genai.Content
	for _, e := range history {
		contents = append(contents, genai.NewContentFromText(historyLineWithBio(e), genai.RoleUser))
	}

	text := visionNoCaption
	if caption != "" {
		text = fmt.Sprintf(visionCaptionTemplate, caption)
	}
	contents = append(contents, genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(text),
		genai.NewPartFromBytes(imageData, mimeType),
	}, genai.RoleUser))

	cfg := c.configWith(sheldonSystemPrompt, 0.95, 200)

	resp, err := c.generateContentWithRetries(ctx, c.defaultModelName, contents, cfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini image comment failed", "error", err)
		return "", fmt.Errorf("gemini image comment failed: %w", err)
	}

	return c.extractTextFromResponse(ctx, resp)
}

func (c *sdkClient) DetectEditIntent(ctx context.Context, caption string) bool {
	caption = strings.TrimSpace(caption)
	if len([]rune(caption)) < 3 {
		return false
	}

	contents := []*genai.Content{genai.NewContentFromText(caption, genai.RoleUser)}
	cfg := c.configWith(editIntentSystemPrompt, 0, 5)

	resp, err := c.generateContentWithRetries(ctx, c.defaultModelName, contents, cfg)
	if err != nil {
		c.log.WarnContext(ctx, "Edit intent detection failed, assuming no", "error", err)
		return false
	}

	answer, err := c.extractTextFromResponse(ctx, resp)
	if err != nil {
		c.log.WarnContext(ctx, "Edit intent detection returned nothing, assuming no", "error", err)
		return false
	}

	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(answer)), "YES")
}

func (c *sdkClient) BuildImagePrompt(ctx context.Context, imageData []byte, mimeType, editRequest string) string {
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(fmt.Sprintf("Запрос на изменение: %s", editRequest)),
		genai.NewPartFromBytes(imageData, mimeType),
	}, genai.RoleUser)}

	cfg := c.configWith(imagePromptSystemPrompt, 0.5, 300)

	resp, err := c.generateContentWithRetries(ctx, c.defaultModelName, contents, cfg)
	if err != nil {
		c.log.WarnContext(ctx, "Image prompt build failed, using raw edit request", "error", err)
		return editRequest
	}

	prompt, err := c.extractTextFromResponse(ctx, resp)
	if err != nil {
		c.log.WarnContext(ctx, "Image prompt build returned nothing, using raw edit request", "error", err)
		return editRequest
	}
	return prompt
}

func (c *sdkClient) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	c.log.DebugContext(ctx, "Generating image", "prompt_len", len(prompt))

	resp, err := c.genaiClient.Models.GenerateImages(ctx, c.imageModelName, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini image generation failed", "error", err)
		return nil, fmt.Errorf("gemini image generation failed: %w", err)
	}

	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil || len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
		c.log.ErrorContext(ctx, "Gemini image generation returned no images")
		return nil, fmt.Errorf("gemini image generation returned no images")
	}

	return resp.GeneratedImages[0].Image.ImageBytes, nil
}

func (c *sdkClient) TranscribeVoice(ctx context.Context, audioData []byte, mimeType string) string {
	c.log.DebugContext(ctx, "Transcribing voice", "audio_size", len(audioData), "mime_type", mimeType)
	if len(audioData) == 0 {
		return ""
	}

	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(transcribePrompt),
		genai.NewPartFromBytes(audioData, mimeType),
	}, genai.RoleUser)}

	cfg := c.configWith("", 0, 1024)

	resp, err := c.generateContentWithRetries(ctx, c.defaultModelName, contents, cfg)
	if err != nil {
		c.log.WarnContext(ctx, "Voice transcription failed", "error", err)
		return ""
	}

	text, err := c.extractTextFromResponse(ctx, resp)
	if err != nil {
		c.log.WarnContext(ctx, "Voice transcription returned nothing", "error", err)
		return ""
	}
	return text
}

func (c *sdkClient) GenerateMemberQuestion(ctx context.Context, username, bio string, history []database.HistoryEntry) (string, error) {
	c.log.DebugContext(ctx, "Generating member question", "username", username)

	prompt := fmt.Sprintf(memberQuestionTemplate, username, bioNote(bio), formatHistory(history))
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	cfg := c.configWith(sheldonSystemPrompt, 0.95, 150)

	resp, err := c.generateContentWithRetries(ctx, c.defaultModelName, contents, cfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini member question failed", "error", err)
		return "", fmt.Errorf("gemini member question failed: %w", err)
	}

	return c.extractTextFromResponse(ctx, resp)
}

func (c *sdkClient) GenerateSilenceBreaker(ctx context.Context, members []database.MemberProfile, history []database.HistoryEntry) (string, error) {
	c.log.DebugContext(ctx, "Generating silence breaker", "member_count", len(members))

	prompt := fmt.Sprintf(silenceBreakerTemplate, formatMemberList(members), lastTopic(history))
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	cfg := c.configWith(sheldonSystemPrompt, 1.0, 150)

	resp, err := c.generateContentWithRetries(ctx, c.defaultModelName, contents, cfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini silence breaker failed", "error", err)
		return "", fmt.Errorf("gemini silence breaker failed: %w", err)
	}

	return c.extractTextFromResponse(ctx, resp)
}

func (c *sdkClient) GenerateDeployAnnouncement(ctx context.Context, members []database.MemberProfile) (string, error) {
	c.log.DebugContext(ctx, "Generating deploy announcement", "member_count", len(members))

	bioSummary := formatBioSummary(members)
	if bioSummary == "" {
		return deployAnnouncementEmpty, nil
	}

	prompt := fmt.Sprintf(deployAnnouncementTemplate, bioSummary)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	cfg := c.configWith(sheldonSystemPrompt, 0.95, 200)

	resp, err := c.generateContentWithRetries(ctx, c.defaultModelName, contents, cfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini deploy announcement failed", "error", err)
		return "", fmt.Errorf("gemini deploy announcement failed: %w", err)
	}

	return c.extractTextFromResponse(ctx, resp)
}

func (c *sdkClient) extractTextFromResponse(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	op := "gemini_operation"
	if pc, _, _, ok := runtime.Caller(1); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			parts := strings.Split(fn.Name(), ".")
			if len(parts) >= 2 {
				op = parts[len(parts)-1]
			}
		}
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "operation", op, "reason", reasonMsg)
		return "", fmt.Errorf("%s blocked by safety filter: %s", op, reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "operation", op, "finish_reason", finishReason)

		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonStop {
			return "", fmt.Errorf("%s returned no content, finish reason: %s", op, finishReason)
		}

		return "", fmt.Errorf("%s returned empty content", op)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		c.log.WarnContext(ctx, "Gemini response text is empty", "operation", op)
		return "", fmt.Errorf("%s returned empty text", op)
	}

	return text, nil
}
