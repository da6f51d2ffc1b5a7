package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"auto-trade/internal/config"
)

// Client 通过 OpenAI 兼容接口获取交易决策。
type Client struct {
	cfg    config.OpenAIConfig
	logger *zap.Logger
	sdk    *openai.Client
}

var _ Oracle = (*Client)(nil)

// NewClient 使用给定配置创建 AI 客户端。
func NewClient(cfg config.OpenAIConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api_key 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		sdk:    openai.NewClientWithConfig(sdkConfig),
	}, nil
}

// Decide 渲染提示词、调用模型并解析为对应形态的决策。
func (c *Client) Decide(ctx context.Context, req Request) (Decision, error) {
	if c.cfg.Model == "" {
		return Decision{}, errors.New("openai model 不能为空")
	}

	prompt, err := BuildPrompt(req)
	if err != nil {
		return Decision{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	response, err := c.sdk.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0,
	})
	if err != nil {
		c.logger.Error("调用OpenAI失败", zap.String("kind", string(req.Kind)), zap.Error(err))
		return Decision{}, fmt.Errorf("调用OpenAI失败: %w", err)
	}

	if len(response.Choices) == 0 {
		return Decision{}, errors.New("OpenAI 返回结果为空")
	}

	rawContent := strings.TrimSpace(response.Choices[0].Message.Content)
	if rawContent == "" {
		return Decision{}, errors.New("OpenAI 返回内容为空")
	}

	var decision Decision
	switch req.Kind {
	case KindPortfolio:
		decision, err = ParsePortfolio(rawContent)
	default:
		decision, err = ParseSingle(rawContent)
	}
	if err != nil {
		c.logger.Error("解析模型决策失败",
			zap.Error(err),
			zap.String("raw_content", rawContent),
		)
		return Decision{}, err
	}

	c.logger.Info("AI 决策生成成功",
		zap.String("kind", string(decision.Kind)),
		zap.String("action", string(decision.Headline())),
		zap.Float64("confidence", decision.Confidence()),
		zap.String("outlook", decision.Outlook()),
	)

	return decision, nil
}
