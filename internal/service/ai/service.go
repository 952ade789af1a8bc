package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/mkarlsen/voiceloop/internal/config"
	"github.com/mkarlsen/voiceloop/internal/model/conversation"
)

// Service 封装流式对话模型调用。
// Every turn replays the full conversation so far; the model holds no state
// between calls.
type Service struct {
	chatModel    model.ChatModel
	systemPrompt string
}

// NewService 根据配置创建模型服务。
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return &Service{chatModel: chatModel, systemPrompt: cfg.SystemPrompt}, nil
}

// Stream starts one streaming generation seeded with the configured system
// prompt and the given history. The caller owns the reader and must Close it.
func (s *Service) Stream(ctx context.Context, history []conversation.Message) (*schema.StreamReader[*schema.Message], error) {
	messages := make([]*schema.Message, 0, len(history)+1)
	if s.systemPrompt != "" {
		messages = append(messages, schema.SystemMessage(s.systemPrompt))
	}
	for _, msg := range history {
		switch msg.Role {
		case conversation.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		default:
			messages = append(messages, schema.UserMessage(msg.Content))
		}
	}

	stream, err := s.chatModel.Stream(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to stream model response: %w", err)
	}
	return stream, nil
}
