package gateway

import (
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// SystemMessage builds a system-role transcript entry.
func SystemMessage(text string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: text,
	}
}

// UserTextMessage builds a plain-text user turn.
func UserTextMessage(text string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	}
}

// UserMessage builds a multimodal user turn from content parts.
func UserMessage(parts []openai.ChatMessagePart) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	}
}

// TextPart builds a text content part.
func TextPart(text string) openai.ChatMessagePart {
	return openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: text,
	}
}

// MediaPart builds an image-URL content part carrying base64 payload as a
// data URL. Non-image media rides the same part type; providers that accept
// it decode by the declared media type.
func MediaPart(mediaType, b64 string) openai.ChatMessagePart {
	return openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{
			URL: DataURL(mediaType, b64),
		},
	}
}

// DataURL renders base64 bytes as an RFC 2397 data URL.
func DataURL(mediaType, b64 string) string {
	return fmt.Sprintf("data:%s;base64,%s", mediaType, b64)
}

func decodeArgs(raw string) (map[string]interface{}, error) {
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}
