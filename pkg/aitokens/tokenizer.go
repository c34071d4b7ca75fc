// Package aitokens estimates token usage for dispatcher turns, adapted
// from the teacher's pkg/aitokens tokenizer wrapper around
// github.com/pkoukk/tiktoken-go, trimmed to plain string/role pairs
// instead of openai-go/v3's union message types — Homestead's dispatcher
// speaks plain text turns, not OpenAI's typed chat-message shape.
package aitokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tokenizerCache   = make(map[string]*tiktoken.Tiktoken)
	tokenizerCacheMu sync.RWMutex
)

// Message is one turn-accounting entry: a role ("user"/"assistant") plus
// its text content.
type Message struct {
	Role    string
	Content string
}

// GetTokenizer returns a cached tiktoken encoder for model, falling back
// to cl100k_base for unrecognized model identifiers.
func GetTokenizer(model string) (*tiktoken.Tiktoken, error) {
	tokenizerCacheMu.RLock()
	if tkm, ok := tokenizerCache[model]; ok {
		tokenizerCacheMu.RUnlock()
		return tkm, nil
	}
	tokenizerCacheMu.RUnlock()

	tokenizerCacheMu.Lock()
	defer tokenizerCacheMu.Unlock()

	if tkm, ok := tokenizerCache[model]; ok {
		return tkm, nil
	}

	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	tokenizerCache[model] = tkm
	return tkm, nil
}

// tokensPerMessage is a fixed per-message overhead, consistent across
// GPT-family models (see the OpenAI cookbook's token-counting recipe).
const tokensPerMessage = 3

// EstimateTurn counts tokens for a full turn's message history.
func EstimateTurn(messages []Message, model string) (int, error) {
	tkm, err := GetTokenizer(model)
	if err != nil {
		return 0, err
	}
	numTokens := 0
	for _, msg := range messages {
		numTokens += tokensPerMessage
		numTokens += len(tkm.Encode(msg.Content, nil, nil))
		numTokens += len(tkm.Encode(msg.Role, nil, nil))
	}
	numTokens += 3 // every reply is primed with <|start|>assistant<|message|>
	return numTokens, nil
}

// EstimateText estimates tokens for a single string, used to account for
// streamed deltas as they arrive.
func EstimateText(text, model string) (int, error) {
	tkm, err := GetTokenizer(model)
	if err != nil {
		return 0, err
	}
	return len(tkm.Encode(text, nil, nil)), nil
}
