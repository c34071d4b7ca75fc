package aitokens

import "testing"

func TestEstimateTextCountsNonZeroTokensForNonEmptyInput(t *testing.T) {
	n, err := EstimateText("hello world, this is a turn", "gpt-4")
	if err != nil {
		t.Fatalf("EstimateText: %v", err)
	}
	if n <= 0 {
		t.Fatalf("expected a positive token count, got %d", n)
	}
}

func TestEstimateTextUnrecognizedModelFallsBackToCl100kBase(t *testing.T) {
	n, err := EstimateText("hello world", "claude-cli-default")
	if err != nil {
		t.Fatalf("EstimateText with unrecognized model should fall back, got error: %v", err)
	}
	if n <= 0 {
		t.Fatalf("expected a positive token count from the cl100k_base fallback, got %d", n)
	}
}

func TestEstimateTurnAccountsForEveryMessagePlusPriming(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "you are a helpful assistant"},
		{Role: "user", Content: "what is the capital of france"},
	}
	turn, err := EstimateTurn(messages, "gpt-4")
	if err != nil {
		t.Fatalf("EstimateTurn: %v", err)
	}

	var textOnly int
	for _, m := range messages {
		n, err := EstimateText(m.Content+m.Role, "gpt-4")
		if err != nil {
			t.Fatalf("EstimateText: %v", err)
		}
		textOnly += n
	}
	if turn <= textOnly {
		t.Fatalf("expected EstimateTurn (%d) to exceed raw content+role tokens (%d) due to per-message and reply-priming overhead", turn, textOnly)
	}
}

func TestEstimateTurnEmptyMessagesStillAccountsForReplyPriming(t *testing.T) {
	n, err := EstimateTurn(nil, "gpt-4")
	if err != nil {
		t.Fatalf("EstimateTurn: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected the fixed reply-priming overhead of 3 tokens for an empty turn, got %d", n)
	}
}

func TestGetTokenizerCachesByModel(t *testing.T) {
	a, err := GetTokenizer("gpt-4")
	if err != nil {
		t.Fatalf("GetTokenizer: %v", err)
	}
	b, err := GetTokenizer("gpt-4")
	if err != nil {
		t.Fatalf("GetTokenizer: %v", err)
	}
	if a != b {
		t.Fatalf("expected the second GetTokenizer call for the same model to return the cached encoder")
	}
}
