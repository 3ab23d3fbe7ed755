package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// GeneratedCard is one card parsed out of an LLM response.
type GeneratedCard struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Type     string   `json:"type"`
	Options  []string `json:"options"`
	Tags     []string `json:"tags"`
}

type generateResponse struct {
	Flashcards []GeneratedCard `json:"flashcards"`
}

const systemPrompt = `You are an expert at creating educational multiple choice questions from text content.

Analyze the provided content and create comprehensive multiple choice questions that cover the main concepts, definitions, and important information. Make sure all details are accurate and relevant to the content.

IMPORTANT: Create ONLY multiple choice questions. Do NOT create regular flashcards.

For each multiple choice question:
1. Create a clear, specific question that tests understanding
2. Provide exactly 4 answer options
3. The FIRST option must ALWAYS be the correct answer
4. The other 3 options should be plausible but incorrect distractors
5. Make the incorrect options challenging but clearly wrong to someone who knows the material
6. Add relevant tags for categorization

Return the questions in the following JSON format:
{
  "flashcards": [
    {
      "question": "Which of the following best describes...",
      "answer": "The correct answer",
      "type": "multiple_choice",
      "options": ["Correct answer", "Incorrect option 1", "Incorrect option 2", "Incorrect option 3"],
      "tags": ["topic1", "topic2"]
    }
  ]
}

Create between 15-60 multiple choice questions depending on the content length. Focus on key concepts and definitions, important facts and figures, processes and methodologies, cause and effect relationships, and applications.

Avoid "all of the above" or "none of the above" options, base distractors on common misconceptions, and cover a range of difficulty levels. Respond with JSON only.`

// Generator turns study material into multiple choice cards.
type Generator struct {
	llm LLM
}

// NewGenerator creates a Generator backed by the given LLM.
func NewGenerator(llm LLM) *Generator {
	return &Generator{llm: llm}
}

// GenerateCards asks the LLM for multiple choice cards covering content.
func (g *Generator) GenerateCards(ctx context.Context, content string) ([]GeneratedCard, error) {
	raw, err := g.llm.Chat(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: content},
	})
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}

	cards, err := ParseCards(raw)
	if err != nil {
		return nil, err
	}
	return cards, nil
}

// ParseCards extracts generated cards from a raw LLM response. Models wrap
// JSON in code fences or prose often enough that parsing is best-effort:
// strip fences, trim to the outermost braces, then unmarshal.
func ParseCards(raw string) ([]GeneratedCard, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	cleaned = cleaned[start : end+1]

	var resp generateResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	cards := make([]GeneratedCard, 0, len(resp.Flashcards))
	for _, card := range resp.Flashcards {
		card.Question = strings.TrimSpace(card.Question)
		card.Answer = strings.TrimSpace(card.Answer)
		if card.Question == "" || card.Answer == "" {
			continue
		}
		if card.Type == "" {
			card.Type = "multiple_choice"
		}
		// The prompt puts the correct answer first; repair responses where
		// the model dropped or misplaced it.
		if idx := indexOf(card.Options, card.Answer); idx == -1 {
			card.Options = append([]string{card.Answer}, card.Options...)
		} else if idx > 0 {
			card.Options = append(card.Options[:idx], card.Options[idx+1:]...)
			card.Options = append([]string{card.Answer}, card.Options...)
		}
		if len(card.Options) > 4 {
			card.Options = card.Options[:4]
		}
		cards = append(cards, card)
	}

	if len(cards) == 0 {
		return nil, fmt.Errorf("response contained no usable cards")
	}
	return cards, nil
}

func indexOf(items []string, target string) int {
	for i, item := range items {
		if item == target {
			return i
		}
	}
	return -1
}
