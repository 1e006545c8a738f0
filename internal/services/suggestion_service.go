package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/yukikurage/chore-reward-api/internal/constants"
	"github.com/yukikurage/chore-reward-api/internal/models"
	"github.com/yukikurage/chore-reward-api/internal/repository"
)

// SuggestionService turns free text from a parent ("the yard is a mess and
// the dog needs a walk before Sunday") into draft chores.
type SuggestionService struct {
	client     *openai.Client
	familyRepo repository.FamilyRepository
	now        func() time.Time
}

// SuggestedTask is a chore proposal. Nothing is stored until a parent
// creates a task from it.
type SuggestedTask struct {
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Category     models.TaskCategory   `json:"category"`
	Difficulty   models.TaskDifficulty `json:"difficulty"`
	RewardAmount int64                 `json:"reward_amount"`
	DueDate      *time.Time            `json:"due_date"`
}

// NewSuggestionService creates a SuggestionService. Without an API key the
// service reports itself unavailable.
func NewSuggestionService(apiKey string, familyRepo repository.FamilyRepository) *SuggestionService {
	var client *openai.Client
	if apiKey != "" {
		client = openai.NewClient(apiKey)
	}
	return NewSuggestionServiceWithClient(client, familyRepo)
}

// NewSuggestionServiceWithClient allows injecting a configured client.
func NewSuggestionServiceWithClient(client *openai.Client, familyRepo repository.FamilyRepository) *SuggestionService {
	return &SuggestionService{
		client:     client,
		familyRepo: familyRepo,
		now:        time.Now,
	}
}

// Suggest asks the model for chores described by text.
func (s *SuggestionService) Suggest(ctx context.Context, parentID uint64, text string) ([]SuggestedTask, error) {
	if _, err := activeParent(s.familyRepo, parentID); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalidInput("text is required")
	}
	if s.client == nil {
		return nil, ErrSuggestionsUnavailable
	}

	currentTime := s.now().Format(time.RFC3339)
	prompt := fmt.Sprintf(`You help parents turn notes into household chores for their children.

Current time: %s

Notes:
%s

Reply with a JSON array only, no prose:
[
  {
    "title": "short chore title",
    "description": "what done looks like",
    "category": "one of CLEANING, COOKING, LAUNDRY, DISHES, YARD_WORK, PET_CARE, HOMEWORK, ERRANDS, OTHER",
    "difficulty": "EASY, MEDIUM or HARD",
    "reward_amount": positive integer reward in points,
    "due_date": "ISO8601 timestamp, or null when no deadline is stated"
  }
]

Return [] when the notes contain no chores. Convert relative deadlines ("tomorrow", "by Sunday") to timestamps.`, currentTime, text)

	resp, err := s.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: openai.GPT4o,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Temperature: 0.3,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.Trim(content, "`\n ")

	var raw []SuggestedTask
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}

	return s.normalize(raw), nil
}

// normalize drops untitled entries and coerces fields the model got wrong.
func (s *SuggestionService) normalize(raw []SuggestedTask) []SuggestedTask {
	out := make([]SuggestedTask, 0, len(raw))
	now := s.now()
	for _, t := range raw {
		t.Title = strings.TrimSpace(t.Title)
		if t.Title == "" {
			continue
		}
		if len(t.Title) > constants.MaxTitleLength {
			t.Title = t.Title[:constants.MaxTitleLength]
		}
		t.Category = models.TaskCategory(strings.ToUpper(string(t.Category)))
		if !t.Category.Valid() {
			t.Category = models.CategoryOther
		}
		t.Difficulty = models.TaskDifficulty(strings.ToUpper(string(t.Difficulty)))
		if !t.Difficulty.Valid() {
			t.Difficulty = models.DifficultyMedium
		}
		if t.RewardAmount <= 0 {
			t.RewardAmount = 1
		}
		if t.DueDate != nil && !t.DueDate.After(now) {
			t.DueDate = nil
		}
		out = append(out, t)
		if len(out) == constants.MaxSuggestedTasks {
			break
		}
	}
	return out
}
