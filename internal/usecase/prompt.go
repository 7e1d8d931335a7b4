package usecase

import (
	"fmt"
	"strings"
	"unicode"

	"ambubot/internal/domain"
)

const (
	sessionIntent    = "IntentCheck"
	sessionFollowUp  = "FollowUpBot"
	sessionRelevance = "RelevanceCheck"
)

const (
	intentSystemPrompt    = "Determine if a user's message is health-related. Respond with only 'Yes' or 'No'."
	followUpSystemPrompt  = "Generate exactly 3 follow-up questions about the provided symptom."
	relevanceSystemPrompt = "Determine whether the user's answer responds to the follow-up question it was given. Respond with only 'Yes' or 'No'."
	remedySystemPrompt    = "Provide home remedies based on the given symptoms and follow-up answers. " +
		"If the reference material does not cover the symptoms, give general self-care advice and say when to see a doctor."
)

func (s *IntakeService) intentPrompt(message string) domain.Prompt {
	return domain.Prompt{
		Model:       s.cfg.Model,
		System:      intentSystemPrompt,
		Query:       fmt.Sprintf("User input: '%s'", message),
		Temperature: 0,
		SessionID:   sessionIntent,
	}
}

func (s *IntakeService) followUpPrompt(symptom string) domain.Prompt {
	return domain.Prompt{
		Model:       s.cfg.Model,
		System:      followUpSystemPrompt,
		Query:       fmt.Sprintf("User symptoms: %s. What follow-up questions should I ask?", symptom),
		Temperature: 0.2,
		SessionID:   sessionFollowUp,
	}
}

func (s *IntakeService) relevancePrompt(question, answer string) domain.Prompt {
	return domain.Prompt{
		Model:       s.cfg.Model,
		System:      relevanceSystemPrompt,
		Query:       fmt.Sprintf("Follow-up question: '%s'. User answer: '%s'. Does the answer respond to the question?", question, answer),
		Temperature: 0,
		SessionID:   sessionRelevance,
	}
}

func (s *IntakeService) remedyPrompt(conv domain.Conversation) domain.Prompt {
	query := fmt.Sprintf("Symptoms: %s. What home remedies can I try?", conv.Symptom)
	if len(conv.Answers) > 0 {
		query = fmt.Sprintf("Symptoms: %s. Answers to follow-ups: %s. What home remedies can I try?",
			conv.Symptom, formatAnswers(conv.FollowUps, conv.Answers))
	}
	return domain.Prompt{
		Model:       s.cfg.Model,
		System:      remedySystemPrompt,
		Query:       query,
		Temperature: 0.2,
		SessionID:   s.cfg.RemedySessionID,
		RAG:         &domain.RAGOptions{Threshold: s.cfg.RAGThreshold, K: s.cfg.RAGK},
	}
}

func formatAnswers(questions, answers []string) string {
	parts := make([]string, 0, len(answers))
	for i, a := range answers {
		if i < len(questions) {
			parts = append(parts, fmt.Sprintf("%s %s", questions[i], a))
			continue
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, "; ")
}

// parseFollowUps keeps the first MaxFollowUps non-blank lines of raw with any
// list marker removed.
func parseFollowUps(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		q := stripListMarker(strings.TrimSpace(line))
		if q == "" {
			continue
		}
		out = append(out, q)
		if len(out) == domain.MaxFollowUps {
			break
		}
	}
	return out
}

// stripListMarker removes "1.", "2)", "-", "*" and "•" prefixes.
func stripListMarker(line string) string {
	for _, bullet := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, bullet) {
			return strings.TrimSpace(line[len(bullet):])
		}
	}

	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}

// parseYesNo reports whether raw is an affirmative classifier answer.
func parseYesNo(raw string) bool {
	answer := strings.ToLower(strings.TrimSpace(raw))
	answer = strings.TrimRightFunc(answer, unicode.IsPunct)
	return answer == "yes"
}

var redFlagPhrases = []string{
	"chest pain",
	"difficulty breathing",
	"shortness of breath",
	"trouble breathing",
	"unconscious",
	"severe bleeding",
}

func hasRedFlag(symptom string) bool {
	s := strings.ToLower(symptom)
	for _, phrase := range redFlagPhrases {
		if strings.Contains(s, phrase) {
			return true
		}
	}
	return false
}

var resetWords = map[string]struct{}{
	"bye":     {},
	"restart": {},
	"reset":   {},
}

func isReset(message string) bool {
	word := strings.TrimRightFunc(strings.ToLower(strings.TrimSpace(message)), unicode.IsPunct)
	_, ok := resetWords[word]
	return ok
}
