package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"ambubot/internal/domain"
	"ambubot/internal/repository"
)

const (
	DefaultUserName         = "Unknown"
	DefaultModel            = "4o-mini"
	DefaultRemedySessionID  = "ambubot-home-remedies"
	defaultMaxMessageLength = 1000
	defaultRAGThreshold     = 0.2
	defaultRAGK             = 3

	StatusIgnored = "ignored"
	StatusReset   = "reset"
)

// Generator is an LLM completion backend.
type Generator interface {
	Generate(ctx context.Context, p domain.Prompt) (string, error)
}

// ConversationStore persists per-user intake state. Save must fail with
// repository.ErrConflict when the stored version differs from conv.Version.
type ConversationStore interface {
	Get(ctx context.Context, userID string) (domain.Conversation, bool, error)
	Save(ctx context.Context, conv domain.Conversation) (domain.Conversation, error)
	Delete(ctx context.Context, userID string) error
}

// ConsultationRecorder keeps finished consultations.
type ConsultationRecorder interface {
	Record(ctx context.Context, c domain.Consultation) error
}

type IntakeConfig struct {
	Model            string
	RemedySessionID  string
	IntentCheck      bool
	RelevanceCheck   bool
	MaxMessageLength int
	RAGThreshold     float64
	RAGK             int
}

type IntakeService struct {
	llm      Generator
	store    ConversationStore
	recorder ConsultationRecorder
	logger   *slog.Logger
	cfg      IntakeConfig
}

type IntakeOption func(*IntakeService)

func WithLogger(l *slog.Logger) IntakeOption {
	return func(s *IntakeService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder stores every finished consultation. Recording failures are
// logged and never reach the user.
func WithRecorder(r ConsultationRecorder) IntakeOption {
	return func(s *IntakeService) {
		s.recorder = r
	}
}

type QueryInput struct {
	UserName string
	Text     string
	Bot      bool
}

type QueryOutput struct {
	Text      string `json:"text,omitempty"`
	FollowUp  string `json:"follow_up,omitempty"`
	Remedy    string `json:"remedy,omitempty"`
	Alert     string `json:"alert,omitempty"`
	Emergency bool   `json:"emergency,omitempty"`
	Step      int    `json:"step,omitempty"`
	Status    string `json:"status,omitempty"`
}

func NewIntakeService(llm Generator, store ConversationStore, cfg IntakeConfig, opts ...IntakeOption) (*IntakeService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if strings.TrimSpace(cfg.RemedySessionID) == "" {
		cfg.RemedySessionID = DefaultRemedySessionID
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = defaultMaxMessageLength
	}
	if cfg.RAGThreshold <= 0 {
		cfg.RAGThreshold = defaultRAGThreshold
	}
	if cfg.RAGK <= 0 {
		cfg.RAGK = defaultRAGK
	}
	s := &IntakeService{llm: llm, store: store, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Query advances the caller's intake conversation by one message.
func (s *IntakeService) Query(ctx context.Context, in QueryInput) (QueryOutput, error) {
	text := strings.TrimSpace(in.Text)
	if in.Bot || text == "" {
		return QueryOutput{Status: StatusIgnored}, nil
	}
	if utf8.RuneCountInString(text) > s.cfg.MaxMessageLength {
		return QueryOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	userID := strings.TrimSpace(in.UserName)
	if userID == "" {
		userID = DefaultUserName
	}

	if isReset(text) {
		if err := s.store.Delete(ctx, userID); err != nil {
			return QueryOutput{}, newError(ErrorInternal, "state_delete_error", err)
		}
		return QueryOutput{Text: GoodbyeText, Status: StatusReset}, nil
	}

	conv, ok, err := s.store.Get(ctx, userID)
	if err != nil {
		return QueryOutput{}, newError(ErrorInternal, "state_read_error", err)
	}
	if !ok {
		return s.startIntake(ctx, domain.NewConversation(userID), text, true)
	}

	if conv.Step == domain.StepAwaitingSymptom {
		return s.startIntake(ctx, conv, text, false)
	}
	if _, waiting := conv.CurrentQuestion(); waiting {
		return s.collectAnswer(ctx, conv, text)
	}

	s.logger.WarnContext(ctx, "conversation in unexpected state, resetting",
		"user_id", userID, "step", conv.Step, "follow_ups", len(conv.FollowUps))
	if err := s.store.Delete(ctx, userID); err != nil {
		return QueryOutput{}, newError(ErrorInternal, "state_delete_error", err)
	}
	return QueryOutput{Text: RestartText}, nil
}

// startIntake treats message as the symptom report, or greets the user when
// intent checking rejects it. fresh marks a user with no stored state.
func (s *IntakeService) startIntake(ctx context.Context, conv domain.Conversation, message string, fresh bool) (QueryOutput, error) {
	if s.cfg.IntentCheck {
		related, err := s.classify(ctx, s.intentPrompt(message))
		if err != nil {
			return QueryOutput{}, upstreamError("intent_check_error", err)
		}
		if !related {
			if !fresh {
				return QueryOutput{Text: OffTopicText}, nil
			}
			if _, err := s.save(ctx, conv); err != nil {
				return QueryOutput{}, err
			}
			return QueryOutput{Text: WelcomeText}, nil
		}
	}

	raw, err := s.llm.Generate(ctx, s.followUpPrompt(message))
	if err != nil {
		return QueryOutput{}, upstreamError("follow_up_error", err)
	}

	conv.Symptom = message
	conv.FollowUps = parseFollowUps(raw)
	conv.Answers = nil
	conv.Emergency = hasRedFlag(message)

	var out QueryOutput
	if fresh {
		out.Text = WelcomeText
	}
	if conv.Emergency {
		out.Emergency = true
		out.Alert = AlertText
		s.logger.InfoContext(ctx, "red flag symptom reported", "user_id", conv.UserID)
	}

	if len(conv.FollowUps) == 0 {
		s.logger.WarnContext(ctx, "no usable follow-up questions, going straight to remedy", "user_id", conv.UserID)
		return s.finish(ctx, conv, out)
	}

	conv.Step = 1
	if _, err := s.save(ctx, conv); err != nil {
		return QueryOutput{}, err
	}
	out.FollowUp = followUpText(1, conv.FollowUps[0])
	if out.Text == "" {
		out.Text = out.FollowUp
	}
	out.Step = 1
	return out, nil
}

func (s *IntakeService) collectAnswer(ctx context.Context, conv domain.Conversation, answer string) (QueryOutput, error) {
	question, _ := conv.CurrentQuestion()

	if s.cfg.RelevanceCheck {
		relevant, err := s.classify(ctx, s.relevancePrompt(question, answer))
		if err != nil {
			return QueryOutput{}, upstreamError("relevance_check_error", err)
		}
		if !relevant {
			prompt := followUpText(conv.Step, question)
			return QueryOutput{
				Text:     IrrelevantText + "\n" + prompt,
				FollowUp: prompt,
				Step:     conv.Step,
			}, nil
		}
	}

	conv.Answers = append(conv.Answers, answer)
	if conv.Complete() {
		var out QueryOutput
		if conv.Emergency {
			out.Emergency = true
			out.Alert = AlertText
		}
		return s.finish(ctx, conv, out)
	}

	conv.Step++
	if _, err := s.save(ctx, conv); err != nil {
		return QueryOutput{}, err
	}
	next, _ := conv.CurrentQuestion()
	prompt := followUpText(conv.Step, next)
	return QueryOutput{Text: prompt, FollowUp: prompt, Step: conv.Step, Emergency: conv.Emergency}, nil
}

// finish claims the conversation at the remedy step, synthesizes the remedy
// and removes the state. The claim makes a concurrent duplicate message lose
// with a conflict instead of producing a second remedy.
func (s *IntakeService) finish(ctx context.Context, conv domain.Conversation, out QueryOutput) (QueryOutput, error) {
	conv.Step = domain.StepRemedy
	if _, err := s.save(ctx, conv); err != nil {
		return QueryOutput{}, err
	}

	remedy, err := s.llm.Generate(ctx, s.remedyPrompt(conv))
	if delErr := s.store.Delete(ctx, conv.UserID); delErr != nil {
		s.logger.ErrorContext(ctx, "delete finished conversation", "user_id", conv.UserID, "err", delErr)
	}
	if err != nil {
		return QueryOutput{}, upstreamError("remedy_error", err)
	}
	remedy = strings.TrimSpace(remedy)

	s.record(ctx, conv, remedy)

	msg := remedyText(remedy)
	if out.Text != "" {
		msg = out.Text + "\n" + msg
	}
	out.Text = msg
	out.Remedy = remedy
	out.Step = domain.StepRemedy
	return out, nil
}

func (s *IntakeService) record(ctx context.Context, conv domain.Conversation, remedy string) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.Record(ctx, domain.Consultation{
		ID:        newUUID(),
		UserID:    conv.UserID,
		Symptom:   conv.Symptom,
		FollowUps: conv.FollowUps,
		Answers:   conv.Answers,
		Remedy:    remedy,
		Emergency: conv.Emergency,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "record consultation", "user_id", conv.UserID, "err", err)
	}
}

func (s *IntakeService) classify(ctx context.Context, p domain.Prompt) (bool, error) {
	raw, err := s.llm.Generate(ctx, p)
	if err != nil {
		return false, err
	}
	return parseYesNo(raw), nil
}

func (s *IntakeService) save(ctx context.Context, conv domain.Conversation) (domain.Conversation, error) {
	saved, err := s.store.Save(ctx, conv)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.Conversation{}, newError(ErrorConflict, "state_conflict", err)
		}
		return domain.Conversation{}, newError(ErrorInternal, "state_write_error", err)
	}
	return saved, nil
}

var newUUID = func() string {
	return uuid.NewString()
}
