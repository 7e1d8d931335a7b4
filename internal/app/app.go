// Package app builds the service graph from configuration. Every entrypoint
// under cmd/ goes through Build so the Lambda, the HTTP server and the upload
// tool share one wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"ambubot/internal/audit"
	"ambubot/internal/config"
	"ambubot/internal/domain"
	"ambubot/internal/integrations/llmproxy"
	"ambubot/internal/integrations/openai"
	"ambubot/internal/integrations/osm"
	"ambubot/internal/integrations/paramstore"
	"ambubot/internal/repository"
	"ambubot/internal/usecase"
)

// App is the wired service graph.
type App struct {
	Intake   *usecase.IntakeService
	Location *usecase.LocationService
	// Uploader is nil unless the llmproxy backend is configured.
	Uploader *llmproxy.Client
	Audit    *audit.SQLiteStore

	cfg    *config.Config
	logger *slog.Logger
}

// Build wires every component named by cfg. AWS configuration is only loaded
// when the DynamoDB state backend or an SSM key parameter is in use.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger}

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		c, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("app: load AWS config: %w", err)
		}
		awsCfg = &c
		return c, nil
	}

	store, err := buildStore(cfg.State, loadAWS)
	if err != nil {
		return nil, err
	}

	llm, err := a.buildLLM(cfg.LLM, loadAWS)
	if err != nil {
		return nil, err
	}

	opts := []usecase.IntakeOption{usecase.WithLogger(logger)}
	if cfg.Audit.Enabled {
		st, err := audit.Open(ctx, cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
		a.Audit = st
		opts = append(opts, usecase.WithRecorder(st))
	}

	a.Intake, err = usecase.NewIntakeService(llm, store, usecase.IntakeConfig{
		Model:            cfg.Intake.Model,
		RemedySessionID:  cfg.Intake.RemedySessionID,
		IntentCheck:      cfg.Intake.IntentCheck,
		RelevanceCheck:   cfg.Intake.RelevanceCheck,
		MaxMessageLength: cfg.Intake.MaxMessageLength,
		RAGThreshold:     cfg.Intake.RAGThreshold,
		RAGK:             cfg.Intake.RAGK,
	}, opts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Location, err = buildLocation(cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the audit database, if one was opened.
func (a *App) Close() error {
	if a.Audit == nil {
		return nil
	}
	return a.Audit.Close()
}

// UploadDocument sends the configured reference document to the LLM proxy
// under the remedy session.
func (a *App) UploadDocument(ctx context.Context, path string) error {
	if a.Uploader == nil {
		return errors.New("app: document upload needs the llmproxy backend")
	}
	doc, err := LoadDocument(path)
	if err != nil {
		return err
	}
	doc.Strategy = a.cfg.Document.Strategy
	doc.Description = a.cfg.Document.Description
	doc.SessionID = a.cfg.Intake.RemedySessionID
	if err := a.Uploader.Upload(ctx, doc); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "reference document uploaded", "file", doc.Filename, "session_id", doc.SessionID)
	return nil
}

// LoadDocument reads a file for upload. Files with a .txt or .md extension
// are sent as text, everything else as a file part.
func LoadDocument(path string) (domain.Document, error) {
	if strings.TrimSpace(path) == "" {
		return domain.Document{}, errors.New("app: document path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("app: read document: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".txt", ".md":
		return domain.Document{Text: string(data)}, nil
	}
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return domain.Document{Filename: filepath.Base(path), ContentType: contentType, Data: data}, nil
}

func buildStore(cfg config.StateConfig, loadAWS func() (aws.Config, error)) (usecase.ConversationStore, error) {
	switch cfg.Backend {
	case config.StateDynamoDB:
		awsCfg, err := loadAWS()
		if err != nil {
			return nil, err
		}
		return repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.Table, cfg.TTL)
	case config.StateMemory, "":
		return repository.NewMemoryStore(cfg.Capacity, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("app: unknown state backend %q", cfg.Backend)
	}
}

func (a *App) buildLLM(cfg config.LLMConfig, loadAWS func() (aws.Config, error)) (usecase.Generator, error) {
	switch cfg.Backend {
	case config.LLMOpenAI:
		var opts []openai.Option
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, openai.WithTimeout(cfg.Timeout))
		}
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, opts...)

	case config.LLMProxy, "":
		keys, err := keySource(cfg, loadAWS)
		if err != nil {
			return nil, err
		}
		var opts []llmproxy.Option
		if cfg.Timeout > 0 {
			opts = append(opts, llmproxy.WithTimeout(cfg.Timeout))
		}
		c, err := llmproxy.NewClient(cfg.Endpoint, keys, opts...)
		if err != nil {
			return nil, err
		}
		a.Uploader = c
		return c, nil

	default:
		return nil, fmt.Errorf("app: unknown llm backend %q", cfg.Backend)
	}
}

// keySource prefers an inline key over the SSM parameter.
func keySource(cfg config.LLMConfig, loadAWS func() (aws.Config, error)) (llmproxy.KeySource, error) {
	if cfg.APIKey != "" {
		return llmproxy.StaticKey(cfg.APIKey), nil
	}
	awsCfg, err := loadAWS()
	if err != nil {
		return nil, err
	}
	ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}
	return paramstore.NewTokenSource(ps, cfg.APIKeyParam)
}

func buildLocation(cfg *config.Config, logger *slog.Logger) (*usecase.LocationService, error) {
	// Nominatim and Overpass share one limiter so the bot stays inside the
	// OSM usage policy as a whole.
	opts := []osm.Option{
		osm.WithLimiter(osm.NewLimiter(cfg.Geo.RequestsPerSecond)),
		osm.WithUserAgent(cfg.Geo.UserAgent),
	}
	if cfg.Geo.Timeout > 0 {
		opts = append(opts, osm.WithTimeout(cfg.Geo.Timeout))
	}
	geocoder, err := osm.NewGeocoder(cfg.Geo.NominatimURL, opts...)
	if err != nil {
		return nil, err
	}
	finder, err := osm.NewHospitalFinder(cfg.Geo.OverpassURL, opts...)
	if err != nil {
		return nil, err
	}
	return usecase.NewLocationService(geocoder, finder, usecase.LocationConfig{
		RadiusM:          cfg.Geo.RadiusM,
		MaxResults:       cfg.Geo.MaxResults,
		MaxMessageLength: cfg.Intake.MaxMessageLength,
	}, logger)
}
