package service

import (
	"context"
	"strings"
	"time"

	"ai-consultation-be/internal/dto"
	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/pkg/apperr"
	"ai-consultation-be/pkg/identity"
	"ai-consultation-be/pkg/llm"
	"ai-consultation-be/pkg/summary"
	"ai-consultation-be/pkg/upload"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	sourceNotes = "notes"
	sourcePDF   = "pdf"
	sourceImage = "image"
)

var tracer = otel.Tracer("ai-consultation-be/internal/service")

type IConsultationService interface {
	// Start validates the request and opens the upstream stream. Any error is
	// returned before a single byte has been relayed.
	Start(ctx context.Context, subject *identity.Subject, req *dto.ConsultationRequest) (*ConsultationSession, error)
	Model(subject *identity.Subject) string
}

type ConsultationOptions struct {
	Tiers       summary.TierSelector
	Precedence  summary.Precedence
	ImageMode   summary.ImageMode
	IdleTimeout time.Duration
	// KeepAlive is the silence after which Relay sends a heartbeat.
	KeepAlive time.Duration
	MaxTokens int
}

const (
	transcriptionMaxTokens   = 4096
	transcriptionTemperature = 0.2
)

type consultationService struct {
	provider         llm.LLMProvider
	normalizer       *upload.Normalizer
	publisherService IPublisherService
	logger           logger.ILogger
	opts             ConsultationOptions
}

func NewConsultationService(
	provider llm.LLMProvider,
	normalizer *upload.Normalizer,
	publisherService IPublisherService,
	logger logger.ILogger,
	opts ConsultationOptions,
) IConsultationService {
	return &consultationService{
		provider:         provider,
		normalizer:       normalizer,
		publisherService: publisherService,
		logger:           logger,
		opts:             opts,
	}
}

func (s *consultationService) Model(subject *identity.Subject) string {
	return s.opts.Tiers.Select(subject != nil && subject.Premium)
}

func (s *consultationService) Start(ctx context.Context, subject *identity.Subject, req *dto.ConsultationRequest) (*ConsultationSession, error) {
	model := s.Model(subject)
	ctx, span := tracer.Start(ctx, "ConsultationService.Start", trace.WithAttributes(
		attribute.String("llm.model", model),
	))
	fail := func(err error) (*ConsultationSession, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.PublicMessage(err))
		span.End()
		return nil, err
	}

	input := summary.Input{
		PatientName: req.PatientName,
		DateOfVisit: req.DateOfVisit,
		Notes:       req.Notes,
	}
	source := sourceNotes

	if strings.TrimSpace(req.FileBase64) != "" {
		data, err := s.normalizer.DecodeBase64(req.FileBase64)
		if err != nil {
			return fail(err)
		}
		payload, err := s.normalizer.Normalize(data, req.FileMime)
		if err != nil {
			return fail(err)
		}
		input.File = payload
		source = sourcePDF
		if payload.Kind == upload.KindImage {
			source = sourceImage
			if s.opts.ImageMode == summary.ImageModeTranscribe {
				text, err := s.transcribe(ctx, subject, payload)
				if err != nil {
					return fail(err)
				}
				input.File = &upload.Payload{Kind: upload.KindText, Text: text, MimeType: payload.MimeType, Size: payload.Size}
			}
		}
	} else if strings.TrimSpace(req.Notes) == "" {
		return fail(apperr.New(apperr.ErrValidation, "Either notes or a file is required"))
	}
	span.SetAttributes(attribute.String("consultation.source", source))

	opts := []llm.Option{llm.WithModel(model)}
	if s.opts.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(s.opts.MaxTokens))
	}

	stream, err := s.provider.ChatStream(ctx, summary.BuildMessages(input, s.opts.Precedence), opts...)
	if err != nil {
		s.logger.Error("CONSULTATION", "Upstream rejected stream", map[string]interface{}{
			"user_id": subjectID(subject),
			"model":   model,
			"error":   err.Error(),
		})
		s.publish(ctx, dto.ConsultationEvent{
			Type:       dto.EventConsultationFailed,
			UserId:     subjectID(subject),
			Model:      model,
			SourceKind: source,
			Outcome:    "upstream_unavailable",
		})
		return fail(apperr.Wrap(apperr.ErrDependencyUnavailable, "The summary service is currently unavailable", err))
	}

	s.logger.Info("CONSULTATION", "Stream opened", map[string]interface{}{
		"user_id":   subjectID(subject),
		"model":     model,
		"source":    source,
		"notes_len": len(req.Notes),
	})

	return &ConsultationSession{
		svc:    s,
		ctx:    ctx,
		span:   span,
		stream: stream,
		model:  model,
		source: source,
		userId: subjectID(subject),
	}, nil
}

// transcribe turns an image into text with the baseline model so the
// summary request carries no image.
func (s *consultationService) transcribe(ctx context.Context, subject *identity.Subject, img *upload.Payload) (string, error) {
	ctx, span := tracer.Start(ctx, "ConsultationService.transcribe")
	defer span.End()

	model := s.opts.Tiers.Select(false)
	text, err := s.provider.Chat(ctx, summary.TranscriptionMessages(img),
		llm.WithModel(model),
		llm.WithTemperature(transcriptionTemperature),
		llm.WithMaxTokens(transcriptionMaxTokens),
	)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("CONSULTATION", "Image transcription failed", map[string]interface{}{
			"user_id": subjectID(subject),
			"model":   model,
			"error":   err.Error(),
		})
		s.publish(ctx, dto.ConsultationEvent{
			Type:       dto.EventConsultationFailed,
			UserId:     subjectID(subject),
			Model:      model,
			SourceKind: sourceImage,
			Outcome:    "transcription_unavailable",
		})
		return "", apperr.Wrap(apperr.ErrDependencyUnavailable, "The summary service is currently unavailable", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.New(apperr.ErrValidation, "No readable text found in the image")
	}
	s.logger.Info("CONSULTATION", "Image transcribed", map[string]interface{}{
		"user_id":        subjectID(subject),
		"model":          model,
		"transcript_len": len(text),
	})
	return text, nil
}

func (s *consultationService) publish(ctx context.Context, event dto.ConsultationEvent) {
	if s.publisherService == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()
	if err := s.publisherService.Publish(ctx, event); err != nil {
		s.logger.Warn("CONSULTATION", "Failed to publish event", map[string]interface{}{
			"type":  event.Type,
			"error": err.Error(),
		})
	}
}

// ConsultationSession is an opened upstream stream waiting to be relayed.
type ConsultationSession struct {
	svc    *consultationService
	ctx    context.Context
	span   trace.Span
	stream llm.Stream
	model  string
	source string
	userId string
}

func (cs *ConsultationSession) Model() string {
	return cs.model
}

// Relay pumps every fragment to sink in order and reports how the stream
// ended. heartbeat, when set, is called while the upstream is silent. It must
// be called exactly once; the upstream is closed on return.
func (cs *ConsultationSession) Relay(sink summary.Sink, heartbeat func() error) summary.Outcome {
	defer cs.span.End()

	outcome := summary.Pump(cs.ctx, cs.stream, sink, summary.PumpOptions{
		Idle:      cs.svc.opts.IdleTimeout,
		KeepAlive: cs.svc.opts.KeepAlive,
		Heartbeat: heartbeat,
	})

	cs.span.SetAttributes(
		attribute.String("consultation.outcome", string(outcome.Status)),
		attribute.Int("consultation.chunks", outcome.Chunks),
	)
	details := map[string]interface{}{
		"user_id":     cs.userId,
		"model":       cs.model,
		"status":      string(outcome.Status),
		"chunks":      outcome.Chunks,
		"summary_len": len(outcome.Text),
	}

	eventType := dto.EventConsultationSummarized
	if outcome.Succeeded() {
		cs.svc.logger.Info("CONSULTATION", "Stream completed", details)
	} else {
		eventType = dto.EventConsultationFailed
		if outcome.Err != nil {
			details["error"] = outcome.Err.Error()
			cs.span.RecordError(outcome.Err)
		}
		cs.span.SetStatus(codes.Error, string(outcome.Status))
		cs.svc.logger.Warn("CONSULTATION", "Stream ended early", details)
	}

	cs.svc.publish(context.WithoutCancel(cs.ctx), dto.ConsultationEvent{
		Type:       eventType,
		UserId:     cs.userId,
		Model:      cs.model,
		SourceKind: cs.source,
		Outcome:    string(outcome.Status),
		Chunks:     outcome.Chunks,
		Chars:      len(outcome.Text),
	})
	return outcome
}

func subjectID(subject *identity.Subject) string {
	if subject == nil {
		return ""
	}
	return subject.ID
}
