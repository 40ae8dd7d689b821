// Package relay runs one chat turn end to end: normalize the input to text,
// reply, then fan out to voice and image deliveries.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ent0n29/tgvoicechat/internal/llm"
	"github.com/ent0n29/tgvoicechat/internal/memory"
	"github.com/ent0n29/tgvoicechat/internal/observability"
	"github.com/ent0n29/tgvoicechat/internal/policy"
	"github.com/ent0n29/tgvoicechat/internal/reliability"
	"github.com/ent0n29/tgvoicechat/internal/session"
	"github.com/ent0n29/tgvoicechat/internal/telegram"
	"github.com/ent0n29/tgvoicechat/internal/voice"
	"github.com/ent0n29/tgvoicechat/internal/workersai"
)

type History interface {
	Get(ctx context.Context, chatID int64) ([]memory.Turn, error)
	Append(ctx context.Context, chatID int64, turns ...memory.Turn) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type Generator interface {
	Generate(ctx context.Context, input string, history []memory.Turn, mode llm.Mode) (string, error)
}

type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Platform is the messaging surface a turn reads from and delivers to.
type Platform interface {
	ResolveFileURL(ctx context.Context, fileID string) (string, error)
	Download(ctx context.Context, fileURL string) ([]byte, error)
	SendText(ctx context.Context, chatID int64, text string) error
	SendVoice(ctx context.Context, chatID int64, audio voice.AudioPayload) error
	SendImage(ctx context.Context, chatID int64, imageBase64 string) error
}

type Config struct {
	// EchoTranscription prefixes voice-turn replies with the recognized text.
	EchoTranscription bool
}

type Orchestrator struct {
	cfg         Config
	history     History
	transcriber Transcriber
	generator   Generator
	synth       voice.Synthesizer
	images      ImageGenerator
	platform    Platform
	tracker     *session.Tracker
	metrics     *observability.Metrics
}

func NewOrchestrator(
	cfg Config,
	history History,
	transcriber Transcriber,
	generator Generator,
	synth voice.Synthesizer,
	images ImageGenerator,
	platform Platform,
	tracker *session.Tracker,
	metrics *observability.Metrics,
) *Orchestrator {
	if tracker == nil {
		tracker = session.NewTracker(0)
	}
	return &Orchestrator{
		cfg:         cfg,
		history:     history,
		transcriber: transcriber,
		generator:   generator,
		synth:       synth,
		images:      images,
		platform:    platform,
		tracker:     tracker,
		metrics:     metrics,
	}
}

// HandleUpdate processes one webhook update. It never returns an error and
// never panics; everything that went wrong is in the Outcome.
func (o *Orchestrator) HandleUpdate(ctx context.Context, update telegram.Update) (out Outcome) {
	msg := update.Message
	if msg == nil || (msg.Voice == nil && msg.Text == "") {
		return Outcome{Status: StatusSkipped}
	}

	// Provider calls outlive the webhook request that triggered them.
	ctx = context.WithoutCancel(ctx)
	chatID := msg.Chat.ID
	turnID, overlapping := o.tracker.Begin(chatID)
	defer o.tracker.End(chatID, turnID)

	out = Outcome{TurnID: turnID, ChatID: chatID, Overlapping: overlapping}
	if overlapping {
		log.Printf("turn=%s chat=%d: another turn for this chat is still running", turnID, chatID)
		o.metrics.ObserveHistoryEvent("overlap")
	}

	start := time.Now()
	if o.metrics != nil {
		o.metrics.ActiveTurns.Inc()
		defer o.metrics.ActiveTurns.Dec()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("turn=%s chat=%d: recovered panic: %v", turnID, chatID, r)
			out.Status = StatusFailed
			out.Err = fmt.Errorf("panic: %v", r)
		}
		o.metrics.ObserveTurn(string(out.Status), time.Since(start))
	}()

	o.run(ctx, msg, &out)
	return out
}

func (o *Orchestrator) run(ctx context.Context, msg *telegram.Message, out *Outcome) {
	chatID := msg.Chat.ID

	var history []memory.Turn
	o.stage(out, StageHistoryLoad, func() error {
		var err error
		history, err = o.history.Get(ctx, chatID)
		return err
	})
	if r, _ := out.Stage(StageHistoryLoad); r.Err != nil {
		o.metrics.ObserveHistoryEvent("degraded")
		history = []memory.Turn{}
	}

	input := msg.Text
	isVoice := msg.Voice != nil
	if isVoice {
		text, err := o.transcribe(ctx, msg.Voice.FileID, out)
		if err != nil {
			o.fail(out, err)
			return
		}
		input = text
	}

	var reply string
	if err := o.stage(out, StageReply, func() error {
		var err error
		reply, err = o.generator.Generate(ctx, input, history, llm.ModeReply)
		return err
	}); err != nil {
		o.fail(out, err)
		return
	}

	text := reply
	if isVoice && o.cfg.EchoTranscription {
		text = "Your Transcription: " + input + "  \n " + reply
	}
	o.deliver(out, StageSendText, "text", func() error {
		return o.platform.SendText(ctx, chatID, text)
	})

	if o.stage(out, StageHistoryAppend, func() error {
		return o.history.Append(ctx, chatID,
			memory.Turn{Role: memory.RoleUser, Text: input},
			memory.Turn{Role: memory.RoleBot, Text: reply},
		)
	}) == nil {
		o.metrics.ObserveHistoryEvent("appended")
	}

	// Fork/join #1: image prompt and voice synthesis.
	var (
		wg            sync.WaitGroup
		imagePrompt   string
		audio         voice.AudioPayload
		promptResult  StageResult
		voiceResult   StageResult
		imageBase64   string
		sendVoiceRes  StageResult
		imageSynthRes StageResult
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		promptResult = o.timed(StageImagePrompt, func() error {
			var err error
			imagePrompt, err = o.generator.Generate(ctx, input, history, llm.ModeImagePrompt)
			return err
		})
	}()
	go func() {
		defer wg.Done()
		voiceResult = o.timed(StageVoiceSynth, func() error {
			var err error
			audio, err = o.synth.Synthesize(ctx, voice.SpeakableText(reply))
			return err
		})
	}()
	wg.Wait()
	o.finish(out, promptResult, "workersai")
	o.finish(out, voiceResult, string(o.synth.Name()))

	// Fork/join #2: voice upload and image synthesis, each only when its
	// input from join #1 exists.
	sendVoiceRes = StageResult{Stage: StageSendVoice, Skipped: voiceResult.Err != nil}
	imageSynthRes = StageResult{Stage: StageImageSynth, Skipped: promptResult.Err != nil}
	if !sendVoiceRes.Skipped {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sendVoiceRes = o.timed(StageSendVoice, func() error {
				return o.platform.SendVoice(ctx, chatID, audio)
			})
		}()
	}
	if !imageSynthRes.Skipped {
		wg.Add(1)
		go func() {
			defer wg.Done()
			imageSynthRes = o.timed(StageImageSynth, func() error {
				var err error
				imageBase64, err = o.images.Generate(ctx, imagePrompt)
				return err
			})
		}()
	}
	wg.Wait()
	o.finishDelivery(out, sendVoiceRes, "voice")
	o.finish(out, imageSynthRes, "workersai")

	if imageSynthRes.Skipped || imageSynthRes.Err != nil {
		out.record(StageResult{Stage: StageSendImage, Skipped: true})
	} else {
		o.deliver(out, StageSendImage, "image", func() error {
			return o.platform.SendImage(ctx, chatID, imageBase64)
		})
	}

	out.Status = StatusCompleted
	if len(out.Failed()) > 0 {
		out.Status = StatusDegraded
	}
}

func (o *Orchestrator) transcribe(ctx context.Context, fileID string, out *Outcome) (string, error) {
	var fileURL string
	if err := o.stage(out, StageResolveFile, func() error {
		var err error
		fileURL, err = o.platform.ResolveFileURL(ctx, fileID)
		return err
	}); err != nil {
		return "", err
	}
	var data []byte
	if err := o.stage(out, StageDownload, func() error {
		var err error
		data, err = o.platform.Download(ctx, fileURL)
		return err
	}); err != nil {
		return "", err
	}
	var text string
	err := o.stage(out, StageTranscribe, func() error {
		var err error
		text, err = o.transcriber.Transcribe(ctx, data)
		return err
	})
	return text, err
}

// stage runs fn in the calling goroutine and records its result.
func (o *Orchestrator) stage(out *Outcome, name Stage, fn func() error) error {
	r := o.timed(name, fn)
	o.finish(out, r, providerFor(name))
	return r.Err
}

func (o *Orchestrator) deliver(out *Outcome, name Stage, kind string, fn func() error) {
	o.finishDelivery(out, o.timed(name, fn), kind)
}

// timed also turns a panic into the stage error, so branches running on
// their own goroutines cannot take the process down.
func (o *Orchestrator) timed(name Stage, fn func() error) (r StageResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.Err = fmt.Errorf("%s panicked: %v", name, p)
		}
		r.Stage = name
		r.Duration = time.Since(start)
	}()
	return StageResult{Err: fn()}
}

func (o *Orchestrator) finish(out *Outcome, r StageResult, provider string) {
	out.record(r)
	if r.Skipped {
		return
	}
	o.metrics.ObserveTurnStage(string(r.Stage), r.Duration)
	if r.Err == nil {
		return
	}
	msg := policy.Redact(r.Err.Error())
	var tgErr *telegram.APIError
	if errors.As(r.Err, &tgErr) && tgErr.Retryable() {
		msg += " (transient)"
	}
	log.Printf("turn=%s chat=%d stage=%s: %s", out.TurnID, out.ChatID, r.Stage, msg)
	o.metrics.ObserveStageError(string(r.Stage))
	if provider != "" {
		o.metrics.ObserveProviderError(provider, errorCode(r.Err))
	}
}

func (o *Orchestrator) finishDelivery(out *Outcome, r StageResult, kind string) {
	o.finish(out, r, "telegram")
	if !r.Skipped {
		o.metrics.ObserveDelivery(kind, r.Err)
	}
}

func (o *Orchestrator) fail(out *Outcome, err error) {
	out.Status = StatusFailed
	out.Err = err
}

func providerFor(stage Stage) string {
	switch stage {
	case StageResolveFile, StageDownload, StageSendText, StageSendVoice, StageSendImage:
		return "telegram"
	case StageTranscribe, StageReply, StageImagePrompt, StageImageSynth:
		return "workersai"
	default:
		return ""
	}
}

// errorCode buckets an error by the HTTP status its transport reported.
func errorCode(err error) string {
	var tgErr *telegram.APIError
	if errors.As(err, &tgErr) {
		return reliability.StatusClass(tgErr.Status)
	}
	var aiErr *workersai.APIError
	if errors.As(err, &aiErr) {
		return reliability.StatusClass(aiErr.Status)
	}
	switch {
	case errors.Is(err, voice.ErrVoiceGeneration):
		return "voice_generation"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
