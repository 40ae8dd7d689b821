package app

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/ent0n29/tgvoicechat/internal/config"
	"github.com/ent0n29/tgvoicechat/internal/httpapi"
	"github.com/ent0n29/tgvoicechat/internal/imagegen"
	"github.com/ent0n29/tgvoicechat/internal/llm"
	"github.com/ent0n29/tgvoicechat/internal/memory"
	"github.com/ent0n29/tgvoicechat/internal/observability"
	"github.com/ent0n29/tgvoicechat/internal/relay"
	"github.com/ent0n29/tgvoicechat/internal/session"
	"github.com/ent0n29/tgvoicechat/internal/telegram"
	"github.com/ent0n29/tgvoicechat/internal/workersai"
)

type VoiceInfo struct {
	Provider string
	Detail   string
}

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Orchestrator *relay.Orchestrator
	Tracker      *session.Tracker
	Telegram     *telegram.Client
	Metrics      *observability.Metrics
	StoreMode    string
	Voice        VoiceInfo

	// Cleanup should be called on shutdown to release the history store.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	kv, err := memory.NewKV(ctx, cfg.RedisURL, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("history store init failed: %w", err)
	}
	storeMode := memory.Mode(kv)

	ai := workersai.NewClient(workersai.Config{
		AccountID:  cfg.WorkersAIAccountID,
		APIToken:   cfg.WorkersAIToken,
		BaseURL:    cfg.WorkersAIBaseURL,
		HTTPClient: httpClient,
	})

	voiceSetup, err := resolveVoice(cfg, ai, httpClient)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	chat := llm.NewOpenAIClient(ai.OpenAIBaseURL(), ai.APIToken(), httpClient)
	generator := llm.NewGenerator(chat, cfg.ChatModel)
	images := imagegen.NewGenerator(ai, cfg.ImageModel)

	tg, err := telegram.NewClient(telegram.Config{
		Token:      cfg.TelegramToken,
		BaseURL:    cfg.TelegramBaseURL,
		HTTPClient: httpClient,
	})
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	tracker := session.NewTracker(cfg.SessionIdleTimeout)
	tracker.SetExpireHook(func(c session.Chat) {
		log.Printf("chat=%d idle, dropping tracker state after %d turns (%d overlapping)", c.ChatID, c.TurnCount, c.OverlapCount)
	})

	orchestrator := relay.NewOrchestrator(
		relay.Config{EchoTranscription: cfg.EchoTranscription},
		memory.NewHistoryStore(kv),
		voiceSetup.transcriber,
		generator,
		voiceSetup.synthesizer,
		images,
		tg,
		tracker,
		metrics,
	)

	api := httpapi.New(cfg, orchestrator, tg, metrics, httpapi.Status{
		TTSProvider: string(voiceSetup.provider),
		StoreMode:   storeMode,
		ActiveTurns: tracker.ActiveTurns,
	})

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Orchestrator: orchestrator,
		Tracker:      tracker,
		Telegram:     tg,
		Metrics:      metrics,
		StoreMode:    storeMode,
		Voice: VoiceInfo{
			Provider: string(voiceSetup.provider),
			Detail:   voiceSetup.detail,
		},
		Cleanup: kv.Close,
	}, nil
}
