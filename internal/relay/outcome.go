package relay

import "time"

type Stage string

const (
	StageHistoryLoad   Stage = "history_load"
	StageResolveFile   Stage = "resolve_file"
	StageDownload      Stage = "download"
	StageTranscribe    Stage = "transcribe"
	StageReply         Stage = "reply"
	StageSendText      Stage = "send_text"
	StageHistoryAppend Stage = "history_append"
	StageImagePrompt   Stage = "image_prompt"
	StageVoiceSynth    Stage = "voice_synth"
	StageSendVoice     Stage = "send_voice"
	StageImageSynth    Stage = "image_synth"
	StageSendImage     Stage = "send_image"
)

// Status summarizes a turn. Degraded turns ran to the end with at least one
// failed stage; failed turns stopped at a stage the rest depends on.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusDegraded  Status = "degraded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

type StageResult struct {
	Stage    Stage
	Err      error
	Skipped  bool
	Duration time.Duration
}

// Outcome is the per-stage record of one turn. HandleUpdate always returns
// one; the webhook caller only ever sees an acknowledgement.
type Outcome struct {
	TurnID      string
	ChatID      int64
	Status      Status
	Overlapping bool
	Stages      []StageResult
	Err         error
}

// Stage returns the recorded result of a stage, if it was reached.
func (o Outcome) Stage(name Stage) (StageResult, bool) {
	for _, s := range o.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Failed lists the stages that ran and returned an error.
func (o Outcome) Failed() []Stage {
	var out []Stage
	for _, s := range o.Stages {
		if s.Err != nil {
			out = append(out, s.Stage)
		}
	}
	return out
}

func (o *Outcome) record(r StageResult) {
	o.Stages = append(o.Stages, r)
}
