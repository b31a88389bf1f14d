package synth

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/speakeasy/pkg/provider/tts"
)

// VoiceRule maps request attributes to a backend voice. Empty fields match
// anything. Language matches by prefix, so "en" covers "en-IN".
type VoiceRule struct {
	Language string `yaml:"language" json:"language,omitempty"`
	Gender   string `yaml:"gender" json:"gender,omitempty"`
	Accent   string `yaml:"accent" json:"accent,omitempty"`
	Voice    string `yaml:"voice" json:"voice"`
}

func (r VoiceRule) matches(lang string, g tts.Gender, accent string) bool {
	if r.Language != "" && !strings.HasPrefix(strings.ToLower(lang), strings.ToLower(r.Language)) {
		return false
	}
	if r.Gender != "" && tts.ParseGender(r.Gender) != g {
		return false
	}
	if r.Accent != "" && !strings.EqualFold(r.Accent, accent) {
		return false
	}
	return true
}

// VoiceTable holds the rules of each stage, keyed by stage name. Rules are
// checked in order and the first match wins.
type VoiceTable map[string][]VoiceRule

// DefaultVoices returns the built-in table: Indian English neural voices for
// Indian accents and Hindi, US English otherwise.
func DefaultVoices() VoiceTable {
	return VoiceTable{
		"edge": {
			{Accent: "indian", Gender: "male", Voice: "en-IN-PrabhatNeural"},
			{Accent: "indian", Voice: "en-IN-NeerjaNeural"},
			{Language: "hi", Gender: "male", Voice: "en-IN-PrabhatNeural"},
			{Language: "hi", Voice: "en-IN-NeerjaNeural"},
			{Language: "en-in", Gender: "male", Voice: "en-IN-PrabhatNeural"},
			{Language: "en-in", Voice: "en-IN-NeerjaNeural"},
			{Gender: "male", Voice: "en-US-GuyNeural"},
			{Voice: "en-US-JennyNeural"},
		},
	}
}

// voiceProfile resolves the voice one stage should use for req. An explicit
// voice wins when it targets the stage, either as "stage:voice" or as a bare
// id the stage recognises. Otherwise the table is consulted, and failing
// that the backend picks its default from language and gender.
func (o *Orchestrator) voiceProfile(st *stage, req Request) tts.VoiceProfile {
	vp := tts.VoiceProfile{
		Provider:    st.name,
		Language:    req.languageTag(),
		Gender:      req.Gender,
		SpeedFactor: req.Speed,
	}

	if v := strings.TrimSpace(req.Voice); v != "" {
		if name, id, ok := strings.Cut(v, ":"); ok {
			if strings.EqualFold(name, st.name) {
				vp.ID = id
				return vp
			}
		} else if st.acceptsVoice != nil && st.acceptsVoice(v) {
			vp.ID = v
			return vp
		}
	}

	voices := o.voices.Load()
	for _, r := range (*voices)[st.name] {
		if r.matches(vp.Language, req.Gender, req.Accent) {
			vp.ID = r.Voice
			return vp
		}
	}
	return vp
}

// StageVoices describes the voices of one stage: the rules configured for it
// and, when the backend can enumerate them, the voices it offers.
type StageVoices struct {
	Stage      string
	Reach      Reach
	Configured []VoiceRule
	Available  []tts.VoiceProfile
	// ListErr is set when the backend failed to enumerate its voices.
	ListErr error
}

// Voices returns the voice catalogue of every stage in priority order.
// Backends are asked concurrently and a failed listing only affects its own
// entry.
func (o *Orchestrator) Voices(ctx context.Context) []StageVoices {
	table := *o.voices.Load()
	out := make([]StageVoices, len(o.stages))

	var g errgroup.Group
	for i, st := range o.stages {
		out[i] = StageVoices{Stage: st.name, Reach: st.reach, Configured: table[st.name]}
		lister, ok := st.provider.(tts.VoiceLister)
		if !ok {
			continue
		}
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
			defer cancel()
			out[i].Available, out[i].ListErr = lister.ListVoices(lctx)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
