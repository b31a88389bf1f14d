package api

import (
	"context"
	"net/http"

	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/synth"
)

// VoiceCatalog lists the voices of each synthesis stage.
// *synth.Orchestrator satisfies it.
type VoiceCatalog interface {
	Voices(ctx context.Context) []synth.StageVoices
}

var _ VoiceCatalog = (*synth.Orchestrator)(nil)

type voiceJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
	Gender   string `json:"gender,omitempty"`
}

type stageVoicesJSON struct {
	Stage      string            `json:"stage"`
	Reach      string            `json:"reach"`
	Configured []synth.VoiceRule `json:"configured"`
	Available  []voiceJSON       `json:"available,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	catalog, ok := s.synthesizer.(VoiceCatalog)
	if !ok {
		writeJSON(w, http.StatusNotFound, ttsError{Code: "NO_CATALOG", Message: "voice listing is not available"})
		return
	}
	stages := catalog.Voices(r.Context())
	out := make([]stageVoicesJSON, 0, len(stages))
	for _, sv := range stages {
		j := stageVoicesJSON{
			Stage:      sv.Stage,
			Reach:      sv.Reach.String(),
			Configured: sv.Configured,
		}
		if j.Configured == nil {
			j.Configured = []synth.VoiceRule{}
		}
		for _, v := range sv.Available {
			j.Available = append(j.Available, voiceJSON{ID: v.ID, Name: v.Name, Language: v.Language, Gender: string(v.Gender)})
		}
		if sv.ListErr != nil {
			j.Error = "voice listing failed"
			observe.Logger(r.Context()).Warn("api: list voices", "stage", sv.Stage, "err", sv.ListErr)
		}
		out = append(out, j)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "stages": out})
}
