// Package mcpserver exposes the practice core as Model Context Protocol
// tools so assistants can score a learner's sentence or speak a prompt.
//
// Tools:
//
//   - assess_pronunciation: compare a transcribed utterance with its target
//     sentence.
//   - synthesize_speech: render text through the synthesis fallback chain and
//     return the audio inline.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"os"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/practice"
	"github.com/MrWong99/speakeasy/internal/synth"
	"github.com/MrWong99/speakeasy/pkg/provider/tts"
)

// Tool names.
const (
	ToolAssess     = "assess_pronunciation"
	ToolSynthesize = "synthesize_speech"
)

// Assessor scores an already transcribed utterance.
type Assessor interface {
	AssessText(ctx context.Context, expected, spoken, language string) (practice.Assessment, error)
}

// Synthesizer renders text to an audio file.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synth.Request) (synth.Result, error)
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics records tool calls.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server is an MCP server with the practice tools registered.
type Server struct {
	mcp         *mcpsdk.Server
	assessor    Assessor
	synthesizer Synthesizer
	metrics     *observe.Metrics
}

// New builds the server. A nil dependency leaves its tool unregistered.
func New(version string, a Assessor, s Synthesizer, opts ...Option) *Server {
	srv := &Server{
		mcp: mcpsdk.NewServer(&mcpsdk.Implementation{
			Name:    "speakeasy",
			Version: version,
		}, nil),
		assessor:    a,
		synthesizer: s,
	}
	for _, o := range opts {
		o(srv)
	}

	if a != nil {
		mcpsdk.AddTool(srv.mcp, &mcpsdk.Tool{
			Name:        ToolAssess,
			Description: "Score how closely a learner's transcribed speech matches the sentence they were asked to say. Returns word accuracy, per-word corrections and feedback.",
		}, srv.handleAssess)
	}
	if s != nil {
		mcpsdk.AddTool(srv.mcp, &mcpsdk.Tool{
			Name:        ToolSynthesize,
			Description: "Speak text aloud with the configured voices, falling back across backends. Returns the audio inline.",
		}, srv.handleSynthesize)
	}
	return srv
}

// MCP returns the underlying SDK server, for callers that bring their own
// transport.
func (s *Server) MCP() *mcpsdk.Server { return s.mcp }

// Run serves the tools over stdin/stdout until ctx is cancelled or the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	if err := s.mcp.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcpserver: %w", err)
	}
	return nil
}

// AssessArgs are the inputs of assess_pronunciation.
type AssessArgs struct {
	ExpectedText    string `json:"expected_text" jsonschema:"the sentence the learner was asked to say"`
	TranscribedText string `json:"transcribed_text" jsonschema:"what the learner actually said, as text"`
	Language        string `json:"language,omitempty" jsonschema:"BCP-47 language tag of the sentence, e.g. en-IN"`
}

// AssessCorrection is one word that needs work.
type AssessCorrection struct {
	Position int     `json:"position"`
	Expected string  `json:"expected"`
	Spoken   string  `json:"spoken"`
	Kind     string  `json:"kind"`
	Score    float64 `json:"similarity"`
	Tip      string  `json:"tip,omitempty"`
}

// AssessOutput is the structured result of assess_pronunciation.
type AssessOutput struct {
	Status             string             `json:"status"`
	WordAccuracy       float64            `json:"word_accuracy"`
	SentenceSimilarity float64            `json:"sentence_similarity"`
	Corrections        []AssessCorrection `json:"corrections"`
	Feedback           string             `json:"feedback"`
	Encouragement      string             `json:"encouragement"`
}

func (s *Server) handleAssess(ctx context.Context, _ *mcpsdk.CallToolRequest, args AssessArgs) (*mcpsdk.CallToolResult, AssessOutput, error) {
	a, err := s.assessor.AssessText(ctx, args.ExpectedText, args.TranscribedText, args.Language)
	if err != nil {
		s.record(ctx, ToolAssess, "error")
		return nil, AssessOutput{}, err
	}
	s.record(ctx, ToolAssess, "ok")

	res := a.Result
	out := AssessOutput{
		Status:             string(res.Status),
		WordAccuracy:       res.WordAccuracy,
		SentenceSimilarity: res.SentenceSimilarity * 100,
		Corrections:        make([]AssessCorrection, 0, len(a.Feedback.Corrections)),
		Feedback:           res.Feedback,
		Encouragement:      res.Encouragement,
	}
	for _, c := range a.Feedback.Corrections {
		out.Corrections = append(out.Corrections, AssessCorrection{
			Position: c.Pos,
			Expected: c.Expected,
			Spoken:   c.Spoken,
			Kind:     string(c.Class),
			Score:    c.Similarity,
			Tip:      c.Tip,
		})
	}

	summary := fmt.Sprintf("%s: %.1f%% word accuracy. %s", out.Status, out.WordAccuracy, out.Feedback)
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: summary}},
	}, out, nil
}

// SynthesizeArgs are the inputs of synthesize_speech.
type SynthesizeArgs struct {
	Text     string  `json:"text" jsonschema:"the text to speak"`
	Gender   string  `json:"gender,omitempty" jsonschema:"male or female, default female"`
	Language string  `json:"language,omitempty" jsonschema:"BCP-47 tag or hinglish, default en"`
	Accent   string  `json:"accent,omitempty" jsonschema:"accent hint, e.g. indian"`
	Voice    string  `json:"voice,omitempty" jsonschema:"explicit voice, either backend:id or a bare backend voice id"`
	Mode     string  `json:"mode,omitempty" jsonschema:"auto, online or offline"`
	Speed    float64 `json:"speed,omitempty" jsonschema:"speaking rate factor, 1 is normal"`
}

// SynthesizeOutput describes the returned audio.
type SynthesizeOutput struct {
	Backend  string `json:"backend"`
	MIMEType string `json:"mime_type"`
	Bytes    int    `json:"bytes"`
}

func (s *Server) handleSynthesize(ctx context.Context, _ *mcpsdk.CallToolRequest, args SynthesizeArgs) (*mcpsdk.CallToolResult, SynthesizeOutput, error) {
	mode, err := synth.ParseMode(args.Mode)
	if err != nil {
		s.record(ctx, ToolSynthesize, "error")
		return nil, SynthesizeOutput{}, err
	}

	res, err := s.synthesizer.Synthesize(ctx, synth.Request{
		Text:      args.Text,
		Gender:    tts.ParseGender(args.Gender),
		Language:  args.Language,
		Accent:    args.Accent,
		Voice:     args.Voice,
		Mode:      mode,
		Speed:     args.Speed,
		SingleUse: true,
	})
	if err != nil {
		s.record(ctx, ToolSynthesize, "error")
		if errors.Is(err, tts.ErrEmptyText) {
			return nil, SynthesizeOutput{}, err
		}
		f := synth.Describe(err, args.Language)
		return nil, SynthesizeOutput{}, fmt.Errorf("%s: %s %s", f.Code, f.Message, f.SuggestedAction)
	}
	defer func() {
		if err := res.Remove(); err != nil {
			observe.Logger(ctx).Warn("mcpserver: remove audio", "err", err)
		}
	}()

	data, err := os.ReadFile(res.Path)
	if err != nil {
		s.record(ctx, ToolSynthesize, "error")
		return nil, SynthesizeOutput{}, fmt.Errorf("mcpserver: read audio: %w", err)
	}
	s.record(ctx, ToolSynthesize, "ok")

	out := SynthesizeOutput{Backend: res.Backend, MIMEType: res.Format.MIMEType(), Bytes: len(data)}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.AudioContent{Data: data, MIMEType: out.MIMEType}},
	}, out, nil
}

func (s *Server) record(ctx context.Context, tool, status string) {
	if s.metrics != nil {
		s.metrics.RecordToolCall(ctx, tool, status)
	}
}
