package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/speakeasy/internal/assess"
	"github.com/MrWong99/speakeasy/internal/assess/feedback"
	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/practice"
)

// CodeServerError is returned for failures outside the input taxonomy.
const CodeServerError = "SERVER_ERROR"

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to disk.
const multipartMemory = 8 << 20

type mismatch struct {
	Pos        int     `json:"position"`
	Expected   string  `json:"expected"`
	Spoken     string  `json:"spoken"`
	Similarity float64 `json:"similarity"`
}

type analysis struct {
	Status             assess.Status `json:"status"`
	WordAccuracy       float64       `json:"word_accuracy"`
	SentenceSimilarity float64       `json:"sentence_similarity"`
	TotalWords         int           `json:"total_words"`
	CorrectWords       int           `json:"correct_words"`
	IncorrectWords     int           `json:"incorrect_words"`
	Mismatches         []mismatch    `json:"mismatches"`
}

type analysisResponse struct {
	OK            bool                  `json:"ok"`
	Status        assess.Status         `json:"status"`
	Transcription string                `json:"transcription"`
	ExpectedText  string                `json:"expected_text"`
	Failure       assess.Failure        `json:"transcription_failure,omitempty"`
	Analysis      analysis              `json:"analysis"`
	Corrections   []feedback.Correction `json:"corrections"`
	Feedback      string                `json:"feedback"`
	Encouragement string                `json:"encouragement"`
}

func newAnalysisResponse(a practice.Assessment) analysisResponse {
	res := a.Result
	mm := make([]mismatch, 0)
	for _, c := range res.Mismatches() {
		mm = append(mm, mismatch{
			Pos:        c.Pos,
			Expected:   c.Expected,
			Spoken:     c.Spoken,
			Similarity: feedback.Percent(c.Similarity),
		})
	}
	corrections := a.Feedback.Corrections
	if corrections == nil {
		corrections = []feedback.Correction{}
	}
	return analysisResponse{
		OK:            true,
		Status:        res.Status,
		Transcription: res.Transcript,
		ExpectedText:  res.Reference,
		Failure:       res.Failure,
		Analysis: analysis{
			Status:             res.Status,
			WordAccuracy:       res.WordAccuracy,
			SentenceSimilarity: feedback.Percent(res.SentenceSimilarity),
			TotalWords:         res.ExpectedWords,
			CorrectWords:       res.Matches,
			IncorrectWords:     res.ExpectedWords - res.Matches,
			Mismatches:         mm,
		},
		Corrections:   corrections,
		Feedback:      res.Feedback,
		Encouragement: res.Encouragement,
	}
}

func (s *Server) handleAnalyzeSpeech(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.assessor.MaxUploadBytes()+multipartMemory)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			respondError(w, http.StatusRequestEntityTooLarge, practice.CodeTooLarge, "audio upload is too large")
			return
		}
		respondError(w, http.StatusBadRequest, practice.CodeNoAudio, "no audio uploaded")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, practice.CodeNoAudio, "no audio uploaded")
		return
	}
	defer file.Close()

	statement, _ := strconv.Atoi(r.FormValue("statement"))
	up := practice.Upload{
		Audio:        file,
		Filename:     header.Filename,
		ExpectedText: strings.TrimSpace(r.FormValue("expected_text")),
		Language:     r.FormValue("language"),
		UserID:       r.FormValue("user_id"),
		Day:          r.FormValue("day"),
		Statement:    statement,
	}

	a, err := s.assessor.Assess(ctx, up)
	if err != nil {
		s.respondAssessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAnalysisResponse(a))
}

type textRequest struct {
	TranscribedText string `json:"transcribed_text"`
	ExpectedText    string `json:"expected_text"`
	Language        string `json:"language"`
}

func (s *Server) handleAnalyzeText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_JSON", "request body must be a JSON object")
		return
	}

	a, err := s.assessor.AssessText(r.Context(), req.ExpectedText, req.TranscribedText, req.Language)
	if err != nil {
		s.respondAssessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAnalysisResponse(a))
}

func (s *Server) respondAssessError(w http.ResponseWriter, r *http.Request, err error) {
	var ie *practice.InputError
	if errors.As(err, &ie) {
		status := http.StatusBadRequest
		if ie.Code == practice.CodeTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		respondError(w, status, ie.Code, ie.Message)
		return
	}
	observe.Logger(r.Context()).Error("api: assessment failed", "err", err)
	respondError(w, http.StatusInternalServerError, CodeServerError, "analysis failed, please try again")
}
