// Package server exposes FASTA parsing and MIDI rendering over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/genomidi/midi"
	"github.com/genomidi/midi/arrange"
	"github.com/genomidi/midi/config"
	"github.com/genomidi/midi/dna"
	"github.com/genomidi/midi/theme"
)

// Server handles the conversion API.
type Server struct {
	cfg    *config.Config
	logger *log.Logger
	mux    *http.ServeMux
}

// New returns a Server using cfg for limits and default music settings.
func New(cfg *config.Config, logger *log.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("/api/parse-fasta", s.post(s.handleParseFASTA))
	s.mux.HandleFunc("/api/sequence-to-midi", s.post(s.handleSequenceToMIDI))
	s.mux.HandleFunc("/api/themes", s.handleThemes)
	return s
}

// Handler returns the server's routes with CORS headers and request logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		logger := s.logger.With("path", r.URL.Path)
		r = r.WithContext(log.WithContext(r.Context(), logger))
		s.mux.ServeHTTP(w, r)
		logger.Debug("request", "method", r.Method, "took",
			time.Since(start))
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type parseFASTARequest struct {
	Content string `json:"content"`
}

type parseFASTAResponse struct {
	Success      bool     `json:"success"`
	Sequence     string   `json:"sequence"`
	Name         string   `json:"name"`
	Length       int      `json:"length"`
	ValidBases   int      `json:"validBases"`
	InvalidBases []string `json:"invalidBases"`
}

type sequenceToMIDIRequest struct {
	Sequence   string   `json:"sequence"`
	Name       string   `json:"name,omitempty"`
	Tempo      *float64 `json:"tempo,omitempty"`
	NoteLength *float64 `json:"noteLength,omitempty"`
	Octave     *int     `json:"octave,omitempty"`
	Theme      string   `json:"theme,omitempty"`
}

type sequenceToMIDIResponse struct {
	Success  bool   `json:"success"`
	MIDIData []int  `json:"midiData"`
	Filename string `json:"filename"`
}

func (s *Server) post(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed,
				errorResponse{Error: "Method not allowed"})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
		h(w, r)
	}
}

func (s *Server) handleParseFASTA(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	var req parseFASTARequest
	if !decodeJSON(w, r, &req) {
		return
	}
	seq, err := dna.ParseFASTA(req.Content)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	logger.Info("parsed sequence", "name", seq.Name, "bases", seq.ValidBases,
		"dropped", seq.Length-seq.ValidBases)
	writeJSON(w, http.StatusOK, parseFASTAResponse{
		Success:      true,
		Sequence:     seq.Bases,
		Name:         seq.Name,
		Length:       seq.Length,
		ValidBases:   seq.ValidBases,
		InvalidBases: seq.InvalidBases,
	})
}

func (s *Server) handleSequenceToMIDI(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	var req sequenceToMIDIRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Sequence == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{Error: "No sequence provided"})
		return
	}

	settings := arrange.SettingsFrom(s.cfg.Music)
	if req.Tempo != nil {
		settings.Tempo = *req.Tempo
	}
	if req.NoteLength != nil {
		settings.NoteLength = *req.NoteLength
	}
	if req.Octave != nil {
		settings.Octave = *req.Octave
	}
	if req.Theme != "" {
		if _, ok := theme.ByID(req.Theme); !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error: fmt.Sprintf("Unknown theme %q", req.Theme),
			})
			return
		}
		settings.Theme = req.Theme
	}

	data, err := arrange.Render(req.Sequence, settings)
	switch {
	case midi.IsInvalidInput(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case err != nil:
		logger.Error("MIDI generation failed", "err", fmt.Sprintf("%+v", err))
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{Error: "Failed to generate MIDI file"})
		return
	}
	filename := arrange.ExportFilename(req.Name,
		theme.Lookup(settings.Theme).Name)
	logger.Info("rendered MIDI", "bases", len(req.Sequence), "bytes",
		len(data), "theme", settings.Theme)

	if r.URL.Query().Get("format") == "binary" {
		h := w.Header()
		h.Set("Content-Type", "audio/midi")
		h.Set("Content-Length", strconv.Itoa(len(data)))
		h.Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}

	// A JSON byte slice would be base64; clients expect an array of numbers.
	ints := make([]int, len(data))
	for i, b := range data {
		ints[i] = int(b)
	}
	writeJSON(w, http.StatusOK, sequenceToMIDIResponse{
		Success:  true,
		MIDIData: ints,
		Filename: filename,
	})
}

func (s *Server) handleThemes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed,
			errorResponse{Error: "Method not allowed"})
		return
	}
	type themeJSON struct {
		theme.Theme
		Bases map[string]theme.BaseNote `json:"baseMapping"`
	}
	all := theme.All()
	out := make([]themeJSON, len(all))
	for i, th := range all {
		bases := make(map[string]theme.BaseNote, len(th.Mapping))
		for b, n := range th.Mapping {
			bases[string(rune(b))] = n
		}
		out[i] = themeJSON{Theme: th, Bases: bases}
	}
	writeJSON(w, http.StatusOK, out)
}

// Decodes the request body into v, writing a 400 response and returning
// false if it can't.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// An empty body is treated as an empty object.
		if errors.Is(err, io.EOF) {
			return true
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge,
				errorResponse{Error: "Request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest,
			errorResponse{Error: "Invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
