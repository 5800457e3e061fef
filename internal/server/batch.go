package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/GriffinCanCode/good-listener/backend/audio/internal/audio"
	apperrors "github.com/GriffinCanCode/good-listener/backend/audio/internal/errors"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/trace"
)

type transcribeResponse struct {
	Transcript string `json:"transcript"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type segmentResponse struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

type diarizeResponse struct {
	Segments []segmentResponse `json:"segments"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	blob, err := s.readUpload(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	text, err := s.deps.Batch.TranscribeOnce(r.Context(), blob)
	if err != nil {
		status := apperrors.CodeOf(err).HTTPStatus()
		writeJSON(w, status, errorResponse{Error: clientMessage(err, status)})
		return
	}
	writeJSON(w, http.StatusOK, transcribeResponse{Transcript: text})
}

// handleDiarize always answers 200; failures yield no segments.
func (s *Server) handleDiarize(w http.ResponseWriter, r *http.Request) {
	log := trace.Logger(r.Context())

	numSpeakers := s.deps.Batch.DefaultNumSpeakers()
	if v := r.URL.Query().Get("num_speakers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Warn("ignoring invalid num_speakers", "value", v)
		} else {
			numSpeakers = n
		}
	}

	resp := diarizeResponse{Segments: []segmentResponse{}}
	blob, err := s.readUpload(w, r)
	if err != nil {
		log.Warn("diarize upload unreadable", "error", err)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	for _, seg := range s.deps.Batch.DiarizeOnce(r.Context(), blob, numSpeakers) {
		resp.Segments = append(resp.Segments, segmentResponse{
			Start:   seg.Start,
			End:     seg.End,
			Speaker: "Speaker " + seg.Label,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// readUpload reads the multipart file field, bounded by MaxUploadBytes.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (audio.Blob, error) {
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return audio.Blob{}, errors.New("upload exceeds size limit")
		}
		return audio.Blob{}, errors.New("expected multipart form upload")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return audio.Blob{}, errors.New("missing file field")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return audio.Blob{}, errors.New("failed to read upload")
	}
	return audio.Blob{Data: data, MIME: header.Header.Get("Content-Type")}, nil
}

// clientMessage hides internal failure detail behind a generic message.
// Only validation failures, which describe the client's own upload, are
// echoed back.
func clientMessage(err error, status int) string {
	if status == http.StatusBadRequest {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return appErr.Message
		}
	}
	return genericProcessingError
}
