package server

import (
	"chat-core/domain"
	"chat-core/errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const attachmentsField = "attachments"

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.messages.List(r.Context(), actor(r), chi.URLParam(r, "chatId"))
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	if messages == nil {
		messages = []domain.MessageView{}
	}
	respond(w, s.log, http.StatusOK, messages, "Messages fetched successfully")
}

// sendMessage accepts a multipart form with a content field and up to
// domain.MaxAttachments files under attachments, each at most
// Limits.AttachmentSize bytes.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	limit := int64(domain.MaxAttachments)*s.limits.AttachmentSize + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		if tooLarge(err) {
			respondError(w, s.log, errors.ErrRequestTooLarge)
			return
		}
		respondError(w, s.log, fmt.Errorf("parse form: %w", errors.ErrInvalidRequest))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.log.Debug("Unable to remove multipart files", "error", err)
		}
	}()

	files := r.MultipartForm.File[attachmentsField]
	if len(files) > domain.MaxAttachments {
		respondError(w, s.log, errors.ErrTooManyAttachments)
		return
	}
	uploads := make([]domain.Upload, 0, len(files))
	for _, header := range files {
		if header.Size > s.limits.AttachmentSize {
			respondError(w, s.log, fmt.Errorf("%s is %d bytes, at most %d: %w",
				header.Filename, header.Size, s.limits.AttachmentSize, errors.ErrAttachmentTooLarge))
			return
		}
		upload, err := readUpload(header)
		if err != nil {
			respondError(w, s.log, err)
			return
		}
		uploads = append(uploads, upload)
	}

	view, err := s.messages.Send(r.Context(), domain.SendMessageCommand{
		Actor:       actor(r),
		ChatID:      chi.URLParam(r, "chatId"),
		Content:     r.FormValue("content"),
		Attachments: uploads,
	})
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	respond(w, s.log, http.StatusCreated, view, "Message saved successfully")
}

func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	view, err := s.messages.Delete(r.Context(), actor(r), chi.URLParam(r, "chatId"), chi.URLParam(r, "messageId"))
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	respond(w, s.log, http.StatusOK, view, "Message deleted successfully")
}

func readUpload(header *multipart.FileHeader) (domain.Upload, error) {
	file, err := header.Open()
	if err != nil {
		return domain.Upload{}, fmt.Errorf("open %s: %w", header.Filename, err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return domain.Upload{}, fmt.Errorf("read %s: %w", header.Filename, err)
	}
	return domain.Upload{Name: header.Filename, Data: data}, nil
}
