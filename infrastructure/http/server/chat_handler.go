package server

import (
	"chat-core/domain"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type createGroupRequest struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
}

type renameGroupRequest struct {
	Name string `json:"name"`
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.chats.ListChats(r.Context(), actor(r))
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	if chats == nil {
		chats = []domain.ChatView{}
	}
	respond(w, s.log, http.StatusOK, chats, "User chats fetched successfully")
}

func (s *Server) createOrGetOneOnOne(w http.ResponseWriter, r *http.Request) {
	view, created, err := s.chats.CreateOrGetOneOnOne(r.Context(), actor(r), chi.URLParam(r, "receiverId"))
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	if created {
		respond(w, s.log, http.StatusCreated, view, "Chat created successfully")
		return
	}
	respond(w, s.log, http.StatusOK, view, "Chat retrieved successfully")
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	var body createGroupRequest
	if err := decode(w, r, &body); err != nil {
		respondError(w, s.log, err)
		return
	}
	view, err := s.chats.CreateGroup(r.Context(), domain.CreateGroupCommand{
		Actor:        actor(r),
		Name:         body.Name,
		Participants: body.Participants,
	})
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	respond(w, s.log, http.StatusCreated, view, "Group chat created successfully")
}

func (s *Server) groupDetails(w http.ResponseWriter, r *http.Request) {
	view, err := s.chats.GetGroupDetails(r.Context(), actor(r), chi.URLParam(r, "chatId"))
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	respond(w, s.log, http.StatusOK, view, "Group chat fetched successfully")
}

func (s *Server) renameGroup(w http.ResponseWriter, r *http.Request) {
	var body renameGroupRequest
	if err := decode(w, r, &body); err != nil {
		respondError(w, s.log, err)
		return
	}
	view, err := s.chats.RenameGroup(r.Context(), actor(r), chi.URLParam(r, "chatId"), body.Name)
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	respond(w, s.log, http.StatusOK, view, "Group chat name updated successfully")
}

func (s *Server) deleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.chats.DeleteGroup(r.Context(), actor(r), chi.URLParam(r, "chatId")); err != nil {
		respondError(w, s.log, err)
		return
	}
	respond(w, s.log, http.StatusOK, struct{}{}, "Group chat deleted successfully")
}

func (s *Server) deleteOneOnOne(w http.ResponseWriter, r *http.Request) {
	if err := s.chats.DeleteOneOnOne(r.Context(), actor(r), chi.URLParam(r, "chatId")); err != nil {
		respondError(w, s.log, err)
		return
	}
	respond(w, s.log, http.StatusOK, struct{}{}, "Chat deleted successfully")
}

func (s *Server) leaveGroup(w http.ResponseWriter, r *http.Request) {
	view, err := s.chats.LeaveGroup(r.Context(), actor(r), chi.URLParam(r, "chatId"))
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	respond(w, s.log, http.StatusOK, view, "Left the group successfully")
}

func (s *Server) addParticipant(w http.ResponseWriter, r *http.Request) {
	view, err := s.chats.AddParticipant(r.Context(), actor(r), chi.URLParam(r, "chatId"), chi.URLParam(r, "participantId"))
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	respond(w, s.log, http.StatusOK, view, "Participant added successfully")
}

func (s *Server) removeParticipant(w http.ResponseWriter, r *http.Request) {
	view, err := s.chats.RemoveParticipant(r.Context(), actor(r), chi.URLParam(r, "chatId"), chi.URLParam(r, "participantId"))
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	respond(w, s.log, http.StatusOK, view, "Participant removed successfully")
}
