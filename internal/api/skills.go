package api

import (
	"net/http"

	"github.com/buildd-ai/coordinatord/internal/kernelerr"
	"github.com/buildd-ai/coordinatord/internal/skills"
	"github.com/gorilla/mux"
)

func (s *Server) handleSkillList(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["id"]
	list, err := s.skillStore.ListByWorkspace(workspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSkillCreate(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["id"]

	var body struct {
		Slug        string `json:"slug"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Content     string `json:"content"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, kernelerr.Invalidf("malformed request body: %v", err))
		return
	}

	sk := skills.New(workspaceID, body.Slug, body.Name, body.Content)
	sk.Description = body.Description

	if err := s.skillStore.Save(sk); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sk)
}

func (s *Server) handleSkillInstall(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["id"]

	var body struct {
		SkillID          string `json:"skillId,omitempty"`
		InstallerCommand string `json:"installerCommand,omitempty"`
		SkillSlug        string `json:"skillSlug,omitempty"`
		TargetLocalUiURL string `json:"targetLocalUiUrl,omitempty"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, kernelerr.Invalidf("malformed request body: %v", err))
		return
	}

	var err error
	switch {
	case body.SkillID != "":
		err = s.installer.InstallContentPush(workspaceID, body.SkillID, body.TargetLocalUiURL)
	case body.InstallerCommand != "":
		err = s.installer.InstallCommandPush(workspaceID, body.InstallerCommand, body.SkillSlug)
	default:
		err = kernelerr.Invalidf("install request requires skillId or installerCommand")
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
