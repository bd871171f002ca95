package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DSLitvinov/difference-engine/internal/apperrors"
	"github.com/DSLitvinov/difference-engine/internal/repo"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error to its HTTP status and a JSON error body.
func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type healthResponse struct {
	Status   string `json:"status"`
	DataRoot string `json:"data_root"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", DataRoot: s.engine.Root})
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	mesh := r.URL.Query().Get("mesh")
	if err := s.engine.Rescan(r.Context(), mesh); err != nil {
		writeError(w, err)
		return
	}
	if mesh != "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "mesh": mesh})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleForest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Scanner.ReadForest())
}

func (s *Server) handleGetMesh(w http.ResponseWriter, r *http.Request) {
	mesh := chi.URLParam(r, "mesh")
	summary := s.engine.Scanner.GetMesh(mesh)
	writeJSON(w, http.StatusOK, map[string]any{
		"mesh":           mesh,
		"correct_branch": summary.CorrectBranch,
		"branches":       summary.Branches,
	})
}

func (s *Server) handleGetBranches(w http.ResponseWriter, r *http.Request) {
	mesh := chi.URLParam(r, "mesh")
	writeJSON(w, http.StatusOK, map[string]any{
		"mesh":     mesh,
		"branches": s.engine.Scanner.ListBranches(mesh),
	})
}

func (s *Server) handleGetCommits(w http.ResponseWriter, r *http.Request) {
	mesh := chi.URLParam(r, "mesh")
	branch := chi.URLParam(r, "branch")
	writeJSON(w, http.StatusOK, map[string]any{
		"mesh":    mesh,
		"branch":  branch,
		"commits": s.engine.Scanner.ListCommits(mesh, branch),
	})
}

type setCorrectRequest struct {
	Branch string `json:"branch"`
}

func (s *Server) handleSetCorrect(w http.ResponseWriter, r *http.Request) {
	mesh := chi.URLParam(r, "mesh")
	var body setCorrectRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.ValidationErrf(err, "invalid request body"))
		return
	}

	result, err := s.engine.SetCorrect(r.Context(), mesh, body.Branch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"mesh":           result.Mesh,
		"correct_branch": result.CorrectBranch,
		"updated_at":     result.UpdatedAt,
	})
}

type createBranchRequest struct {
	Branch string `json:"branch"`
}

func (s *Server) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	mesh := chi.URLParam(r, "mesh")
	var body createBranchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.ValidationErrf(err, "invalid request body"))
		return
	}

	result, err := s.engine.CreateBranch(r.Context(), mesh, body.Branch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"mesh": result.Mesh, "branch": result.Branch, "status": result.Status,
	})
}

func (s *Server) handleDeleteBranch(w http.ResponseWriter, r *http.Request) {
	mesh := chi.URLParam(r, "mesh")
	branch := chi.URLParam(r, "branch")

	result, err := s.engine.DeleteBranch(r.Context(), mesh, branch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"mesh": result.Mesh, "branch": result.Branch, "status": result.Status,
	})
}

type createCommitRequest struct {
	Branch  string `json:"branch"`
	Message string `json:"message"`
	Tag     string `json:"tag,omitempty"`
}

func (s *Server) handleCreateCommit(w http.ResponseWriter, r *http.Request) {
	mesh := chi.URLParam(r, "mesh")
	var body createCommitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.ValidationErrf(err, "invalid request body"))
		return
	}

	result, err := s.engine.CreateCommit(r.Context(), mesh, body.Branch, body.Message, body.Tag)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"mesh":   result.Mesh,
		"branch": result.Branch,
		"commit": commitView(result.CommitID, result.Commit),
		"status": result.Status,
	})
}

func commitView(id string, doc repo.CommitDoc) map[string]any {
	view := map[string]any{
		"id":       id,
		"datetime": doc.Datetime,
		"message":  doc.Message,
	}
	if doc.Tag != "" {
		view["tag"] = doc.Tag
	}
	return view
}

func (s *Server) handleDeleteCommit(w http.ResponseWriter, r *http.Request) {
	mesh := chi.URLParam(r, "mesh")
	branch := chi.URLParam(r, "branch")
	commitID := chi.URLParam(r, "commit_id")

	result, err := s.engine.DeleteCommit(r.Context(), mesh, branch, commitID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"mesh": result.Mesh, "branch": result.Branch,
		"commit_id": result.CommitID, "status": result.Status,
	})
}
