package handlers

import (
	"net/http"

	"photostudio/internal/domain"
)

type templateListResponse struct {
	Templates []domain.PromptTemplate `json:"templates"`
}

func (a *App) ListTemplates(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, templateListResponse{Templates: a.Catalog.List()})
}
