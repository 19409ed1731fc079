package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/campuscore/internal/domain"
)

// DepartmentsHandler handles GET /api/departments
type DepartmentsHandler struct {
	departments domain.DepartmentRepository
	logger      *slog.Logger
}

// NewDepartmentsHandler creates a new departments handler
func NewDepartmentsHandler(departments domain.DepartmentRepository, logger *slog.Logger) *DepartmentsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DepartmentsHandler{departments: departments, logger: logger}
}

func (h *DepartmentsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	depts, err := h.departments.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	type departmentResponse struct {
		ID        string `json:"id"`
		Code      string `json:"code"`
		Name      string `json:"name"`
		HODUserID string `json:"hod_user_id,omitempty"`
		CreatedAt string `json:"created_at"`
	}
	items := make([]departmentResponse, 0, len(depts))
	for _, d := range depts {
		item := departmentResponse{
			ID:        string(d.ID),
			Code:      d.Code,
			Name:      d.Name,
			CreatedAt: d.CreatedAt.Format(time.RFC3339),
		}
		if d.HODUserID != nil {
			item.HODUserID = string(*d.HODUserID)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"departments": items})
}
