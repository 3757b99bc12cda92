package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	notificationdomain "github.com/gigboard/gigboard/internal/notification/domain"
	apperrors "github.com/gigboard/gigboard/internal/platform/errors"
	taskdomain "github.com/gigboard/gigboard/internal/task/domain"
)

type locationView struct {
	Address string   `json:"address,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

type taskView struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	MinBudget   float64       `json:"min_budget"`
	MaxBudget   float64       `json:"max_budget"`
	Date        string        `json:"date,omitempty"`
	Category    string        `json:"category,omitempty"`
	Priority    string        `json:"priority"`
	Status      string        `json:"status"`
	CreatedBy   string        `json:"created_by"`
	AssignedTo  string        `json:"assigned_to,omitempty"`
	Location    *locationView `json:"location,omitempty"`
	CreatedAt   string        `json:"created_at"`
	UpdatedAt   string        `json:"updated_at"`
}

func toTaskView(task taskdomain.Task) taskView {
	view := taskView{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		MinBudget:   task.MinBudget,
		MaxBudget:   task.MaxBudget,
		Category:    task.Category,
		Priority:    task.Priority,
		Status:      string(task.Status),
		CreatedBy:   task.CreatedBy,
		AssignedTo:  task.AssignedTo,
		CreatedAt:   task.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   task.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if !task.Date.IsZero() {
		view.Date = task.Date.UTC().Format(time.RFC3339)
	}
	if task.Location.Address != "" || task.Location.Lat != nil {
		view.Location = &locationView{
			Address: task.Location.Address,
			Lat:     task.Location.Lat,
			Lng:     task.Location.Lng,
		}
	}
	return view
}

type taskResponse struct {
	Success bool     `json:"success"`
	Task    taskView `json:"task"`
}

type taskListResponse struct {
	Success bool       `json:"success"`
	Tasks   []taskView `json:"tasks"`
}

type budgetObject struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// createTaskRequest accepts the duck-typed client shapes: budget either flat
// or nested, location either a bare address string or a coordinate object.
type createTaskRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	MinBudget   *float64        `json:"minBudget"`
	MaxBudget   *float64        `json:"maxBudget"`
	Budget      *budgetObject   `json:"budget"`
	Date        string          `json:"date"`
	Category    string          `json:"category"`
	Priority    string          `json:"priority"`
	Location    json.RawMessage `json:"location"`
}

type locationObject struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
}

func (req createTaskRequest) normalize(createdBy string) (taskdomain.CreateTaskInput, error) {
	input := taskdomain.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
		CreatedBy:   createdBy,
	}

	switch {
	case req.Budget != nil:
		if req.Budget.Min != nil {
			input.MinBudget = *req.Budget.Min
		}
		if req.Budget.Max != nil {
			input.MaxBudget = *req.Budget.Max
		}
	default:
		if req.MinBudget != nil {
			input.MinBudget = *req.MinBudget
		}
		if req.MaxBudget != nil {
			input.MaxBudget = *req.MaxBudget
		}
	}

	if date := strings.TrimSpace(req.Date); date != "" {
		parsed, err := parseDate(date)
		if err != nil {
			return taskdomain.CreateTaskInput{}, apperrors.New(apperrors.CodeRequestMalformed, "date must be RFC3339 or YYYY-MM-DD")
		}
		input.Date = parsed
	}

	location, err := parseLocation(req.Location)
	if err != nil {
		return taskdomain.CreateTaskInput{}, err
	}
	input.Location = location
	return input, nil
}

func parseDate(value string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed.UTC(), nil
	}
	return time.Parse("2006-01-02", value)
}

func parseLocation(raw json.RawMessage) (taskdomain.Location, error) {
	if len(raw) == 0 {
		return taskdomain.Location{}, nil
	}
	var address string
	if err := json.Unmarshal(raw, &address); err == nil {
		return taskdomain.Location{Address: address}, nil
	}
	var object locationObject
	if err := json.Unmarshal(raw, &object); err != nil {
		return taskdomain.Location{}, apperrors.New(apperrors.CodeRequestMalformed, "location must be a string or an object")
	}
	return taskdomain.Location{Address: object.Address, Lat: object.Lat, Lng: object.Lng}, nil
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CodeRequestMalformed, "invalid request body"))
		return
	}
	input, err := req.normalize(actorID)
	if err != nil {
		writeError(w, err)
		return
	}

	task, err := s.tasks.Create(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, taskResponse{Success: true, Task: toTaskView(task)})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.actor(w, r)
	if !ok {
		return
	}

	var filter taskdomain.Filter
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		parsed, valid := taskdomain.ParseStatus(status)
		if !valid {
			writeError(w, apperrors.New(apperrors.CodeTaskStatusInvalid, "unknown status filter"))
			return
		}
		filter.Status = parsed
	}
	if r.URL.Query().Get("mine") == "true" {
		filter.UserID = actorID
	}

	tasks, err := s.tasks.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]taskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, toTaskView(task))
	}
	writeJSON(w, http.StatusOK, taskListResponse{Success: true, Tasks: views})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.actor(w, r); !ok {
		return
	}
	task, err := s.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskResponse{Success: true, Task: toTaskView(task)})
}

func (s *Server) handleAcceptTask(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.actor(w, r)
	if !ok {
		return
	}
	task, err := s.tasks.Accept(r.Context(), r.PathValue("id"), actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskResponse{Success: true, Task: toTaskView(task)})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CodeRequestMalformed, "invalid request body"))
		return
	}
	target, valid := taskdomain.ParseStatus(strings.TrimSpace(req.Status))
	if !valid {
		writeError(w, apperrors.New(apperrors.CodeTaskStatusInvalid, "unknown target status"))
		return
	}

	task, err := s.tasks.Transition(r.Context(), r.PathValue("id"), target, actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskResponse{Success: true, Task: toTaskView(task)})
}

type feedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// handleTaskFeedback completes a task through the same transition path as
// the direct status update. The comment is relayed to the requester as a
// notification; no rating record is kept.
func (s *Server) handleTaskFeedback(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CodeRequestMalformed, "invalid request body"))
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeError(w, apperrors.New(apperrors.CodeTaskFeedbackIncomplete, "rating must be between 1 and 5"))
		return
	}

	task, err := s.tasks.Transition(r.Context(), r.PathValue("id"), taskdomain.StatusCompleted, actorID)
	if err != nil {
		writeError(w, err)
		return
	}

	if comment := strings.TrimSpace(req.Comment); comment != "" && s.notifications != nil {
		_, err := s.notifications.Create(r.Context(), notificationdomain.CreateInput{
			UserID:    task.CreatedBy,
			Message:   fmt.Sprintf("Feedback on %q: %s", task.Title, comment),
			DedupeKey: fmt.Sprintf("%s:feedback", task.ID),
		})
		if err != nil {
			log.Printf("api: feedback notification for task=%q failed: %v", task.ID, err)
		}
	}

	writeJSON(w, http.StatusOK, taskResponse{Success: true, Task: toTaskView(task)})
}
