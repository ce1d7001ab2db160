package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTaskStatus struct {
	statuses map[string]backlite.TaskStatus
	err      error
	started  bool
}

func (f *fakeTaskStatus) Status(ctx context.Context, taskID string) (backlite.TaskStatus, error) {
	if f.err != nil {
		return backlite.TaskStatusNotFound, f.err
	}
	status, ok := f.statuses[taskID]
	if !ok {
		return backlite.TaskStatusNotFound, nil
	}
	return status, nil
}

func (f *fakeTaskStatus) Started() bool { return f.started }

func TestTasksController_GetTaskStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reader := &fakeTaskStatus{statuses: map[string]backlite.TaskStatus{
		"pending-task": backlite.TaskStatusPending,
		"done-task":    backlite.TaskStatusSuccess,
	}}
	router := NewRouter(RouterConfig{TaskStatus: reader})

	tests := []struct {
		id       string
		wantCode int
		want     string
	}{
		{"pending-task", http.StatusOK, "pending"},
		{"done-task", http.StatusOK, "success"},
		{"missing-task", http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			w := doRequest(router, "GET", "/api/tasks/"+tt.id)
			assert.Equal(t, tt.wantCode, w.Code)

			var response map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.id, response["id"])
			assert.Equal(t, tt.want, response["status"])
		})
	}

	t.Run("queue error", func(t *testing.T) {
		router := NewRouter(RouterConfig{TaskStatus: &fakeTaskStatus{err: errors.New("closed")}})

		w := doRequest(router, "GET", "/api/tasks/any")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestTaskStatusToString(t *testing.T) {
	assert.Equal(t, "pending", taskStatusToString(backlite.TaskStatusPending))
	assert.Equal(t, "running", taskStatusToString(backlite.TaskStatusRunning))
	assert.Equal(t, "success", taskStatusToString(backlite.TaskStatusSuccess))
	assert.Equal(t, "failure", taskStatusToString(backlite.TaskStatusFailure))
	assert.Equal(t, "not_found", taskStatusToString(backlite.TaskStatusNotFound))
}

func TestNewRouter_OptionalRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(RouterConfig{Version: "1.0.0"})

	assert.Equal(t, http.StatusOK, doRequest(router, "GET", "/ping").Code)
	assert.Equal(t, http.StatusOK, doRequest(router, "GET", "/health").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(router, "GET", "/api/migration").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(router, "GET", "/api/tasks/x").Code)
}

func TestNewRouter_HealthSeesQueue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(RouterConfig{TaskStatus: &fakeTaskStatus{started: true}})

	w := doRequest(router, "GET", "/health")
	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "running", response.Checks["sync_queue"])
}
