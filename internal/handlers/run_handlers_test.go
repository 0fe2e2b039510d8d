package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"mcpsentry/internal/models"
	"mcpsentry/internal/services"
	"mcpsentry/pkg/agent"
	"mcpsentry/pkg/compare"
	"mcpsentry/pkg/discovery"
	sentryerrors "mcpsentry/pkg/errors"
	"mcpsentry/pkg/llm"
	"mcpsentry/pkg/planner"
)

type MockRunService struct {
	mock.Mock
}

func (m *MockRunService) StartRun(req *services.RunRequest) (string, error) {
	args := m.Called(req)
	return args.String(0), args.Error(1)
}

func (m *MockRunService) GetRunByUUID(id string) (*models.Run, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Run), args.Error(1)
}

func (m *MockRunService) ListRuns(page, limit int) ([]models.Run, int64, error) {
	args := m.Called(page, limit)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.Run), args.Get(1).(int64), args.Error(2)
}

func (m *MockRunService) DeleteRun(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockRunService) CancelRun(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockRunService) GetDiscovery(id string) (*discovery.Snapshot, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*discovery.Snapshot), args.Error(1)
}

func (m *MockRunService) GetSecurityProfile(id string) (*llm.SecurityProfile, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.SecurityProfile), args.Error(1)
}

func (m *MockRunService) GetTestPlan(id string) ([]planner.PlanEntry, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]planner.PlanEntry), args.Error(1)
}

func (m *MockRunService) GetMissionBriefing(id string) (*planner.CachedBriefing, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*planner.CachedBriefing), args.Error(1)
}

func (m *MockRunService) GetResults(id string) ([]models.TestResult, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TestResult), args.Error(1)
}

func (m *MockRunService) GetStories(id string) ([]models.AgentStory, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AgentStory), args.Error(1)
}

func (m *MockRunService) GetTranscript(id string, storyIndex int) ([]agent.TranscriptEvent, error) {
	args := m.Called(id, storyIndex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]agent.TranscriptEvent), args.Error(1)
}

func (m *MockRunService) CompareRuns(baseID, headID string) (*compare.Result, error) {
	args := m.Called(baseID, headID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*compare.Result), args.Error(1)
}

func (m *MockRunService) QueueStatus() (running, queued, maxConcurrent int) {
	args := m.Called()
	return args.Int(0), args.Int(1), args.Int(2)
}

func TestStartRun(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		requestBody    string
		setupMock      func(*MockRunService)
		expectedStatus int
		expectedBody   string
		validateMock   func(*testing.T, *MockRunService)
	}{
		{
			name:        "Valid Request - Success",
			requestBody: `{"target":"http://localhost:9000/sse","mode":"preset","preset":"standard"}`,
			setupMock: func(m *MockRunService) {
				m.On("StartRun", mock.MatchedBy(func(req *services.RunRequest) bool {
					return req.Target == "http://localhost:9000/sse" &&
						req.Mode == "preset" &&
						req.Preset == "standard"
				})).Return("123e4567-e89b-12d3-a456-426614174000", nil)
			},
			expectedStatus: 200,
			expectedBody:   `{"run_id":"123e4567-e89b-12d3-a456-426614174000","status":"pending"}`,
			validateMock: func(t *testing.T, m *MockRunService) {
				m.AssertNumberOfCalls(t, "StartRun", 1)
			},
		},
		{
			name:           "Invalid JSON - Malformed",
			requestBody:    `{"target":"http://localhost","mode":}`,
			setupMock:      func(m *MockRunService) {},
			expectedStatus: 400,
			expectedBody:   `{"error":"Invalid request payload"}`,
			validateMock: func(t *testing.T, m *MockRunService) {
				m.AssertNumberOfCalls(t, "StartRun", 0)
			},
		},
		{
			name:           "Missing Required Field - target",
			requestBody:    `{"mode":"preset","preset":"quick"}`,
			setupMock:      func(m *MockRunService) {},
			expectedStatus: 400,
			expectedBody:   `{"error":"Invalid request payload"}`,
		},
		{
			name:           "Missing Required Field - mode",
			requestBody:    `{"target":"http://localhost:9000/sse"}`,
			setupMock:      func(m *MockRunService) {},
			expectedStatus: 400,
			expectedBody:   `{"error":"Invalid request payload"}`,
		},
		{
			name:        "Unknown Preset - Config Error",
			requestBody: `{"target":"http://localhost:9000/sse","mode":"preset","preset":"nonexistent"}`,
			setupMock: func(m *MockRunService) {
				m.On("StartRun", mock.AnythingOfType("*services.RunRequest")).
					Return("", sentryerrors.NewConfigError("preset", "nonexistent", "unknown preset"))
			},
			expectedStatus: 400,
		},
		{
			name:        "Service Error - Internal Error",
			requestBody: `{"target":"http://localhost:9000/sse","mode":"preset","preset":"standard"}`,
			setupMock: func(m *MockRunService) {
				m.On("StartRun", mock.AnythingOfType("*services.RunRequest")).
					Return("", errors.New("database connection failed"))
			},
			expectedStatus: 500,
			expectedBody:   `{"error":"Failed to start run"}`,
		},
		{
			name:           "Empty Request Body",
			requestBody:    `{}`,
			setupMock:      func(m *MockRunService) {},
			expectedStatus: 400,
			expectedBody:   `{"error":"Invalid request payload"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockRunService)
			tt.setupMock(mockService)

			handler := NewRunHandler(mockService)
			router := gin.New()
			router.POST("/api/runs", handler.StartRun)

			req, err := http.NewRequest("POST", "/api/runs", strings.NewReader(tt.requestBody))
			assert.NoError(t, err, "Failed to create request")
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code,
				"Expected status %d, got %d. Response: %s",
				tt.expectedStatus, w.Code, w.Body.String())

			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}

			if tt.validateMock != nil {
				tt.validateMock(t, mockService)
			}

			mockService.AssertExpectations(t)
		})
	}
}

func TestGetRun(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		runID          string
		setupMock      func(*MockRunService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:  "Valid ID - Run Found",
			runID: "123e4567-e89b-12d3-a456-426614174000",
			setupMock: func(m *MockRunService) {
				run := &models.Run{
					UUID:   "123e4567-e89b-12d3-a456-426614174000",
					Target: "http://localhost:9000/sse",
					Mode:   models.ModePreset,
					Status: models.StatusRunning,
					Stage:  models.StageTestExecution,
				}
				m.On("GetRunByUUID", "123e4567-e89b-12d3-a456-426614174000").
					Return(run, nil)
			},
			expectedStatus: 200,
		},
		{
			name:  "Valid ID - Run Not Found",
			runID: "non-existent-id",
			setupMock: func(m *MockRunService) {
				m.On("GetRunByUUID", "non-existent-id").
					Return(nil, gorm.ErrRecordNotFound)
			},
			expectedStatus: 404,
			expectedBody:   `{"error":"Run not found"}`,
		},
		{
			name:  "Service Error",
			runID: "some-id",
			setupMock: func(m *MockRunService) {
				m.On("GetRunByUUID", "some-id").
					Return(nil, errors.New("db error"))
			},
			expectedStatus: 500,
			expectedBody:   `{"error":"Failed to get run"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockRunService)
			tt.setupMock(mockService)

			handler := NewRunHandler(mockService)
			router := gin.New()
			router.GET("/api/runs/:id", handler.GetRun)

			req, _ := http.NewRequest("GET", fmt.Sprintf("/api/runs/%s", tt.runID), nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}

			mockService.AssertExpectations(t)
		})
	}
}

func TestDeleteRun(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		runID          string
		setupMock      func(*MockRunService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:  "Successful Deletion",
			runID: "uuid-123",
			setupMock: func(m *MockRunService) {
				m.On("DeleteRun", "uuid-123").Return(nil)
			},
			expectedStatus: 200,
			expectedBody:   `{"deleted":true}`,
		},
		{
			name:  "Run Still In Progress",
			runID: "uuid-running",
			setupMock: func(m *MockRunService) {
				m.On("DeleteRun", "uuid-running").Return(sentryerrors.ErrRunNotTerminal)
			},
			expectedStatus: 409,
			expectedBody:   `{"error":"Run is still in progress, cancel it first"}`,
		},
		{
			name:  "Run Not Found",
			runID: "missing-id",
			setupMock: func(m *MockRunService) {
				m.On("DeleteRun", "missing-id").Return(gorm.ErrRecordNotFound)
			},
			expectedStatus: 404,
			expectedBody:   `{"error":"Run not found"}`,
		},
		{
			name:  "Service Error",
			runID: "uuid-987",
			setupMock: func(m *MockRunService) {
				m.On("DeleteRun", "uuid-987").Return(errors.New("db error"))
			},
			expectedStatus: 500,
			expectedBody:   `{"error":"Failed to delete run"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockRunService)
			tt.setupMock(mockService)

			handler := NewRunHandler(mockService)
			router := gin.New()
			router.DELETE("/api/runs/:id", handler.DeleteRun)

			req, _ := http.NewRequest("DELETE", fmt.Sprintf("/api/runs/%s", tt.runID), nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}

func TestCancelRun(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		runID          string
		setupMock      func(*MockRunService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:  "Cancellation Accepted",
			runID: "uuid-123",
			setupMock: func(m *MockRunService) {
				m.On("CancelRun", "uuid-123").Return(nil)
			},
			expectedStatus: 202,
			expectedBody:   `{"status":"cancelling"}`,
		},
		{
			name:  "Run Already Terminal",
			runID: "uuid-done",
			setupMock: func(m *MockRunService) {
				m.On("CancelRun", "uuid-done").Return(sentryerrors.ErrRunNotCancellable)
			},
			expectedStatus: 409,
			expectedBody:   `{"error":"Run is not in a cancellable state"}`,
		},
		{
			name:  "Run Not Found",
			runID: "missing-id",
			setupMock: func(m *MockRunService) {
				m.On("CancelRun", "missing-id").Return(gorm.ErrRecordNotFound)
			},
			expectedStatus: 404,
			expectedBody:   `{"error":"Run not found"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockRunService)
			tt.setupMock(mockService)

			handler := NewRunHandler(mockService)
			router := gin.New()
			router.POST("/api/runs/:id/cancel", handler.CancelRun)

			req, _ := http.NewRequest("POST", fmt.Sprintf("/api/runs/%s/cancel", tt.runID), nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}

func TestGetDiscoveryNotYetAvailable(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockService := new(MockRunService)
	mockService.On("GetDiscovery", "uuid-123").Return(nil, nil)

	handler := NewRunHandler(mockService)
	router := gin.New()
	router.GET("/api/runs/:id/discovery", handler.GetDiscovery)

	req, _ := http.NewRequest("GET", "/api/runs/uuid-123/discovery", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 404, w.Code)
	assert.JSONEq(t, `{"error":"Discovery has not completed for this run"}`, w.Body.String())
	mockService.AssertExpectations(t)
}

func TestGetTranscriptBadIndex(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockService := new(MockRunService)
	handler := NewRunHandler(mockService)
	router := gin.New()
	router.GET("/api/runs/:id/agent-stories/:story/transcript", handler.GetTranscript)

	req, _ := http.NewRequest("GET", "/api/runs/uuid-123/agent-stories/notanumber/transcript", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 400, w.Code)
	assert.JSONEq(t, `{"error":"Story index must be an integer"}`, w.Body.String())
	mockService.AssertNumberOfCalls(t, "GetTranscript", 0)
}

func TestCompare(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		requestBody    string
		setupMock      func(*MockRunService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:        "Valid Comparison",
			requestBody: `{"base_run_id":"base-uuid","head_run_id":"head-uuid"}`,
			setupMock: func(m *MockRunService) {
				m.On("CompareRuns", "base-uuid", "head-uuid").Return(&compare.Result{
					NewFailures: []compare.Finding{},
					FixedIssues: []compare.Finding{},
					Unchanged:   []compare.Finding{},
				}, nil)
			},
			expectedStatus: 200,
		},
		{
			name:           "Missing Head Run ID",
			requestBody:    `{"base_run_id":"base-uuid"}`,
			setupMock:      func(m *MockRunService) {},
			expectedStatus: 400,
			expectedBody:   `{"error":"Invalid request payload"}`,
		},
		{
			name:        "Run Not Completed",
			requestBody: `{"base_run_id":"base-uuid","head_run_id":"running-uuid"}`,
			setupMock: func(m *MockRunService) {
				m.On("CompareRuns", "base-uuid", "running-uuid").
					Return(nil, fmt.Errorf("run running-uuid: %w", sentryerrors.ErrRunNotTerminal))
			},
			expectedStatus: 409,
			expectedBody:   `{"error":"Both runs must be completed before comparing"}`,
		},
		{
			name:        "Run Not Found",
			requestBody: `{"base_run_id":"base-uuid","head_run_id":"ghost-uuid"}`,
			setupMock: func(m *MockRunService) {
				m.On("CompareRuns", "base-uuid", "ghost-uuid").
					Return(nil, gorm.ErrRecordNotFound)
			},
			expectedStatus: 404,
			expectedBody:   `{"error":"Run not found"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockRunService)
			tt.setupMock(mockService)

			handler := NewRunHandler(mockService)
			router := gin.New()
			router.POST("/api/compare", handler.Compare)

			req, _ := http.NewRequest("POST", "/api/compare", strings.NewReader(tt.requestBody))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}

			mockService.AssertExpectations(t)
		})
	}
}

func TestQueueStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockService := new(MockRunService)
	mockService.On("QueueStatus").Return(2, 1, 3)

	handler := NewRunHandler(mockService)
	router := gin.New()
	router.GET("/api/queue", handler.QueueStatus)

	req, _ := http.NewRequest("GET", "/api/queue", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	assert.JSONEq(t, `{"running":2,"queued":1,"max_concurrent":3}`, w.Body.String())
	mockService.AssertExpectations(t)
}
