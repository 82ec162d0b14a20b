package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/robsonferreira/tasksync/internal/db"
	tasksync "github.com/robsonferreira/tasksync/internal/sync"
	"github.com/robsonferreira/tasksync/internal/task"
)

var errMockRemote = errors.New("notion unavailable")

// MockService implements Service for testing
type MockService struct {
	CreateFunc      func(ctx context.Context, in task.CreateInput) (*task.Task, error)
	UpdateFunc      func(ctx context.Context, id string, in task.UpdateInput) (*task.Task, error)
	DeleteFunc      func(ctx context.Context, id string) (*task.Task, error)
	GetFunc         func(ctx context.Context, id string) (*task.Task, error)
	ListFunc        func(ctx context.Context, filter db.ListFilter) ([]*task.Task, error)
	DivergencesFunc func(ctx context.Context) ([]*db.Divergence, error)
}

func (m *MockService) Create(ctx context.Context, in task.CreateInput) (*task.Task, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, in)
	}
	return nil, nil
}

func (m *MockService) Update(ctx context.Context, id string, in task.UpdateInput) (*task.Task, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, in)
	}
	return nil, nil
}

func (m *MockService) Delete(ctx context.Context, id string) (*task.Task, error) {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockService) Get(ctx context.Context, id string) (*task.Task, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, &tasksync.Error{Kind: tasksync.ErrNotFound, Op: tasksync.OpGet, TaskID: id}
}

func (m *MockService) List(ctx context.Context, filter db.ListFilter) ([]*task.Task, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return nil, nil
}

func (m *MockService) Divergences(ctx context.Context) ([]*db.Divergence, error) {
	if m.DivergencesFunc != nil {
		return m.DivergencesFunc(ctx)
	}
	return nil, nil
}

func (m *MockService) Reconcile(ctx context.Context) (*tasksync.ReconcileReport, error) {
	return &tasksync.ReconcileReport{Examined: 1, Resolved: 1}, nil
}

func (m *MockService) RebuildMirror(ctx context.Context) (int, error) {
	return 4, nil
}

func newTestServer(t *testing.T, mock *MockService) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := NewServer(Config{Service: mock, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	return s
}

func doRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, _ := json.Marshal(b)
			reader = bytes.NewBuffer(data)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
	return out
}

func sampleTask() *task.Task {
	return task.New(task.Fields{Title: "Write spec", Status: task.StatusNotStarted, Priority: task.PriorityHigh}, "page-123")
}

func TestNewServer_RequiresService(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Error("NewServer() without service succeeded, want error")
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &MockService{})
	w := doRequest(s, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestCreate(t *testing.T) {
	var got task.CreateInput
	mock := &MockService{
		CreateFunc: func(ctx context.Context, in task.CreateInput) (*task.Task, error) {
			got = in
			return sampleTask(), nil
		},
	}
	s := newTestServer(t, mock)

	w := doRequest(s, http.MethodPost, "/api/v1/tasks", map[string]string{
		"title": "Write spec", "status": "NOT_STARTED", "priority": "HIGH",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", w.Code, w.Body.String())
	}
	if got.Title != "Write spec" || got.Priority != "HIGH" {
		t.Errorf("service received %+v", got)
	}

	body := decode(t, w)
	tk, ok := body["task"].(map[string]interface{})
	if !ok || tk["remote_page_id"] != "page-123" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["error"]; ok {
		t.Error("success body carries an error")
	}
}

func TestCreate_MalformedBody(t *testing.T) {
	called := false
	s := newTestServer(t, &MockService{
		CreateFunc: func(ctx context.Context, in task.CreateInput) (*task.Task, error) {
			called = true
			return nil, nil
		},
	})

	w := doRequest(s, http.MethodPost, "/api/v1/tasks", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if called {
		t.Error("service called for malformed body")
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		divergence bool
	}{
		{
			name:       "invalid input",
			err:        &tasksync.Error{Kind: tasksync.ErrInvalidInput, Op: tasksync.OpCreate, Err: errors.New("title is required")},
			wantStatus: http.StatusBadRequest,
			wantKind:   "invalid_input",
		},
		{
			name:       "remote write failed",
			err:        &tasksync.Error{Kind: tasksync.ErrRemoteWriteFailed, Op: tasksync.OpCreate, Err: errMockRemote},
			wantStatus: http.StatusInternalServerError,
			wantKind:   "remote_write_failed",
		},
		{
			name: "local write failed",
			err: &tasksync.Error{
				Kind: tasksync.ErrLocalWriteFailed, Op: tasksync.OpCreate,
				TaskID: "t1", RemotePageID: "page-1", Err: errors.New("disk full"),
			},
			wantStatus: http.StatusInternalServerError,
			wantKind:   "local_write_failed",
			divergence: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &MockService{
				CreateFunc: func(ctx context.Context, in task.CreateInput) (*task.Task, error) {
					return nil, tt.err
				},
			})

			w := doRequest(s, http.MethodPost, "/api/v1/tasks", map[string]string{
				"title": "Write spec", "status": "NOT_STARTED", "priority": "HIGH",
			})
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			body := decode(t, w)
			if body["kind"] != tt.wantKind {
				t.Errorf("kind = %v, want %s", body["kind"], tt.wantKind)
			}
			if _, ok := body["task"]; ok {
				t.Error("error body carries task data")
			}
			d, hasDivergence := body["divergence"].(map[string]interface{})
			if hasDivergence != tt.divergence {
				t.Fatalf("divergence present = %v, want %v", hasDivergence, tt.divergence)
			}
			if tt.divergence && (d["remote_page_id"] != "page-1" || d["remote_committed"] != true) {
				t.Errorf("divergence = %v", d)
			}
		})
	}
}

func TestUpdate_RemoteSyncFailed(t *testing.T) {
	s := newTestServer(t, &MockService{
		UpdateFunc: func(ctx context.Context, id string, in task.UpdateInput) (*task.Task, error) {
			if in.Status == nil || *in.Status != "DONE" {
				t.Errorf("status not passed through: %+v", in)
			}
			return nil, &tasksync.Error{
				Kind: tasksync.ErrRemoteSyncFailed, Op: tasksync.OpUpdate,
				TaskID: id, RemotePageID: "page-1", Err: errMockRemote,
			}
		},
	})

	w := doRequest(s, http.MethodPatch, "/api/v1/tasks/t1", map[string]string{"status": "DONE"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	d, ok := decode(t, w)["divergence"].(map[string]interface{})
	if !ok {
		t.Fatal("missing divergence object")
	}
	if d["task_id"] != "t1" || d["local_committed"] != true || d["remote_committed"] != false {
		t.Errorf("divergence = %v", d)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestServer(t, &MockService{})

	w := doRequest(s, http.MethodGet, "/api/v1/tasks/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if decode(t, w)["kind"] != "not_found" {
		t.Error("kind != not_found")
	}
}

func TestList_Filters(t *testing.T) {
	var got db.ListFilter
	s := newTestServer(t, &MockService{
		ListFunc: func(ctx context.Context, filter db.ListFilter) ([]*task.Task, error) {
			got = filter
			return []*task.Task{sampleTask()}, nil
		},
	})

	w := doRequest(s, http.MethodGet, "/api/v1/tasks?status=Conclu%C3%ADdo&priority=HIGH&limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	if got.Status != task.StatusDone || got.Priority != task.PriorityHigh || got.Limit != 10 {
		t.Errorf("filter = %+v", got)
	}
	if decode(t, w)["count"] != float64(1) {
		t.Error("count != 1")
	}

	for _, q := range []string{"status=BOGUS", "limit=-1", "limit=abc", "offset=-3"} {
		if w := doRequest(s, http.MethodGet, "/api/v1/tasks?"+q, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestList_EmptyIsArray(t *testing.T) {
	s := newTestServer(t, &MockService{})

	w := doRequest(s, http.MethodGet, "/api/v1/tasks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if _, ok := decode(t, w)["tasks"].([]interface{}); !ok {
		t.Errorf("tasks is not an array: %s", w.Body.String())
	}
}

func TestDelete(t *testing.T) {
	s := newTestServer(t, &MockService{
		DeleteFunc: func(ctx context.Context, id string) (*task.Task, error) {
			tk := sampleTask()
			tk.ID = id
			return tk, nil
		},
	})

	w := doRequest(s, http.MethodDelete, "/api/v1/tasks/t9", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decode(t, w)
	if body["deleted"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestLegacyRoutes(t *testing.T) {
	mock := &MockService{
		CreateFunc: func(ctx context.Context, in task.CreateInput) (*task.Task, error) {
			return sampleTask(), nil
		},
		GetFunc: func(ctx context.Context, id string) (*task.Task, error) {
			return sampleTask(), nil
		},
		UpdateFunc: func(ctx context.Context, id string, in task.UpdateInput) (*task.Task, error) {
			return sampleTask(), nil
		},
		DeleteFunc: func(ctx context.Context, id string) (*task.Task, error) {
			return sampleTask(), nil
		},
	}
	s := newTestServer(t, mock)
	payload := map[string]string{"title": "Write spec", "status": "NOT_STARTED", "priority": "HIGH"}

	tests := []struct {
		method string
		path   string
		body   interface{}
		want   int
	}{
		{http.MethodPost, "/api/v1/notion/create/", payload, http.StatusCreated},
		{http.MethodGet, "/api/v1/notion/list", nil, http.StatusOK},
		{http.MethodGet, "/api/v1/notion/findby/t1", nil, http.StatusOK},
		{http.MethodPut, "/api/v1/notion/update/t1", map[string]string{"title": "x"}, http.StatusOK},
		{http.MethodDelete, "/api/v1/notion/delete/t1", nil, http.StatusOK},
	}
	for _, tt := range tests {
		if w := doRequest(s, tt.method, tt.path, tt.body); w.Code != tt.want {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, w.Code, tt.want)
		}
	}
}

func TestMaintenanceRoutes(t *testing.T) {
	s := newTestServer(t, &MockService{
		DivergencesFunc: func(ctx context.Context) ([]*db.Divergence, error) {
			return nil, tasksync.ErrNoJournal
		},
	})

	if w := doRequest(s, http.MethodPost, "/api/v1/reconcile", nil); w.Code != http.StatusOK {
		t.Errorf("reconcile status = %d", w.Code)
	}
	w := doRequest(s, http.MethodPost, "/api/v1/mirror/rebuild", nil)
	if w.Code != http.StatusOK || decode(t, w)["rows"] != float64(4) {
		t.Errorf("rebuild = %d %s", w.Code, w.Body.String())
	}
	if w := doRequest(s, http.MethodGet, "/api/v1/divergences", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("divergences without journal status = %d, want 500", w.Code)
	}
}
