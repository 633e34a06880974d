package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard-dev/taskboard/db"
	"github.com/taskboard-dev/taskboard/internal/auth"
	"github.com/taskboard-dev/taskboard/internal/cache"
	"github.com/taskboard-dev/taskboard/internal/models"
	"github.com/taskboard-dev/taskboard/internal/router"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Setenv("JWT_SECRET", "test-secret")

	if err := auth.InitJWTSecret(); err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

func setupTest(t *testing.T) *gin.Engine {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate(gdb))
	require.NoError(t, db.Seed(gdb))

	db.DB = gdb

	// Cached results from earlier tests point at a different database.
	cache.Invalidate()

	return router.NewRouter()
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func register(t *testing.T, r *gin.Engine, username string) string {
	t.Helper()

	w := doJSON(t, r, http.MethodPost, "/api/auth/register", "", gin.H{
		"name":     username,
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.Token)

	return resp.Token
}

func createProject(t *testing.T, r *gin.Engine, token, name string) uint {
	t.Helper()

	w := doJSON(t, r, http.MethodPost, "/api/projects", token, gin.H{"name": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		ID uint `json:"id"`
	}
	decode(t, w, &resp)

	return resp.ID
}

func createTask(t *testing.T, r *gin.Engine, token string, projectID uint, title string) uint {
	t.Helper()

	path := fmt.Sprintf("/api/projects/%d/tasks", projectID)
	w := doJSON(t, r, http.MethodPost, path, token, gin.H{"title": title})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		ID uint `json:"id"`
	}
	decode(t, w, &resp)

	return resp.ID
}

func TestRegisterLoginMe(t *testing.T) {
	r := setupTest(t)

	register(t, r, "alice")

	// Duplicate registration is rejected.
	w := doJSON(t, r, http.MethodPost, "/api/auth/register", "", gin.H{
		"name":     "alice",
		"username": "alice",
		"email":    "alice@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "alice@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var login struct {
		Token string `json:"token"`
		User  struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	decode(t, w, &login)
	assert.Equal(t, "alice", login.User.Username)

	w = doJSON(t, r, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var me struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	decode(t, w, &me)
	assert.Equal(t, "alice@example.com", me.User.Email)
}

func TestAuthRequired(t *testing.T) {
	r := setupTest(t)

	w := doJSON(t, r, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/projects", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/projects", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProjectTrashLifecycle(t *testing.T) {
	r := setupTest(t)

	token := register(t, r, "alice")
	projectID := createProject(t, r, token, "Launch")
	createTask(t, r, token, projectID, "Design")
	createTask(t, r, token, projectID, "Build")

	listPath := "/api/projects"
	projectPath := fmt.Sprintf("/api/projects/%d", projectID)

	w := doJSON(t, r, http.MethodGet, listPath, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("ETag"))

	var projects []json.RawMessage
	decode(t, w, &projects)
	assert.Len(t, projects, 1)

	// Permanent delete on an active project is refused.
	w = doJSON(t, r, http.MethodDelete, projectPath+"/permanent", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Trash it.
	w = doJSON(t, r, http.MethodDelete, projectPath, token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, http.MethodGet, listPath, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &projects)
	assert.Empty(t, projects)

	w = doJSON(t, r, http.MethodGet, listPath+"/trash", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &projects)
	assert.Len(t, projects, 1)

	// Trashing twice conflicts.
	w = doJSON(t, r, http.MethodDelete, projectPath, token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Restore brings the project and its tasks back.
	w = doJSON(t, r, http.MethodPost, projectPath+"/restore", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, projectPath+"/tasks", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var tasks []json.RawMessage
	decode(t, w, &tasks)
	assert.Len(t, tasks, 2)

	// Trash again and purge for good.
	w = doJSON(t, r, http.MethodDelete, projectPath, token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, http.MethodDelete, projectPath+"/permanent", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var purged struct {
		Total int64 `json:"total"`
	}
	decode(t, w, &purged)
	// 2 tasks plus their "created" history rows.
	assert.Equal(t, int64(4), purged.Total)

	w = doJSON(t, r, http.MethodGet, listPath+"/trash", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &projects)
	assert.Empty(t, projects)
}

func TestProjectAccessControl(t *testing.T) {
	r := setupTest(t)

	ownerToken := register(t, r, "owner")
	strangerToken := register(t, r, "stranger")

	projectID := createProject(t, r, ownerToken, "Private")
	projectPath := fmt.Sprintf("/api/projects/%d", projectID)

	// A stranger cannot even learn the project exists.
	w := doJSON(t, r, http.MethodGet, projectPath, strangerToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodDelete, projectPath, strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Their project listing stays empty.
	w = doJSON(t, r, http.MethodGet, "/api/projects", strangerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var projects []json.RawMessage
	decode(t, w, &projects)
	assert.Empty(t, projects)
}

func TestMemberRoleEnforcement(t *testing.T) {
	r := setupTest(t)

	ownerToken := register(t, r, "owner")
	memberToken := register(t, r, "member")

	projectID := createProject(t, r, ownerToken, "Shared")
	membersPath := fmt.Sprintf("/api/projects/%d/members", projectID)

	w := doJSON(t, r, http.MethodPost, membersPath, ownerToken, gin.H{
		"username": "member",
		"role":     "team_member",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Members can read the project.
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/projects/%d", projectID), memberToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// But team members cannot trash it.
	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/projects/%d", projectID), memberToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Nor add other members.
	w = doJSON(t, r, http.MethodPost, membersPath, memberToken, gin.H{
		"username": "owner",
		"role":     "team_member",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTaskUpdateRecordsHistory(t *testing.T) {
	r := setupTest(t)

	token := register(t, r, "alice")
	projectID := createProject(t, r, token, "Launch")
	taskID := createTask(t, r, token, projectID, "Design")

	taskPath := fmt.Sprintf("/api/projects/%d/tasks/%d", projectID, taskID)

	w := doJSON(t, r, http.MethodPatch, taskPath, token, gin.H{
		"status":   "In Progress",
		"priority": "High",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated struct {
		Status   string `json:"status"`
		Priority string `json:"priority"`
	}
	decode(t, w, &updated)
	assert.Equal(t, "In Progress", updated.Status)
	assert.Equal(t, "High", updated.Priority)

	w = doJSON(t, r, http.MethodGet, taskPath+"/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var history []struct {
		Field    string `json:"field"`
		OldValue string `json:"old_value"`
		NewValue string `json:"new_value"`
	}
	decode(t, w, &history)

	// One "created" row plus one row per changed field.
	require.Len(t, history, 3)

	fields := make(map[string]bool)
	for _, h := range history {
		fields[h.Field] = true
	}
	assert.True(t, fields["created"])
	assert.True(t, fields["status"])
	assert.True(t, fields["priority"])
}

func TestTaskInvalidPriority(t *testing.T) {
	r := setupTest(t)

	token := register(t, r, "alice")
	projectID := createProject(t, r, token, "Launch")

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", projectID), token, gin.H{
		"title":    "Bad",
		"priority": "Urgent",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTaskListFiltersAndCacheInvalidation(t *testing.T) {
	r := setupTest(t)

	token := register(t, r, "alice")
	projectID := createProject(t, r, token, "Launch")
	taskID := createTask(t, r, token, projectID, "Design")
	createTask(t, r, token, projectID, "Build")

	tasksPath := fmt.Sprintf("/api/projects/%d/tasks", projectID)

	w := doJSON(t, r, http.MethodGet, tasksPath, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var tasks []struct {
		Title  string `json:"title"`
		Status string `json:"status"`
	}
	decode(t, w, &tasks)
	assert.Len(t, tasks, 2)
	firstETag := w.Header().Get("ETag")
	assert.NotEmpty(t, firstETag)

	// Move one task to Done; the cached listing must not survive the write.
	w = doJSON(t, r, http.MethodPatch, fmt.Sprintf("%s/%d", tasksPath, taskID), token, gin.H{
		"status": "Done",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, tasksPath+"?status=Done", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &tasks)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Design", tasks[0].Title)

	w = doJSON(t, r, http.MethodGet, tasksPath, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, firstETag, w.Header().Get("ETag"))
}

func TestCreateTemplateDuplicateName(t *testing.T) {
	r := setupTest(t)

	token := register(t, r, "alice")

	w := doJSON(t, r, http.MethodPost, "/api/templates", token, gin.H{
		"name":    "Kanban",
		"columns": []string{"Backlog", "Doing", "Done"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodPost, "/api/templates", token, gin.H{
		"name":    "Kanban",
		"columns": []string{"Other"},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/templates", token, gin.H{
		"name":    "Scrum",
		"columns": []string{"Todo", "Done"},
	})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestBoardGroupsTasksByColumn(t *testing.T) {
	r := setupTest(t)

	token := register(t, r, "alice")
	projectID := createProject(t, r, token, "Launch")
	taskID := createTask(t, r, token, projectID, "Design")
	createTask(t, r, token, projectID, "Build")

	w := doJSON(t, r, http.MethodPatch, fmt.Sprintf("/api/projects/%d/tasks/%d", projectID, taskID), token, gin.H{
		"status": "Done",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/projects/%d/board", projectID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var board struct {
		ProjectID uint `json:"project_id"`
		Columns   []struct {
			Name  string `json:"name"`
			Tasks []struct {
				Title string `json:"title"`
			} `json:"tasks"`
		} `json:"columns"`
	}
	decode(t, w, &board)

	assert.Equal(t, projectID, board.ProjectID)
	require.Len(t, board.Columns, 3)

	byName := make(map[string]int)
	for _, col := range board.Columns {
		byName[col.Name] = len(col.Tasks)
	}
	assert.Equal(t, 1, byName["To Do"])
	assert.Equal(t, 0, byName["In Progress"])
	assert.Equal(t, 1, byName["Done"])
}

func TestChildResourcesScopedToOwningProject(t *testing.T) {
	r := setupTest(t)

	victimToken := register(t, r, "victim")
	attackerToken := register(t, r, "attacker")

	victimProject := createProject(t, r, victimToken, "Private")
	victimTask := createTask(t, r, victimToken, victimProject, "Design")
	victimOther := createTask(t, r, victimToken, victimProject, "Build")

	// The attacker holds full access to a project of their own.
	attackerProject := createProject(t, r, attackerToken, "Decoy")
	createTask(t, r, attackerToken, attackerProject, "Bait")

	w := doJSON(t, r, http.MethodPost,
		fmt.Sprintf("/api/projects/%d/tasks/%d/subtasks", victimProject, victimTask),
		victimToken, gin.H{"title": "Sketch"})
	require.Equal(t, http.StatusCreated, w.Code)

	var subtask struct {
		ID uint `json:"id"`
	}
	decode(t, w, &subtask)

	w = doJSON(t, r, http.MethodPost,
		fmt.Sprintf("/api/projects/%d/tasks/%d/dependencies", victimProject, victimTask),
		victimToken, gin.H{"depends_on_id": victimOther})
	require.Equal(t, http.StatusCreated, w.Code)

	var dependency struct {
		ID uint `json:"id"`
	}
	decode(t, w, &dependency)

	blob := filepath.Join(t.TempDir(), "spec.pdf")
	require.NoError(t, os.WriteFile(blob, []byte("blob"), 0o644))

	attachment := models.FileAttachment{TaskID: victimTask, Filename: "spec.pdf", Path: blob}
	require.NoError(t, db.DB.Create(&attachment).Error)

	// Pairing the victim's task with the attacker's own project must read
	// as a missing task, never touch the row.
	w = doJSON(t, r, http.MethodDelete,
		fmt.Sprintf("/api/projects/%d/tasks/%d/subtasks/%d", attackerProject, victimTask, subtask.ID),
		attackerToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodDelete,
		fmt.Sprintf("/api/projects/%d/tasks/%d/dependencies/%d", attackerProject, victimTask, dependency.ID),
		attackerToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodGet,
		fmt.Sprintf("/api/projects/%d/tasks/%d/attachments/%d/download", attackerProject, victimTask, attachment.ID),
		attackerToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodDelete,
		fmt.Sprintf("/api/projects/%d/tasks/%d/attachments/%d", attackerProject, victimTask, attachment.ID),
		attackerToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Everything is still there for the victim.
	w = doJSON(t, r, http.MethodGet,
		fmt.Sprintf("/api/projects/%d/tasks/%d/subtasks", victimProject, victimTask),
		victimToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var subtasks []json.RawMessage
	decode(t, w, &subtasks)
	assert.Len(t, subtasks, 1)

	w = doJSON(t, r, http.MethodGet,
		fmt.Sprintf("/api/projects/%d/tasks/%d/dependencies", victimProject, victimTask),
		victimToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var dependencies []json.RawMessage
	decode(t, w, &dependencies)
	assert.Len(t, dependencies, 1)

	var count int64
	require.NoError(t, db.DB.Model(&models.FileAttachment{}).Where("id = ?", attachment.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err := os.Stat(blob)
	assert.NoError(t, err)
}

func TestSubtaskAndDependencyFlow(t *testing.T) {
	r := setupTest(t)

	token := register(t, r, "alice")
	projectID := createProject(t, r, token, "Launch")
	design := createTask(t, r, token, projectID, "Design")
	build := createTask(t, r, token, projectID, "Build")

	subtasksPath := fmt.Sprintf("/api/projects/%d/tasks/%d/subtasks", projectID, design)

	w := doJSON(t, r, http.MethodPost, subtasksPath, token, gin.H{"title": "Sketch"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, subtasksPath, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var subtasks []json.RawMessage
	decode(t, w, &subtasks)
	assert.Len(t, subtasks, 1)

	depsPath := fmt.Sprintf("/api/projects/%d/tasks/%d/dependencies", projectID, design)

	// A task cannot depend on itself.
	w = doJSON(t, r, http.MethodPost, depsPath, token, gin.H{"depends_on_id": design})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, depsPath, token, gin.H{"depends_on_id": build})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Duplicate edges conflict.
	w = doJSON(t, r, http.MethodPost, depsPath, token, gin.H{"depends_on_id": build})
	assert.Equal(t, http.StatusConflict, w.Code)
}
