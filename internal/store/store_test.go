package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard-dev/taskboard/db"
	"github.com/taskboard-dev/taskboard/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// A single connection keeps every statement on the same in-memory
	// database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate(gdb))

	return gdb
}

func createUser(t *testing.T, gdb *gorm.DB, username string) models.User {
	t.Helper()

	user := models.User{
		Name:         username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	}
	require.NoError(t, gdb.Create(&user).Error)

	return user
}

func createProject(t *testing.T, gdb *gorm.DB, owner models.User, name string) models.Project {
	t.Helper()

	project := models.Project{Name: name, OwnerID: owner.ID}
	require.NoError(t, gdb.Create(&project).Error)

	return project
}

func createTask(t *testing.T, gdb *gorm.DB, project models.Project, creator models.User, title string) models.Task {
	t.Helper()

	task := models.Task{
		ProjectID: project.ID,
		Title:     title,
		Status:    "To Do",
		Priority:  "Medium",
		CreatorID: creator.ID,
	}
	require.NoError(t, gdb.Create(&task).Error)

	return task
}

func countRows(t *testing.T, gdb *gorm.DB, model interface{}) int64 {
	t.Helper()

	var count int64
	require.NoError(t, gdb.Unscoped().Model(model).Count(&count).Error)

	return count
}

// Builds the "Launch" scenario: 3 tasks, the first with 2 subtasks and a
// dependency on the second.
func buildLaunchProject(t *testing.T, gdb *gorm.DB) (models.Project, []models.Task) {
	t.Helper()

	owner := createUser(t, gdb, "owner")
	project := createProject(t, gdb, owner, "Launch")

	t1 := createTask(t, gdb, project, owner, "Design")
	t2 := createTask(t, gdb, project, owner, "Build")
	t3 := createTask(t, gdb, project, owner, "Ship")

	require.NoError(t, gdb.Create(&models.Subtask{TaskID: t1.ID, Title: "Sketch", Status: "To Do"}).Error)
	require.NoError(t, gdb.Create(&models.Subtask{TaskID: t1.ID, Title: "Review", Status: "To Do"}).Error)
	require.NoError(t, gdb.Create(&models.TaskDependency{TaskID: t1.ID, DependsOnID: t2.ID}).Error)

	return project, []models.Task{t1, t2, t3}
}

func TestSoftDeleteProjectCascadesToTasks(t *testing.T) {
	gdb := newTestDB(t)
	project, tasks := buildLaunchProject(t, gdb)

	require.NoError(t, SoftDeleteProject(gdb, project.ID))

	var got models.Project
	require.NoError(t, gdb.Unscoped().First(&got, project.ID).Error)
	assert.True(t, got.DeletedAt.Valid)

	for _, task := range tasks {
		var gotTask models.Task
		require.NoError(t, gdb.Unscoped().First(&gotTask, task.ID).Error)
		assert.True(t, gotTask.DeletedAt.Valid, "task %d should be trashed", task.ID)
	}

	// Trashed rows vanish from normal listings.
	var live []models.Project
	require.NoError(t, gdb.Find(&live).Error)
	assert.Empty(t, live)
}

func TestSoftDeleteProjectNotFound(t *testing.T) {
	gdb := newTestDB(t)

	err := SoftDeleteProject(gdb, 999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSoftDeleteProjectTwiceFails(t *testing.T) {
	gdb := newTestDB(t)
	project, _ := buildLaunchProject(t, gdb)

	require.NoError(t, SoftDeleteProject(gdb, project.ID))

	before := countRows(t, gdb, &models.Task{})

	err := SoftDeleteProject(gdb, project.ID)
	assert.True(t, errors.Is(err, ErrAlreadyTrashed))

	// The failed second call wrote nothing.
	assert.Equal(t, before, countRows(t, gdb, &models.Task{}))
}

func TestRestoreProjectRoundTrip(t *testing.T) {
	gdb := newTestDB(t)

	project, tasks := buildLaunchProject(t, gdb)

	other := createUser(t, gdb, "other")
	otherProject := createProject(t, gdb, other, "Untouched")
	otherTask := createTask(t, gdb, otherProject, other, "Keep me")

	require.NoError(t, SoftDeleteProject(gdb, project.ID))
	require.NoError(t, RestoreProject(gdb, project.ID))

	var got models.Project
	require.NoError(t, gdb.First(&got, project.ID).Error)
	assert.False(t, got.DeletedAt.Valid)

	for _, task := range tasks {
		var gotTask models.Task
		require.NoError(t, gdb.First(&gotTask, task.ID).Error)
		assert.False(t, gotTask.DeletedAt.Valid)
	}

	// The unrelated project was never touched.
	var gotOther models.Task
	require.NoError(t, gdb.First(&gotOther, otherTask.ID).Error)
	assert.False(t, gotOther.DeletedAt.Valid)
}

func TestRestoreActiveProjectFails(t *testing.T) {
	gdb := newTestDB(t)
	project, _ := buildLaunchProject(t, gdb)

	err := RestoreProject(gdb, project.ID)
	assert.True(t, errors.Is(err, ErrActiveProject))
}

func TestPermanentDeleteRequiresTrash(t *testing.T) {
	gdb := newTestDB(t)
	project, _ := buildLaunchProject(t, gdb)

	_, err := PermanentDeleteProject(gdb, project.ID)
	assert.True(t, errors.Is(err, ErrActiveProject))

	// Guard performed no writes.
	assert.Equal(t, int64(1), countRows(t, gdb, &models.Project{}))
	assert.Equal(t, int64(3), countRows(t, gdb, &models.Task{}))
	assert.Equal(t, int64(2), countRows(t, gdb, &models.Subtask{}))
	assert.Equal(t, int64(1), countRows(t, gdb, &models.TaskDependency{}))
}

func TestPermanentDeleteCascade(t *testing.T) {
	gdb := newTestDB(t)
	project, _ := buildLaunchProject(t, gdb)

	require.NoError(t, SoftDeleteProject(gdb, project.ID))

	result, err := PermanentDeleteProject(gdb, project.ID)
	require.NoError(t, err)

	// 0 history + 1 dependency + 2 subtasks + 3 tasks; the project row is
	// not part of the per-table report.
	assert.Equal(t, int64(0), result.History)
	assert.Equal(t, int64(1), result.Dependencies)
	assert.Equal(t, int64(2), result.Subtasks)
	assert.Equal(t, int64(3), result.Tasks)
	assert.Equal(t, int64(6), result.Total())

	// No orphans anywhere.
	assert.Zero(t, countRows(t, gdb, &models.Project{}))
	assert.Zero(t, countRows(t, gdb, &models.Task{}))
	assert.Zero(t, countRows(t, gdb, &models.Subtask{}))
	assert.Zero(t, countRows(t, gdb, &models.TaskDependency{}))
	assert.Zero(t, countRows(t, gdb, &models.TaskHistory{}))
	assert.Zero(t, countRows(t, gdb, &models.FileAttachment{}))
}

func TestPermanentDeleteLeavesOtherProjectsAlone(t *testing.T) {
	gdb := newTestDB(t)
	project, _ := buildLaunchProject(t, gdb)

	other := createUser(t, gdb, "other")
	otherProject := createProject(t, gdb, other, "Survivor")
	otherTask := createTask(t, gdb, otherProject, other, "Still here")
	require.NoError(t, gdb.Create(&models.Subtask{TaskID: otherTask.ID, Title: "Me too", Status: "To Do"}).Error)

	require.NoError(t, SoftDeleteProject(gdb, project.ID))

	_, err := PermanentDeleteProject(gdb, project.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(1), countRows(t, gdb, &models.Project{}))
	assert.Equal(t, int64(1), countRows(t, gdb, &models.Task{}))
	assert.Equal(t, int64(1), countRows(t, gdb, &models.Subtask{}))
}

func TestPermanentDeleteRollsBackOnFailure(t *testing.T) {
	gdb := newTestDB(t)
	project, _ := buildLaunchProject(t, gdb)

	require.NoError(t, SoftDeleteProject(gdb, project.ID))

	forced := errors.New("forced failure")

	// Run the cascade, then fail before the transaction can commit.
	err := gdb.Transaction(func(tx *gorm.DB) error {
		if _, _, err := cascadeProjectDelete(tx, project.ID); err != nil {
			return err
		}
		return forced
	})
	require.ErrorIs(t, err, forced)

	// Everything is still there.
	assert.Equal(t, int64(1), countRows(t, gdb, &models.Project{}))
	assert.Equal(t, int64(3), countRows(t, gdb, &models.Task{}))
	assert.Equal(t, int64(2), countRows(t, gdb, &models.Subtask{}))
	assert.Equal(t, int64(1), countRows(t, gdb, &models.TaskDependency{}))
}

func TestPermanentDeleteCountsHistoryRows(t *testing.T) {
	gdb := newTestDB(t)
	project, tasks := buildLaunchProject(t, gdb)

	for i := 0; i < 4; i++ {
		require.NoError(t, gdb.Create(&models.TaskHistory{
			TaskID:    tasks[0].ID,
			UserID:    1,
			Field:     "status",
			ChangedAt: time.Now(),
		}).Error)
	}

	require.NoError(t, SoftDeleteProject(gdb, project.ID))

	result, err := PermanentDeleteProject(gdb, project.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(4), result.History)
	assert.Zero(t, countRows(t, gdb, &models.TaskHistory{}))
}

func writeBlob(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("blob"), 0o644))

	return path
}

func TestPermanentDeleteRemovesAttachmentBlobs(t *testing.T) {
	gdb := newTestDB(t)
	project, tasks := buildLaunchProject(t, gdb)

	path := writeBlob(t, "spec.pdf")
	require.NoError(t, gdb.Create(&models.FileAttachment{
		TaskID:   tasks[0].ID,
		Filename: "spec.pdf",
		Path:     path,
	}).Error)

	require.NoError(t, SoftDeleteProject(gdb, project.ID))

	result, err := PermanentDeleteProject(gdb, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Attachments)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "blob should be removed after the purge commits")
}

func TestRolledBackPurgeKeepsBlobs(t *testing.T) {
	gdb := newTestDB(t)
	project, tasks := buildLaunchProject(t, gdb)

	path := writeBlob(t, "notes.txt")
	require.NoError(t, gdb.Create(&models.FileAttachment{
		TaskID:   tasks[0].ID,
		Filename: "notes.txt",
		Path:     path,
	}).Error)

	require.NoError(t, SoftDeleteProject(gdb, project.ID))

	forced := errors.New("forced failure")

	err := gdb.Transaction(func(tx *gorm.DB) error {
		if _, _, err := cascadeProjectDelete(tx, project.ID); err != nil {
			return err
		}
		return forced
	})
	require.ErrorIs(t, err, forced)

	// File removal happens only after commit, so the blob survives.
	_, err = os.Stat(path)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), countRows(t, gdb, &models.FileAttachment{}))
}

func TestTaskSoftDeleteAndRestore(t *testing.T) {
	gdb := newTestDB(t)
	project, tasks := buildLaunchProject(t, gdb)

	require.NoError(t, SoftDeleteTask(gdb, project.ID, tasks[0].ID))

	err := SoftDeleteTask(gdb, project.ID, tasks[0].ID)
	assert.True(t, errors.Is(err, ErrAlreadyTrashed))

	require.NoError(t, RestoreTask(gdb, project.ID, tasks[0].ID))

	var got models.Task
	require.NoError(t, gdb.First(&got, tasks[0].ID).Error)
	assert.False(t, got.DeletedAt.Valid)
}

func TestRestoreTaskBlockedByTrashedProject(t *testing.T) {
	gdb := newTestDB(t)
	project, tasks := buildLaunchProject(t, gdb)

	require.NoError(t, SoftDeleteProject(gdb, project.ID))

	err := RestoreTask(gdb, project.ID, tasks[0].ID)
	assert.True(t, errors.Is(err, ErrProjectTrashed))
}

func TestPermanentDeleteTaskCascade(t *testing.T) {
	gdb := newTestDB(t)
	project, tasks := buildLaunchProject(t, gdb)

	require.NoError(t, gdb.Create(&models.FileAttachment{
		TaskID:   tasks[0].ID,
		Filename: "spec.pdf",
		Path:     "uploads/spec.pdf",
	}).Error)

	_, err := PermanentDeleteTask(gdb, project.ID, tasks[0].ID)
	assert.True(t, errors.Is(err, ErrActiveTask))

	require.NoError(t, SoftDeleteTask(gdb, project.ID, tasks[0].ID))

	result, err := PermanentDeleteTask(gdb, project.ID, tasks[0].ID)
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Dependencies)
	assert.Equal(t, int64(2), result.Subtasks)
	assert.Equal(t, int64(1), result.Attachments)
	assert.Equal(t, int64(1), result.Tasks)

	// The other two tasks survive.
	assert.Equal(t, int64(2), countRows(t, gdb, &models.Task{}))
	assert.Zero(t, countRows(t, gdb, &models.Subtask{}))
	assert.Zero(t, countRows(t, gdb, &models.TaskDependency{}))
	assert.Zero(t, countRows(t, gdb, &models.FileAttachment{}))
}

func TestListTasksFilters(t *testing.T) {
	gdb := newTestDB(t)
	project, tasks := buildLaunchProject(t, gdb)

	due := time.Now().Add(2 * time.Hour)
	require.NoError(t, gdb.Model(&models.Task{}).Where("id = ?", tasks[0].ID).
		Updates(map[string]interface{}{"status": "Done", "priority": "High", "due_date": due}).Error)

	all, err := ListTasks(gdb, project.ID, TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	done, err := ListTasks(gdb, project.ID, TaskFilter{Status: "Done"})
	require.NoError(t, err)
	assert.Len(t, done, 1)

	high, err := ListTasks(gdb, project.ID, TaskFilter{Priority: "High"})
	require.NoError(t, err)
	assert.Len(t, high, 1)

	cutoff := time.Now().Add(24 * time.Hour)
	soon, err := ListTasks(gdb, project.ID, TaskFilter{DueBefore: &cutoff})
	require.NoError(t, err)
	assert.Len(t, soon, 1)

	// Trashed tasks drop out of listings.
	require.NoError(t, SoftDeleteTask(gdb, project.ID, tasks[1].ID))

	all, err = ListTasks(gdb, project.ID, TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListProjectsForUser(t *testing.T) {
	gdb := newTestDB(t)

	owner := createUser(t, gdb, "owner")
	member := createUser(t, gdb, "member")
	stranger := createUser(t, gdb, "stranger")

	owned := createProject(t, gdb, owner, "Owned")
	createProject(t, gdb, stranger, "Foreign")

	require.NoError(t, gdb.Create(&models.ProjectMembership{
		UserID:    member.ID,
		ProjectID: owned.ID,
		Role:      "team_member",
	}).Error)

	forOwner, err := ListProjectsForUser(gdb, owner.ID)
	require.NoError(t, err)
	assert.Len(t, forOwner, 1)

	forMember, err := ListProjectsForUser(gdb, member.ID)
	require.NoError(t, err)
	assert.Len(t, forMember, 1)

	forStranger, err := ListProjectsForUser(gdb, stranger.ID)
	require.NoError(t, err)
	assert.Len(t, forStranger, 1)
	assert.Equal(t, "Foreign", forStranger[0].Name)
}

func TestListTrashedProjects(t *testing.T) {
	gdb := newTestDB(t)
	project, _ := buildLaunchProject(t, gdb)

	trash, err := ListTrashedProjects(gdb, project.OwnerID, false)
	require.NoError(t, err)
	assert.Empty(t, trash)

	require.NoError(t, SoftDeleteProject(gdb, project.ID))

	trash, err = ListTrashedProjects(gdb, project.OwnerID, false)
	require.NoError(t, err)
	require.Len(t, trash, 1)
	assert.Equal(t, project.ID, trash[0].ID)
}

func TestListTrashedProjectsMatchesRestoreRights(t *testing.T) {
	gdb := newTestDB(t)
	project, _ := buildLaunchProject(t, gdb)

	manager := createUser(t, gdb, "manager")
	worker := createUser(t, gdb, "worker")
	admin := createUser(t, gdb, "admin")

	require.NoError(t, gdb.Create(&models.ProjectMembership{
		UserID:    manager.ID,
		ProjectID: project.ID,
		Role:      "project_admin",
	}).Error)
	require.NoError(t, gdb.Create(&models.ProjectMembership{
		UserID:    worker.ID,
		ProjectID: project.ID,
		Role:      "team_member",
	}).Error)

	require.NoError(t, SoftDeleteProject(gdb, project.ID))

	// A project_admin member can restore the project, so they see it in
	// the trash too.
	trash, err := ListTrashedProjects(gdb, manager.ID, false)
	require.NoError(t, err)
	require.Len(t, trash, 1)
	assert.Equal(t, project.ID, trash[0].ID)

	// A plain team member cannot restore and sees nothing.
	trash, err = ListTrashedProjects(gdb, worker.ID, false)
	require.NoError(t, err)
	assert.Empty(t, trash)

	// A global admin sees every trashed project regardless of membership.
	trash, err = ListTrashedProjects(gdb, admin.ID, true)
	require.NoError(t, err)
	require.Len(t, trash, 1)
}
