package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/taskboard-dev/taskboard/db"
	"github.com/taskboard-dev/taskboard/internal/authz"
	"github.com/taskboard-dev/taskboard/internal/cache"
)

// mutated runs after every committed write: the whole query cache is cleared
// (there is no fine-grained invalidation) and board subscribers are told to
// re-render.
func mutated(projectID uint) {
	cache.Invalidate()
	BroadcastRefresh(strconv.FormatUint(uint64(projectID), 10))
}

// requireAccess aborts with 404 when the user may not see the project. Not
// revealing whether the project exists mirrors the ownership filters used
// throughout the read queries.
func requireAccess(ctx *gin.Context, userID, projectID uint) bool {
	if !authz.CanAccessProject(db.DB, userID, projectID) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return false
	}
	return true
}

// requireRole aborts with 403 when the user lacks the project-scoped role.
func requireRole(ctx *gin.Context, userID, projectID uint, role string) bool {
	if !authz.HasProjectRole(db.DB, userID, projectID, role) {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
		return false
	}
	return true
}
