package handler

import (
	"net/http"

	"CloudKeep/config"
	"CloudKeep/internal/dto"

	"github.com/gin-gonic/gin"
)

// TrashItems moves files and folders to the recycle bin. Folder trashing
// cascades over member files.
func TrashItems(c *gin.Context) {
	var req dto.TrashActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	userID := currentUser(c)
	for _, ref := range req.Items {
		if err := trash.Trash(c.Request.Context(), userID, ref); err != nil {
			fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"msg": "success"})
}

// ListTrash shows the recycle bin: trashed folders plus trashed files not
// nested under them, with the configured lifespan.
func ListTrash(c *gin.Context) {
	folders, views, err := trash.ListTrashed(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.TrashView{
		TrashLifespanDays: config.AppConfig.TrashLifespanDays,
		Folders:           folders,
		Files:             views,
	})
}

// RestoreItems brings trashed entities back, subject to quota admission.
func RestoreItems(c *gin.Context) {
	var req dto.TrashActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	userID := currentUser(c)
	for _, ref := range req.Items {
		if err := trash.Restore(c.Request.Context(), userID, ref); err != nil {
			fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"msg": "success"})
}

// DeleteItems permanently removes trashed entities.
func DeleteItems(c *gin.Context) {
	var req dto.TrashActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	userID := currentUser(c)
	for _, ref := range req.Items {
		if err := trash.Purge(c.Request.Context(), userID, ref); err != nil {
			fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"msg": "All items removed"})
}

// DeleteAll empties the user's recycle bin.
func DeleteAll(c *gin.Context) {
	if err := trash.PurgeAll(c.Request.Context(), currentUser(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "All items removed"})
}
