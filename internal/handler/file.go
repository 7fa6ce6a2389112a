package handler

import (
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"CloudKeep/internal/dto"
	"CloudKeep/internal/storage"
	"CloudKeep/utils"

	"github.com/gin-gonic/gin"
)

// UploadFile accepts multipart uploads: bytes go to object storage first,
// then the metadata is accounted against quota. Headroom is pre-checked so
// oversized uploads are rejected before any bytes move.
func UploadFile(c *gin.Context) {
	userID := currentUser(c)
	ctx := c.Request.Context()

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file not found"})
		return
	}

	headroom, err := ledger.Headroom(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	if header.Size > headroom {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "not enough free disk space"})
		return
	}

	var folderID *uint64
	if raw := c.PostForm("folder_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid folder_id"})
			return
		}
		folderID = &parsed
	}
	shelfLifeDays, _ := strconv.Atoi(c.PostForm("shelf_life"))

	src, err := header.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer src.Close()

	blobID := utils.NewBlobID()
	contentType := header.Header.Get("Content-Type")
	if err := storage.Minio.PutBlob(ctx, blobID, src, header.Size, contentType); err != nil {
		fail(c, err)
		return
	}

	ext := strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	name := strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	view, err := files.UploadAccounted(ctx, userID, dto.UploadInput{
		BlobID:        blobID,
		Name:          name,
		Extension:     ext,
		Size:          header.Size,
		FolderID:      folderID,
		ShelfLifeDays: shelfLifeDays,
	})
	if err != nil {
		// 上传失败 回收已写入的对象
		if rmErr := storage.Minio.RemoveBlob(ctx, blobID); rmErr != nil {
			log.Printf("upload: remove orphan blob %s failed: %v", blobID, rmErr)
		}
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"file": view})
}

// UpdateFile renames, moves or re-schedules a live file.
func UpdateFile(c *gin.Context) {
	fileID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return
	}
	var req dto.UpdateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	view, err := files.UpdateFile(c.Request.Context(), currentUser(c), fileID, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"file": view})
}

// GetFileList returns live folders and files for the home or folder view.
func GetFileList(c *gin.Context) {
	var req dto.FileListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	userID := currentUser(c)
	ctx := c.Request.Context()

	views, err := files.ListLive(ctx, userID, req.FolderID)
	if err != nil {
		fail(c, err)
		return
	}
	resp := gin.H{"files": views}
	if req.FolderID == nil || *req.FolderID == 0 {
		folders, err := files.ListLiveFolders(ctx, userID)
		if err != nil {
			fail(c, err)
			return
		}
		resp["folders"] = folders
	}
	c.JSON(http.StatusOK, resp)
}

// CreateFolder creates a folder in the user's namespace.
func CreateFolder(c *gin.Context) {
	var req dto.CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	view, err := files.CreateFolder(c.Request.Context(), currentUser(c), req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"folder": view})
}
