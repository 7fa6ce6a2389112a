package router

import (
	"CloudKeep/internal/handler"
	"CloudKeep/utils"

	"github.com/gin-gonic/gin"
)

// InitRouter builds API routes.
func InitRouter() *gin.Engine {
	r := gin.Default()
	r.Use(utils.CORSMiddleware())

	api := r.Group("/api")
	{
		api.POST("/register", handler.Register)
		api.POST("/login", handler.Login)

		auth := api.Group("")
		auth.Use(utils.AuthMiddleware())

		file := auth.Group("/file")
		{
			file.POST("/list", handler.GetFileList)
			file.POST("/upload", handler.UploadFile)
			file.PUT("/:id", handler.UpdateFile)
			file.POST("/folder", handler.CreateFolder)
		}

		trash := auth.Group("/trash")
		{
			trash.GET("/list", handler.ListTrash)
			trash.POST("/add", handler.TrashItems)
			trash.POST("/restore", handler.RestoreItems)
			trash.POST("/delete", handler.DeleteItems)
			trash.POST("/delete/all", handler.DeleteAll)
		}

		auth.GET("/user/quota", handler.QuotaStatus)
	}
	return r
}
