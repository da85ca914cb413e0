package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/lgulliver/docdesk/internal/storage"
)

// Dependencies holds the services the routes are built on. Stats is nil when
// job history is disabled.
type Dependencies struct {
	Sessions SessionServiceInterface
	Blobs    storage.BlobStore
	Runner   JobRunnerInterface
	Prober   ToolProberInterface
	Stats    StatsProviderInterface
	Uploads  *UploadPolicy
}

// Register mounts every API route on router
func Register(router gin.IRouter, deps *Dependencies) {
	SessionRoutes(router, deps.Sessions, deps.Blobs, deps.Runner, deps.Uploads)
	DownloadRoutes(router, deps.Sessions, deps.Blobs)
	HealthRoutes(router, deps.Prober, deps.Runner, deps.Stats)
}
