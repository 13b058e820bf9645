// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/stratadrive/internal/app/store/accesskeys"
	"github.com/dalemusser/stratadrive/internal/app/store/apilog"
	"github.com/dalemusser/stratadrive/internal/app/store/entry"
	"github.com/dalemusser/stratadrive/internal/app/system/blobstore"
	"github.com/dalemusser/stratadrive/internal/app/tree"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database and backend dependencies for this WAFFLE app.
//
// This struct is created in ConnectDB and passed to subsequent lifecycle
// hooks: EnsureSchema, Startup, BuildHandler, and Shutdown. The Shutdown
// hook is responsible for closing these connections gracefully when the
// application terminates.
type DBDeps struct {
	// MongoDB client and database
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Blobs holds file content; entry metadata points into it by
	// storage key.
	Blobs blobstore.Store

	// Stores over the MongoDB collections.
	Entries    *entry.Store
	AccessKeys *accesskeys.Store
	APILog     *apilog.Store

	// Tree coordinates entry structure, paths, trash, and blob release.
	Tree *tree.Manager
}
