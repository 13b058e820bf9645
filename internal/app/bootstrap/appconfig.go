// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig handles framework-level settings (HTTP/HTTPS
// ports, TLS, logging level and format, CORS, request limits, database
// timeouts). AppConfig is everything specific to this service: the
// MongoDB connection, the blob storage backend, and drive behavior
// like trash retention.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// Blob storage configuration
	StorageType      string // Storage backend: "local", "s3", or "minio"
	StorageLocalPath string // Local storage path (e.g., "./blobs")
	StorageLocalURL  string // URL prefix for serving local files (e.g., "/blobs")

	// S3/CloudFront configuration (only used if StorageType is "s3")
	StorageS3Region    string // AWS region
	StorageS3Bucket    string // S3 bucket name
	StorageS3Prefix    string // Key prefix (e.g., "blobs/")
	StorageCFURL       string // CloudFront distribution URL
	StorageCFKeyPairID string // CloudFront key pair ID
	StorageCFKeyPath   string // Path to CloudFront private key file

	// MinIO configuration (only used if StorageType is "minio")
	MinioEndpoint  string        // host:port of the MinIO server
	MinioAccessKey string        // MinIO access key
	MinioSecretKey string        // MinIO secret key
	MinioBucket    string        // Bucket for drive blobs
	MinioUseSSL    bool          // Use TLS when talking to MinIO
	MinioURLExpiry time.Duration // Presigned download URL lifetime (default: 1h)

	// Trash retention: entries sitting in the trash longer than this are
	// purged by the background sweep. Zero disables the sweep.
	TrashRetention time.Duration

	// Access key seeding: if set, ensure the given owner has at least one
	// active access key at startup. Dev convenience; the issued key is
	// logged once and cannot be recovered afterwards.
	SeedOwnerID  string // hex ObjectID of the owner to seed
	SeedKeyLabel string // label for the seeded key
}
