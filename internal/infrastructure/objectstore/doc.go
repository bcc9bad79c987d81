// Package objectstore stores book cover images in an S3-compatible bucket
// (AWS S3 or MinIO) using presigned URLs.
package objectstore
