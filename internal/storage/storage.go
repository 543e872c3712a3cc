package storage

import "context"

// Store abstracts where input images come from and where generated videos
// go. DownloadToLocal materializes a remote reference as a local temporary
// file the caller must clean up; UploadBytes persists data under a key and
// returns a URL a client can fetch the object from.
type Store interface {
	DownloadToLocal(ctx context.Context, remoteRef string) (string, error)
	UploadBytes(ctx context.Context, key string, data []byte) (string, error)
}
