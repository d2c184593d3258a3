package download

import "errors"

// Common errors
var (
	ErrAlreadyDownloaded     = errors.New("episode already downloaded")
	ErrUnsupportedSourceType = errors.New("playlist sources cannot be downloaded to a file")
	ErrTaskNotFound          = errors.New("download task not found")
	ErrNotCancellable        = errors.New("task is not pending or downloading")
)
