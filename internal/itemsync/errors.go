package itemsync

import "errors"

var (
	// ErrNotFound is returned when an operation names an item that is not in
	// the collection.
	ErrNotFound = errors.New("item not found")

	// ErrNoSession is returned when no identity is bound to the engine.
	ErrNoSession = errors.New("no signed-in user")

	// ErrLocalPersistence wraps Local Store failures. The in-memory state is
	// still updated when it is returned.
	ErrLocalPersistence = errors.New("local persistence failed")

	// ErrRemoteUnavailable wraps Remote Item Service failures. The affected
	// item stays pending.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrUploadFailed wraps blob storage failures.
	ErrUploadFailed = errors.New("image upload failed")

	// ErrFileNotFound is returned when a local image reference points to a
	// file that does not exist.
	ErrFileNotFound = errors.New("image file not found")
)
