package renderer

import (
	"github.com/cockroachdb/errors"

	"vkframe/rollback"
)

// Error kinds. Every error returned by this package which falls in one of these
// classes is marked with the sentinel, test for it with errors.Is.
var (
	// ErrUnsupported means the environment lacks something the renderer needs:
	// an API version, an extension, a layer or a suitable physical device.
	ErrUnsupported = errors.New("unsupported")

	// ErrResourceCreation means the driver refused to create an object or to
	// allocate memory.
	ErrResourceCreation = errors.New("resource creation failed")

	// ErrDeviceLost means waiting for the GPU failed. The renderer cannot
	// continue after it.
	ErrDeviceLost = errors.New("device lost")

	// ErrEmptyUpload is returned when asked to upload zero bytes.
	ErrEmptyUpload = errors.New("empty upload")
)

func unsupported(err error, step string) error {
	return errors.Mark(errors.Wrap(err, step), ErrUnsupported)
}

func unsupportedf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrUnsupported)
}

func creationFailed(err error, step string) error {
	return errors.Mark(errors.Wrap(err, step), ErrResourceCreation)
}

func deviceLost(err error, step string) error {
	return errors.Mark(errors.Wrap(err, step), ErrDeviceLost)
}

// unwind runs what is left on rb. Undo failures are only logged since the
// caller is already returning the error which caused the unwinding.
func unwind(rb *rollback.Stack) {
	if err := rb.Unwind(); err != nil {
		Logger().Warn("rollback failed", "err", err)
	}
}
