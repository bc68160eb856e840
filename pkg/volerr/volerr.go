// Package volerr defines the error taxonomy shared by the coordinate,
// resampling and volume cache packages.
//
// Errors are PlatformErrors from github.com/jmgilman/go/errors, so callers
// can switch on the code and ask whether a failure is worth retrying.
package volerr

import (
	"fmt"

	"github.com/jmgilman/go/errors"
)

const (
	// CodeFormat marks a malformed header, transform or label file. Fatal to
	// the load of that one volume, never to the process.
	CodeFormat errors.ErrorCode = "FORMAT_ERROR"

	// CodeTransport marks a failed open of a volume or slice object.
	CodeTransport errors.ErrorCode = "TRANSPORT_ERROR"

	// CodeIncompleteRead marks a stream that ended before the expected
	// number of bytes was read.
	CodeIncompleteRead errors.ErrorCode = "INCOMPLETE_READ"

	// CodeSingularMatrix marks an affine inversion with a ~0 determinant.
	CodeSingularMatrix errors.ErrorCode = "SINGULAR_MATRIX"

	// CodeMissingTransform marks a space conversion without a configured
	// transform. Conversions themselves return a sentinel instead.
	CodeMissingTransform errors.ErrorCode = "MISSING_TRANSFORM"
)

// Format returns a FormatError.
func Format(format string, args ...interface{}) error {
	return errors.Newf(CodeFormat, format, args...)
}

// WrapFormat wraps err as a FormatError. Returns nil if err is nil.
func WrapFormat(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.WithClassification(
		errors.Wrapf(err, CodeFormat, format, args...),
		errors.ClassificationPermanent,
	)
}

// Transport wraps an open/read failure of name as a retryable TransportError.
func Transport(err error, name string) error {
	if err == nil {
		return nil
	}
	return errors.WithClassification(
		errors.WithContext(errors.Wrapf(err, CodeTransport, "cannot open %s", name), "name", name),
		errors.ClassificationRetryable,
	)
}

// IncompleteRead reports a premature end of data while reading name.
func IncompleteRead(name string, want, got int, cause error) error {
	msg := fmt.Sprintf("%s: premature end of data: read %d of %d bytes", name, got, want)
	var err errors.PlatformError
	if cause != nil {
		err = errors.Wrap(cause, CodeIncompleteRead, msg)
	} else {
		err = errors.New(CodeIncompleteRead, msg)
	}
	return errors.WithClassification(err, errors.ClassificationRetryable)
}

// SingularMatrix reports a non-invertible affine transform.
func SingularMatrix(det float64) error {
	return errors.Newf(CodeSingularMatrix, "transform is not invertible (determinant %g)", det)
}

// MissingTransform reports that no transform links from and to.
func MissingTransform(from, to fmt.Stringer) error {
	return errors.Newf(CodeMissingTransform, "no transform configured from %s to %s", from, to)
}

// IsFormat reports whether err is (or wraps) a FormatError.
func IsFormat(err error) bool {
	return errors.GetCode(err) == CodeFormat
}

// IsTransport reports whether err is a TransportError or IncompleteReadError.
func IsTransport(err error) bool {
	code := errors.GetCode(err)
	return code == CodeTransport || code == CodeIncompleteRead
}

// IsSingular reports whether err is a SingularMatrixError.
func IsSingular(err error) bool {
	return errors.GetCode(err) == CodeSingularMatrix
}

// IsMissingTransform reports whether err is a MissingTransformError.
func IsMissingTransform(err error) bool {
	return errors.GetCode(err) == CodeMissingTransform
}

// IsRetryable reports whether the next access may succeed where this one
// failed.
func IsRetryable(err error) bool {
	return errors.IsRetryable(err)
}
