package funcutils

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// PanicOrLogOnErr runs the provided closure and panics or logs when it errors.
func PanicOrLogOnErr(f func() error, panicOnErr bool, msg string) {
	err := f()
	if err == nil {
		return
	}
	if panicOnErr {
		panic(fmt.Sprintf("%s: %s", msg, err))
	}
	log.WithError(err).Error(msg)
}

// Unwrap returns the value and panics if the accompanying error is non-nil.
func Unwrap[T any](t T, err error) T {
	if err != nil {
		panic(err)
	}
	return t
}
