package kernel

import (
	"fmt"

	"github.com/chazu/mortise/pkg/geomerr"
)

// Call runs a kernel operation and translates its failure into a
// geomerr.Error of kind KernelCallFailed. A panic raised inside the
// kernel is recovered here so that it never unwinds through pipeline
// code. Errors that already carry a kind pass through unchanged.
func Call[T any](op string, f func() (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			res = zero
			err = geomerr.New(geomerr.KernelCallFailed, op, fmt.Errorf("panic: %v", r))
		}
	}()
	res, err = f()
	if err != nil && geomerr.KindOf(err) == 0 {
		err = geomerr.New(geomerr.KernelCallFailed, op, err)
	}
	return res, err
}

// Guard is Call for operations without a result.
func Guard(op string, f func() error) error {
	_, err := Call(op, func() (struct{}, error) {
		return struct{}{}, f()
	})
	return err
}
