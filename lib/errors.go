package lib

import "errors"

var ErrInvalidInput = errors.New("invalid input")
