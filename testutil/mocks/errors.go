package mocks

import "errors"

var errMockFailAfter = errors.New("mock: configured failure after N calls")
