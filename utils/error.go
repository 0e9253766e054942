package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// returned by strict deallocation when the batch pool holds less than requested
var ErrInsufficientAllocation = errors.New("insufficient batch allocation")
