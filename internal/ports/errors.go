package ports

import "errors"

// Store sentinels shared by every implementation of the interfaces in this package.
var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicate          = errors.New("record already exists")
	ErrInUse              = errors.New("record is referenced by other records")
	ErrEnrollmentConflict = errors.New("student already enrolled in another section of this course")
)
