package repository

import "errors"

var (
	// ErrNotFound возвращается, когда запись не найдена.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict возвращается при неудачном compare-and-swap по версии.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate возвращается при нарушении уникальности.
	ErrDuplicate = errors.New("duplicate record")
)
