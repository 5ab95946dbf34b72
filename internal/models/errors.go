package models

import "errors"

var (
	ErrPreprocess      = errors.New("preprocess failure")
	ErrOCR             = errors.New("ocr failure")
	ErrTokenize        = errors.New("tokenize failure")
	ErrPersistence     = errors.New("persistence failure")
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)
