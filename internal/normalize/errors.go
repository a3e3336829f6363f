package normalize

import "errors"

// Domain errors for the normalize package.
var (
	// ErrConversion is returned when a byte value cannot be converted to the
	// target type of its code (malformed date-time, invalid UTF-8).
	ErrConversion = errors.New("normalize: conversion failed")

	// ErrUnknownTarget is returned when a conversion table names a target type
	// that does not exist.
	ErrUnknownTarget = errors.New("normalize: unknown target type")

	// ErrDuplicateCode is returned when a conversion table lists a code twice.
	ErrDuplicateCode = errors.New("normalize: code listed twice")
)
