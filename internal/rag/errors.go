package rag

import (
	"errors"
	"fmt"
)

// Sentinels for the pipeline's failure kinds. Use errors.Is against these and
// errors.As against the typed failures below for details.
var (
	ErrLoad              = errors.New("document load failed")
	ErrStore             = errors.New("vector store failure")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrGeneration        = errors.New("generation failed")
)

// LoadFailure means a source could not be read or parsed.
type LoadFailure struct {
	Source string
	Err    error
}

func (e *LoadFailure) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadFailure) Unwrap() error        { return e.Err }
func (e *LoadFailure) Is(target error) bool { return target == ErrLoad }

// StoreFailure means the vector engine could not complete an operation.
type StoreFailure struct {
	// Op names the failed operation (exists, query, add, delete).
	Op  string
	Err error
}

func (e *StoreFailure) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreFailure) Unwrap() error        { return e.Err }
func (e *StoreFailure) Is(target error) bool { return target == ErrStore }

// DimensionMismatch means an embedding's length differs from the collection's
// pinned dimension. It is fatal for the ingestion that produced it.
type DimensionMismatch struct {
	Collection string
	Want       int
	Got        int
}

func (e *DimensionMismatch) Error() string {
	return fmt.Sprintf("collection %q expects %d-dimensional embeddings, got %d", e.Collection, e.Want, e.Got)
}

func (e *DimensionMismatch) Is(target error) bool { return target == ErrDimensionMismatch }

// GenerationFailure means the language model call failed. It is reported per
// query and never retried.
type GenerationFailure struct {
	Err error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("generation: %v", e.Err)
}

func (e *GenerationFailure) Unwrap() error        { return e.Err }
func (e *GenerationFailure) Is(target error) bool { return target == ErrGeneration }
