// Package contentstore keeps course documents: uploaded source material and
// the raw generated module payloads.
package contentstore

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("document not found")

// Store is a flat key/value document store.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every document whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	Backend() string
}

// CoursePrefix is the key prefix of every document belonging to a course.
func CoursePrefix(courseID uint) string {
	return fmt.Sprintf("courses/%d/", courseID)
}

// SourceKey is where the document uploaded with a course prompt lives.
func SourceKey(courseID uint) string {
	return CoursePrefix(courseID) + "source.txt"
}

// ModuleKey is where the generated payload of a module lives.
func ModuleKey(courseID uint, moduleNumber int) string {
	return fmt.Sprintf("%smodules/%d.json", CoursePrefix(courseID), moduleNumber)
}
