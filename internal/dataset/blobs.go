// Package dataset stores uploaded datasets and turns them into the textual
// context handed to the agents.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned by Blobs.Get for a missing key.
var ErrNotFound = errors.New("blob not found")

// Object describes a stored blob.
type Object struct {
	Key      string    `json:"key"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Blobs is a flat key/value object store.
type Blobs interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]Object, error)
}

const resultsDir = "processed-results"

// Key returns the storage key of a user's uploaded file: "<user>/<file name>".
func Key(userID, filename string) (string, error) {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if strings.TrimSpace(userID) == "" || name == "." || name == "/" || name == ".." {
		return "", fmt.Errorf("invalid dataset key for %q", filename)
	}
	return userID + "/" + name, nil
}

// ResultKey returns where the result document of an analysis over fileKey is
// stored: "<user>/processed-results/<file>_result.json".
func ResultKey(userID, fileKey string) string {
	base := strings.TrimSuffix(path.Base(fileKey), ".csv")
	return ResultsPrefix(userID) + base + "_result.json"
}

// ResultsPrefix is the key prefix under which a user's result documents live.
func ResultsPrefix(userID string) string {
	return userID + "/" + resultsDir + "/"
}

// Owns reports whether key belongs to userID.
func Owns(userID, key string) bool {
	return userID != "" && strings.HasPrefix(key, userID+"/")
}
