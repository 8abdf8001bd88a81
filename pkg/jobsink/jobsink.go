package jobsink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	// Blob drivers addressable from a trigger location.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/polisai/polis-chain/pkg/domain"
)

const (
	// DefaultLocation is where the job sink mounts the trigger event.
	DefaultLocation = "/etc/jobsink-event/event"
	// DefaultEnvFlag names the environment variable selecting job mode.
	DefaultEnvFlag = "CE_FROM_FILE"
	// FlagOn is the only value of the flag that selects job mode.
	FlagOn = "on"
)

// ErrTriggerNotFound is returned when no trigger exists at the location.
var ErrTriggerNotFound = errors.New("trigger event not found")

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

// JobMode reports whether the flag named name selects job mode. An unset flag
// selects service mode; any value but "on" is an error.
func JobMode(lookup LookupFunc, name string) (bool, error) {
	if name == "" {
		name = DefaultEnvFlag
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}

	value, ok := lookup(name)
	if !ok {
		return false, nil
	}
	if value != FlagOn {
		return false, fmt.Errorf("%w: %s=%q, only %q is accepted", domain.ErrJobModeFlag, name, value, FlagOn)
	}
	return true, nil
}

// Read loads the trigger payload. Locations with a URL scheme are opened as
// blobs; anything else is a local path.
func Read(ctx context.Context, location string) ([]byte, error) {
	bucketURL, key, ok := splitBlobURL(location)
	if !ok {
		data, err := os.ReadFile(location)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTriggerNotFound, location)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", location, err)
		}
		return data, nil
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	defer func() { _ = bucket.Close() }()

	return ReadFromBucket(ctx, bucket, key)
}

// ReadFromBucket loads the trigger payload stored under key.
func ReadFromBucket(ctx context.Context, bucket *blob.Bucket, key string) ([]byte, error) {
	data, err := bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrTriggerNotFound, key)
		}
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return data, nil
}

// splitBlobURL separates a blob location into the bucket URL and object key.
// file:// locations keep the directory as the bucket; other schemes use the
// host as the bucket and the path as the key.
func splitBlobURL(location string) (bucketURL, key string, ok bool) {
	if !strings.Contains(location, "://") {
		return "", "", false
	}
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" {
		return "", "", false
	}

	query := ""
	if u.RawQuery != "" {
		query = "?" + u.RawQuery
	}

	if u.Scheme == "file" {
		dir, file := path.Split(u.Path)
		return "file://" + dir + query, file, true
	}
	return u.Scheme + "://" + u.Host + query, strings.TrimPrefix(u.Path, "/"), true
}
