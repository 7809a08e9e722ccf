package state

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
)

// DirName is the directory under the output directory that holds local
// state when no state URL is configured.
const DirName = ".batchdl"

// OpenBucket opens the bucket for state. An empty url selects a local
// directory bucket at dir, created on demand. Otherwise url is any
// gocloud.dev/blob URL whose driver is linked into the binary
// (file://, mem://, s3://, gs://).
func OpenBucket(ctx context.Context, url, dir string) (*blob.Bucket, error) {
	if url == "" {
		b, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
		if err != nil {
			return nil, fmt.Errorf("state: open directory %s: %w", dir, err)
		}
		return b, nil
	}

	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("state: open bucket %s: %w", url, err)
	}
	return b, nil
}
