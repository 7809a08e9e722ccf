// Package state persists per-file download progress so that a later run can
// skip finished files and resume partial ones.
//
// State lives in a single JSON document in a gocloud.dev/blob bucket. The
// default bucket is a directory under the output directory:
//
//	{output}/.batchdl/state.json
//
// Every Update rewrites the document through Bucket.WriteAll, which only
// publishes the object once it has been fully written. A reader therefore
// sees either the previous or the new document, never a mix.
//
// # Document Format
//
//	{
//	  "version": 1,
//	  "run_id": "5f0c...",
//	  "updated_at": "2025-01-15T10:30:00Z",
//	  "files": {
//	    "sa_000000.tar": {
//	      "name": "sa_000000.tar",
//	      "total_size": 11298201600,
//	      "downloaded_bytes": 4194304,
//	      "status": "in_progress",
//	      "etag": "abc123",
//	      "updated_at": "2025-01-15T10:30:00Z"
//	    }
//	  }
//	}
package state
