// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

// Blob drivers for non-HTTP candidate URLs.
import (
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)
