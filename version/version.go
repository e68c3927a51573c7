// Copyright (c) 2017-2020 The randchain developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package version provides the node version and a canonical string form of
// it for handshakes, user agents and the administrative API.
package version

import (
	"bytes"
	"fmt"
	"strings"
)

// semanticAlphabet is the set of characters allowed in the pre-release and
// build metadata portions of the version per the semantic versioning spec.
const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"

// These constants define the application version and follow the semantic
// versioning 2.0.0 spec (http://semver.org/).
const (
	Major uint = 0
	Minor uint = 1
	Patch uint = 0
)

// PreRelease is appended to the version with a dash separator when not
// empty.  It must only contain characters from semanticAlphabet.
var PreRelease = "dev"

// BuildMetadata is appended to the version with a plus separator when not
// empty.  It is set at link time for release builds.
var BuildMetadata = ""

// String returns the application version as a properly formed string per the
// semantic versioning 2.0.0 spec.
func String() string {
	// Start with the major, minor, and patch versions.
	version := fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)

	// Append pre-release version if there is one.  The hyphen called for
	// by the semantic versioning spec is automatically appended and
	// should not be contained in the pre-release string.
	preRelease := normalizeVerString(PreRelease)
	if preRelease != "" {
		version = fmt.Sprintf("%s-%s", version, preRelease)
	}

	// Append build metadata if there is some.  The plus called for by the
	// semantic versioning spec is automatically appended and should not
	// be contained in the build metadata string.
	build := normalizeVerString(BuildMetadata)
	if build != "" {
		version = fmt.Sprintf("%s+%s", version, build)
	}

	return version
}

// normalizeVerString returns the passed string stripped of all characters
// which are not valid according to the semantic versioning guidelines for
// pre-release and build metadata strings.
func normalizeVerString(str string) string {
	var result bytes.Buffer
	for _, r := range str {
		if strings.ContainsRune(semanticAlphabet, r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
