// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"strings"

	"github.com/droidvet/droidvet/task"
)

// packageNameMarker is where the package name begins in a
// `pm list packages -f` line:
//
//	package:/data/app/~~id/com.example.app-hash/base.apk=com.example.app
//
// Paths vary wildly across Android versions but the base.apk= marker
// reliably precedes the name.
const packageNameMarker = "base.apk="

// DetectNewPackage diffs the before/after package listings and
// returns the name of the single newly installed package. Zero or
// more than one new entry is an ambiguous installation outcome and
// fails with a package_detection classified error: the session
// cannot safely decide what to launch.
func DetectNewPackage(before, after []string) (string, error) {
	known := make(map[string]struct{}, len(before))
	for _, line := range before {
		known[strings.TrimSpace(line)] = struct{}{}
	}

	var fresh []string
	for _, line := range after {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, seen := known[line]; !seen {
			fresh = append(fresh, line)
		}
	}

	switch len(fresh) {
	case 0:
		return "", task.NewError(task.ErrPackageDetection,
			"no new package after installation")
	case 1:
		return parsePackageName(fresh[0])
	default:
		return "", task.Errorf(task.ErrPackageDetection,
			"%d new packages after installation, expected exactly one", len(fresh))
	}
}

// parsePackageName extracts the package name after the base.apk=
// marker.
func parsePackageName(line string) (string, error) {
	index := strings.Index(line, packageNameMarker)
	if index < 0 {
		return "", task.Errorf(task.ErrPackageDetection,
			"cannot parse package listing line %q", line)
	}
	name := strings.TrimSpace(line[index+len(packageNameMarker):])
	if name == "" {
		return "", task.Errorf(task.ErrPackageDetection,
			"empty package name in listing line %q", line)
	}
	return name, nil
}
