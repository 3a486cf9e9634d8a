// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package devicepool

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// LoadSeed reads an operator-maintained endpoint seed file and
// registers its endpoints as available. The file is JSONC (operators
// annotate long-lived lab devices with comments) with the same shape
// as the automation handoff:
//
//	{
//	    // rack 3, keep for regression triage
//	    "emulator": ["http://emulator-lab1:5555"]
//	}
//
// A missing file is not an error; an unreadable or malformed one is.
func (p *Pool) LoadSeed(path, class string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("devicepool: reading seed %s: %w", path, err)
	}

	var doc handoff
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return fmt.Errorf("devicepool: parsing seed %s: %w", path, err)
	}

	uris := doc[class]
	if len(uris) > 0 {
		p.AddEndpoints(uris)
		p.logger.Info("seed endpoints loaded", "path", path, "count", len(uris))
	}
	return nil
}
