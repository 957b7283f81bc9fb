// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads warecell configuration from a single YAML file.
//
// The file is named by the WARECELL_CONFIG environment variable or an
// explicit --config flag; there is no search path and no automatic
// discovery, so a deployment's configuration is always auditable from
// one place. Environment-specific sections (development, staging,
// production) override base values when the environment matches, and
// ${VAR} patterns are expanded from the process environment so broker
// credentials can stay out of the file itself.
package config
