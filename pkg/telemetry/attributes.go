// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// ParseResourceAttributes parses a comma separated list of key=value pairs,
// e.g. "deployment.environment=prod,team=platform".
func ParseResourceAttributes(input string) (map[string]string, error) {
	attrs := make(map[string]string)
	for pair := range strings.SplitSeq(input, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid attribute %q: expected key=value", pair)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("empty attribute key in %q", pair)
		}
		attrs[key] = strings.TrimSpace(value)
	}
	return attrs, nil
}

// resourceAttributes converts attrs to OpenTelemetry attributes in key order.
func resourceAttributes(attrs map[string]string) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		out = append(out, attribute.String(k, attrs[k]))
	}
	return out
}
