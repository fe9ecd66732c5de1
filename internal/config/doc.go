// Package config loads declarative xqflow definitions and builds the
// executor, router and transformer they describe.
//
// A definition is a YAML, TOML, CUE or JSON file, chosen by extension:
//
//	query_file: route.xq
//	parameters:
//	  threshold: {value: 100}
//	  region: {expression: 'headers.region ?? "eu"'}
//	router:
//	  prefix: orders.
//	  default_output_channel: orders.unmatched
//
// Relative query files resolve against the directory holding the definition.
package config
