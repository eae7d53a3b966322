// Package pipeline implements the dataflow dialect and the pipeline servant.
//
// A dataflow file is HCL containing one or more `pipeline` blocks:
//
//	pipeline "errors_only" {
//	  description = "keeps error events and tags them"
//
//	  operator "filter" "errors" {
//	    condition = event.level == "error"
//	  }
//	  operator "assign" "tag" {
//	    fields = { tagged = true, msg = upper(event.msg) }
//	  }
//
//	  link "in" "errors" {}
//	  link "errors" "tag" {}
//	  link "tag" "out" {}
//	}
//
// `in`, `out` and `err` are the pipeline's ports. Expressions see the event
// payload as `event`, the envelope as `meta` and the process environment,
// read when the servant is built, as `env`. A set of go-cty standard library
// functions and `try`/`can` is available too.
//
// Parsing only checks the structure of each block. The graph itself (edges,
// reachability, cycles) is checked when a servant is built from the
// definition, so a bad graph surfaces as a construction error.
package pipeline
