// Package config parses the declarative dialect: YAML documents that define
// sources, sinks, pipelines and bindings, and list the binding instances to
// link once everything is published.
//
//	source:
//	  - id: s1
//	    type: metronome
//	    config: { interval: 1s }
//	sink:
//	  - id: o1
//	    type: stdout
//	pipeline:
//	  - id: p2
//	    dataflow: |
//	      pipeline "p2" {
//	        link "in" "out" {}
//	      }
//	binding:
//	  - id: b
//	    links:
//	      /source/s1/{instance}/out: /pipeline/p1/{instance}/in
//	      /pipeline/p1/{instance}/out: ["/sink/o1/{instance}/in"]
//	mapping:
//	  /binding/b/01: {}
//
// The same per-artefact documents are accepted one at a time by
// ParseConnector and ParseBinding. JSON is valid input everywhere since it is
// a subset of YAML. Inside a flow sequence a URL with a placeholder has to be
// quoted, otherwise its brace opens a flow mapping.
package config
