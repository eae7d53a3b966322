// Package api exposes the World over HTTP. Artefacts live under /{kind} and
// /{kind}/{id}; binding instances under /binding/{id}/{servant}.
//
// Publish bodies are the documents the startup files use: dataflow text for a
// pipeline, a YAML or JSON document for everything else. Responses are JSON
// unless the client asks for application/yaml. A published definition is
// returned exactly as it was sent.
package api
