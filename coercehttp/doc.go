// Package coercehttp exposes a shape registry over HTTP and coerces request
// bodies against the stored descriptors.
//
// Routes:
//
//	GET    /shapes                 list stored names
//	PUT    /shapes/{name}          store a descriptor (application/json canonical
//	                               form, or application/schema+json)
//	GET    /shapes/{name}          fetch a descriptor; Accept selects the form
//	DELETE /shapes/{name}          remove a descriptor
//	POST   /shapes/{name}/coerce   coerce a JSON body
//	POST   /shapes/{name}/batch    coerce every element of a JSON array body
//
// Coerce routes take ?strategy=open|closed, ?all=true (collect every
// mismatch) and ?strict=true (reject unresolved bindings). A successful
// coercion answers 200 with {"value", "unresolved", "fingerprint"}; a failed
// one answers 422 with the diagnostics as JSON, or rendered as text when the
// client prefers text/plain.
//
// When an Authenticator is configured, PUT and DELETE require a bearer token.
// Every response carries an X-Request-Id header that also appears in logs.
package coercehttp
