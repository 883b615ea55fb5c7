// Package fhirstore implements store.TaskStore against a FHIR server speaking
// JSON over HTTP.
//
// Reads map 404 and 410 to *store.ResourceNotFoundError and 400 to
// *store.BadRequestError. Creates may carry an If-None-Exist query so that a
// repeated create returns the resource stored the first time. Updates are
// conditional on the version the caller read (If-Match); a stale version is
// reported as store.ErrConflict and never retried here. Searches are lazy and
// follow the server's next links.
package fhirstore
