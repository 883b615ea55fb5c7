// Package store defines the contract of the Task Store, the FHIR server that
// holds Task work items together with the resources they reference, and the
// error taxonomy every implementation maps its failures onto.
package store
