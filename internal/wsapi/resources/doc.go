// Package resources implements the CRUD resource handlers of the remote
// API: users, groups, memberships, access points and the audit log.
//
// Every resource payload has the form
//
//	{"id": 12, "attributes": {...}}
//
// where id names the target of get, put and delete, and attributes carry
// the fields of create and put. Successful reads and writes answer with
// {"data": ...}; deletes answer with no content.
package resources
