// Package apierr is the closed failure taxonomy of the remote API and its
// mapping onto wire status codes.
//
// Handlers return *Error values built with the constructors below. Any
// other error reaching the dispatcher is classified by Map: storage
// failures become GENERAL_FAILURE with a "Database Error: " prefix, and
// everything else becomes a generic GENERAL_FAILURE whose detail is only
// logged.
package apierr
