// Package httpapi serves the browser-facing surface: disc review and
// metadata, library listing with
// filters, task listing and failed-task dismissal/resubmission, cleanup
// folder management, and the pause/resume marker. It is routed with
// julienschmidt/httprouter, decodes query parameters with gorilla/schema,
// and wraps every response with rs/cors, the same three-library
// combination working as one middleware stack.
package httpapi
