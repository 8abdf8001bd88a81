// Package jobsink loads the trigger event of a one-shot job.
//
// A job is selected by the CE_FROM_FILE environment flag. Its trigger is a
// CloudEvent in JSON structured format stored at a local path or a blob URL.
package jobsink
