// Package client implements the request sequencer used to drive replicas:
// a bounded run of Puts or Deletes against a single key, one request
// outstanding at a time, optionally followed by a trailing Get.
package client
