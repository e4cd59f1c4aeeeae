// Package ir holds the descriptors produced from declarations and consumed by
// the generators.
//
// A generation pass builds one CommandDescriptor per declared command and one
// FieldDescriptor per aggregate field. The host and remote generators read the
// same descriptor independently; neither mutates it.
//
// This package imports nothing internal.
package ir
