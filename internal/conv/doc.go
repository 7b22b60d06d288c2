// Package conv provides checked integer conversions.
//
// Use them where a value crosses from one width or signedness to another and
// the bound is not already guaranteed by the caller, e.g. block header
// fields read back from mapped memory or handle ids derived from slice
// lengths.
package conv
