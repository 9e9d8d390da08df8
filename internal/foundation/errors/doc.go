// Package errors provides the classified error primitives used across docdiagram.
//
// A ClassifiedError carries a category (config, network, structure, render, ...),
// a severity and a retry strategy next to the message and wrapped cause. The
// fluent ErrorBuilder is the usual way to create one; the CLI and HTTP adapters
// turn classified errors into exit codes and JSON responses.
//
// Example usage:
//
//	err := errors.WrapError(cause, errors.CategoryNetwork, "render request failed").
//		Retryable().
//		WithContext("url", endpoint).
//		Build()
package errors
