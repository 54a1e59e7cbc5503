// Package llm provides completion client implementations.
//
// The factory creates completion clients based on provider configuration.
// Currently supports:
//   - Anthropic Claude
package llm
