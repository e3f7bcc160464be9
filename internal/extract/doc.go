// Package extract defines the document processor contract and ships the
// built-in plain text and markdown extractors. Format parsers for richer
// types register against the same Registry at wiring time.
package extract
