// Package deck reads and rewrites PowerPoint (.pptx) presentation packages.
//
// A package is a zip archive of XML parts. The engine supports three
// operations: extracting the readable text of every slide (including table
// cells) for prompting, locating the placeholder shape designated to receive
// generated analysis text, and rewriting that shape's text while preserving
// its formatting. Rewrites copy every untouched zip entry raw, so unrelated
// parts stay byte-identical across round trips.
package deck
