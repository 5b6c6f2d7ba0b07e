// Command factsheet manages ESG factsheet decks: uploading presentations,
// generating AI analyses, editing and approving reviews, regenerating decks
// with the approved text, and exporting approved summaries. The serve
// subcommand runs the HTTP API.
package main
