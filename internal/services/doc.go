// Package services holds the error taxonomy shared by the workflow and its
// external collaborators (AI provider, object storage, relational store).
package services
