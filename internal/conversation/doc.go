// Package conversation is the domain layer for conversations and their
// messages. Deleting a conversation cascades to its messages; message
// listings are always chronological.
package conversation
