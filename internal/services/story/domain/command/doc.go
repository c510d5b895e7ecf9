// Package command turns chat intents into events.
//
// Deciders are pure: they read the current history when they need to, build
// the events the intent implies, and return them in a Decision. Nothing is
// applied or persisted here.
package command
