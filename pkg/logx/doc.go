// Package logx is a thin zerolog wrapper used across the bot.
//
// It exists so call sites can pass a Logger value around (zero value is a
// safe no-op), attach fixed fields with With(), and stay independent of the
// sink configuration (console, file, or both).
package logx
