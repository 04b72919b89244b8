// Package storage provides the persistence layer used by the bot.
//
// It holds:
//   - The dispatch cursor (document index, fragment index), written through
//     synchronously on every change
//   - An append-only audit trail (published fragments, operator commands)
//
// Drivers: file, sqlite, redis, memory.
package storage
